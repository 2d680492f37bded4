package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"syncademic/internal/apperr"
	"syncademic/internal/models"
)

// Wire format: conditions and actions are JSON objects discriminated by
// their "type" member. Unknown types and unknown members are rejected.

const (
	typeTextField   = "text_field"
	typeCompound    = "compound"
	typeChangeField = "change_field"
	typeChangeColor = "change_color"
	typeDeleteEvent = "delete_event"
)

type wireRuleset struct {
	Rules []wireRule `json:"rules"`
}

type wireRule struct {
	Condition json.RawMessage   `json:"condition"`
	Actions   []json.RawMessage `json:"actions"`
}

type wireTag struct {
	Type string `json:"type"`
}

type wireTextField struct {
	Type          string `json:"type"`
	Field         string `json:"field"`
	Operator      string `json:"operator"`
	Value         string `json:"value"`
	CaseSensitive *bool  `json:"case_sensitive,omitempty"`
	Negate        bool   `json:"negate"`
}

type wireCompound struct {
	Type            string            `json:"type"`
	LogicalOperator string            `json:"logical_operator"`
	Conditions      []json.RawMessage `json:"conditions"`
}

type wireChangeField struct {
	Type   string `json:"type"`
	Field  string `json:"field"`
	Method string `json:"method"`
	Value  string `json:"value"`
}

type wireChangeColor struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Parse decodes and validates a ruleset.
func Parse(data []byte) (*Ruleset, error) {
	var w wireRuleset
	if err := decodeStrict(data, &w); err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(w.Rules))
	for i, wr := range w.Rules {
		cond, err := parseCondition(wr.Condition)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		actions := make([]Action, 0, len(wr.Actions))
		for j, raw := range wr.Actions {
			a, err := parseAction(raw)
			if err != nil {
				return nil, fmt.Errorf("rule %d action %d: %w", i, j, err)
			}
			actions = append(actions, a)
		}
		r, err := NewRule(cond, actions...)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, r)
	}
	return NewRuleset(rules...)
}

func parseCondition(raw json.RawMessage) (Condition, error) {
	tag, err := readTag(raw)
	if err != nil {
		return nil, err
	}

	switch tag {
	case typeTextField:
		var w wireTextField
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		caseSensitive := true
		if w.CaseSensitive != nil {
			caseSensitive = *w.CaseSensitive
		}
		return NewTextFieldCondition(models.Field(w.Field), Operator(w.Operator), w.Value, caseSensitive, w.Negate)
	case typeCompound:
		var w wireCompound
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		children := make([]Condition, 0, len(w.Conditions))
		for _, c := range w.Conditions {
			child, err := parseCondition(c)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return NewCompoundCondition(LogicalOperator(w.LogicalOperator), children...)
	}
	return nil, apperr.New(apperr.RulesetValidation, "unknown condition type %q", tag)
}

func parseAction(raw json.RawMessage) (Action, error) {
	tag, err := readTag(raw)
	if err != nil {
		return nil, err
	}

	switch tag {
	case typeChangeField:
		var w wireChangeField
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		return NewChangeFieldAction(models.Field(w.Field), Method(w.Method), w.Value)
	case typeChangeColor:
		var w wireChangeColor
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		return NewChangeColorAction(models.Color(w.Value))
	case typeDeleteEvent:
		var w wireTag
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		return DeleteEventAction{}, nil
	}
	return nil, apperr.New(apperr.RulesetValidation, "unknown action type %q", tag)
}

func readTag(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", apperr.New(apperr.RulesetValidation, "missing object")
	}
	var t wireTag
	if err := json.Unmarshal(raw, &t); err != nil {
		return "", apperr.Wrap(apperr.RulesetValidation, err, "malformed ruleset")
	}
	if t.Type == "" {
		return "", apperr.New(apperr.RulesetValidation, "object has no type")
	}
	return t.Type, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.RulesetValidation, err, "malformed ruleset")
	}
	return nil
}

// MarshalJSON encodes the ruleset in the wire format accepted by Parse.
func (rs *Ruleset) MarshalJSON() ([]byte, error) {
	w := wireRuleset{Rules: make([]wireRule, 0, len(rs.Rules))}
	for _, r := range rs.Rules {
		cond, err := marshalCondition(r.Condition)
		if err != nil {
			return nil, err
		}
		wr := wireRule{Condition: cond}
		for _, a := range r.Actions {
			raw, err := marshalAction(a)
			if err != nil {
				return nil, err
			}
			wr.Actions = append(wr.Actions, raw)
		}
		w.Rules = append(w.Rules, wr)
	}
	return json.Marshal(w)
}

// UnmarshalJSON is Parse into an existing value.
func (rs *Ruleset) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*rs = *parsed
	return nil
}

func marshalCondition(c Condition) (json.RawMessage, error) {
	switch c := c.(type) {
	case *TextFieldCondition:
		cs := c.CaseSensitive
		return json.Marshal(wireTextField{
			Type:          typeTextField,
			Field:         string(c.Field),
			Operator:      string(c.Operator),
			Value:         c.Value,
			CaseSensitive: &cs,
			Negate:        c.Negate,
		})
	case *CompoundCondition:
		w := wireCompound{Type: typeCompound, LogicalOperator: string(c.Operator)}
		for _, child := range c.Conditions {
			raw, err := marshalCondition(child)
			if err != nil {
				return nil, err
			}
			w.Conditions = append(w.Conditions, raw)
		}
		return json.Marshal(w)
	}
	return nil, apperr.New(apperr.Programming, "unknown condition %T", c)
}

func marshalAction(a Action) (json.RawMessage, error) {
	switch a := a.(type) {
	case *ChangeFieldAction:
		return json.Marshal(wireChangeField{Type: typeChangeField, Field: string(a.Field), Method: string(a.Method), Value: a.Value})
	case *ChangeColorAction:
		return json.Marshal(wireChangeColor{Type: typeChangeColor, Value: string(a.Color)})
	case DeleteEventAction, *DeleteEventAction:
		return json.Marshal(wireTag{Type: typeDeleteEvent})
	}
	return nil, apperr.New(apperr.Programming, "unknown action %T", a)
}
