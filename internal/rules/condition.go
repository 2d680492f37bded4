// Package rules implements the per-profile customization rules that
// rewrite, recolor or drop events before they reach the destination.
package rules

import (
	"regexp"
	"strings"
	"syncademic/internal/apperr"
	"syncademic/internal/models"
	"unicode/utf8"
)

const (
	MaxRules         = 50
	MaxActions       = 5
	MaxConditions    = 10
	MaxNestingDepth  = 5
	MaxConditionText = 256
)

// Operator is the comparison applied by a TextFieldCondition.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
	OpRegex      Operator = "regex"
)

func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpContains, OpStartsWith, OpEndsWith, OpRegex:
		return true
	}
	return false
}

// LogicalOperator joins the children of a CompoundCondition.
type LogicalOperator string

const (
	And LogicalOperator = "AND"
	Or  LogicalOperator = "OR"
)

func (o LogicalOperator) IsValid() bool {
	return o == And || o == Or
}

// Condition is either a *TextFieldCondition or a *CompoundCondition.
type Condition interface {
	Evaluate(ev models.Event) bool
	// depth counts compound levels; a text condition has depth 0.
	depth() int
}

// TextFieldCondition matches one text field of an event.
type TextFieldCondition struct {
	Field         models.Field
	Operator      Operator
	Value         string
	CaseSensitive bool
	Negate        bool

	re *regexp.Regexp
}

// NewTextFieldCondition validates the condition and pre-compiles regex values.
func NewTextFieldCondition(field models.Field, op Operator, value string, caseSensitive, negate bool) (*TextFieldCondition, error) {
	if !field.IsValid() {
		return nil, apperr.New(apperr.RulesetValidation, "unknown field %q", field)
	}
	if !op.IsValid() {
		return nil, apperr.New(apperr.RulesetValidation, "unknown operator %q", op)
	}
	if n := utf8.RuneCountInString(value); n < 1 || n > MaxConditionText {
		return nil, apperr.New(apperr.RulesetValidation, "condition value must be 1 to %d characters, got %d", MaxConditionText, n)
	}

	c := &TextFieldCondition{
		Field:         field,
		Operator:      op,
		Value:         value,
		CaseSensitive: caseSensitive,
		Negate:        negate,
	}
	if op == OpRegex {
		pattern := value
		if !caseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, apperr.Wrap(apperr.RulesetValidation, err, "invalid regex")
		}
		c.re = re
	}
	return c, nil
}

// Evaluate applies the operator to the event field, then negates if asked.
func (c *TextFieldCondition) Evaluate(ev models.Event) bool {
	field, value := ev.Field(c.Field), c.Value
	if !c.CaseSensitive && c.Operator != OpRegex {
		field, value = strings.ToLower(field), strings.ToLower(value)
	}

	var result bool
	switch c.Operator {
	case OpEquals:
		result = field == value
	case OpContains:
		result = strings.Contains(field, value)
	case OpStartsWith:
		result = strings.HasPrefix(field, value)
	case OpEndsWith:
		result = strings.HasSuffix(field, value)
	case OpRegex:
		result = c.re.MatchString(field)
	}
	return result != c.Negate
}

func (c *TextFieldCondition) depth() int { return 0 }

// CompoundCondition combines child conditions with AND or OR.
type CompoundCondition struct {
	Operator   LogicalOperator
	Conditions []Condition
}

// NewCompoundCondition checks the child count and the nesting depth.
func NewCompoundCondition(op LogicalOperator, conditions ...Condition) (*CompoundCondition, error) {
	if !op.IsValid() {
		return nil, apperr.New(apperr.RulesetValidation, "unknown logical operator %q", op)
	}
	if n := len(conditions); n < 2 || n > MaxConditions {
		return nil, apperr.New(apperr.RulesetValidation, "compound condition needs 2 to %d conditions, got %d", MaxConditions, n)
	}
	for _, child := range conditions {
		if child == nil {
			return nil, apperr.New(apperr.RulesetValidation, "compound condition has a nil child")
		}
	}

	c := &CompoundCondition{Operator: op, Conditions: append([]Condition(nil), conditions...)}
	if d := c.depth(); d > MaxNestingDepth {
		return nil, apperr.New(apperr.RulesetValidation, "conditions nested %d deep, max is %d", d, MaxNestingDepth)
	}
	return c, nil
}

// Evaluate short-circuits in child order.
func (c *CompoundCondition) Evaluate(ev models.Event) bool {
	for _, child := range c.Conditions {
		matched := child.Evaluate(ev)
		if c.Operator == And && !matched {
			return false
		}
		if c.Operator == Or && matched {
			return true
		}
	}
	return c.Operator == And
}

func (c *CompoundCondition) depth() int {
	deepest := 0
	for _, child := range c.Conditions {
		deepest = max(deepest, child.depth())
	}
	return deepest + 1
}
