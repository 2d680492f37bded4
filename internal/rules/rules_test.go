package rules

import (
	"encoding/json"
	"strings"
	"syncademic/internal/apperr"
	"syncademic/internal/models"
	"testing"
	"time"
)

func newEvent(t *testing.T, title, description, location string) models.Event {
	t.Helper()
	start := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	ev, err := models.NewEvent(models.EventParams{
		Start:       start,
		End:         start.Add(90 * time.Minute),
		Title:       title,
		Description: description,
		Location:    location,
	})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return ev
}

func mustText(t *testing.T, field models.Field, op Operator, value string, caseSensitive, negate bool) *TextFieldCondition {
	t.Helper()
	c, err := NewTextFieldCondition(field, op, value, caseSensitive, negate)
	if err != nil {
		t.Fatalf("new text condition: %v", err)
	}
	return c
}

func mustRule(t *testing.T, cond Condition, actions ...Action) Rule {
	t.Helper()
	r, err := NewRule(cond, actions...)
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}
	return r
}

func TestTextFieldConditionOperators(t *testing.T) {
	ev := newEvent(t, "Lecture Algebra", "Room change", "Amphi B")

	tests := []struct {
		name          string
		field         models.Field
		op            Operator
		value         string
		caseSensitive bool
		negate        bool
		want          bool
	}{
		{"equals", models.FieldTitle, OpEquals, "Lecture Algebra", true, false, true},
		{"equals case mismatch", models.FieldTitle, OpEquals, "lecture algebra", true, false, false},
		{"equals case insensitive", models.FieldTitle, OpEquals, "lecture algebra", false, false, true},
		{"contains", models.FieldTitle, OpContains, "Alg", true, false, true},
		{"starts_with", models.FieldLocation, OpStartsWith, "Amphi", true, false, true},
		{"ends_with", models.FieldDescription, OpEndsWith, "change", true, false, true},
		{"ends_with miss", models.FieldDescription, OpEndsWith, "Room", true, false, false},
		{"regex search", models.FieldTitle, OpRegex, `Alg\w+`, true, false, true},
		{"regex not anchored", models.FieldTitle, OpRegex, `ture`, true, false, true},
		{"regex case insensitive", models.FieldTitle, OpRegex, `^lecture`, false, false, true},
		{"regex case sensitive miss", models.FieldTitle, OpRegex, `^lecture`, true, false, false},
		{"negate", models.FieldTitle, OpContains, "Exam", true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustText(t, tt.field, tt.op, tt.value, tt.caseSensitive, tt.negate)
			if got := c.Evaluate(ev); got != tt.want {
				t.Errorf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTextFieldConditionValidation(t *testing.T) {
	tests := []struct {
		name  string
		field models.Field
		op    Operator
		value string
	}{
		{"empty value", models.FieldTitle, OpContains, ""},
		{"too long", models.FieldTitle, OpContains, strings.Repeat("a", MaxConditionText+1)},
		{"bad field", "organizer", OpContains, "x"},
		{"bad operator", models.FieldTitle, "like", "x"},
		{"bad regex", models.FieldTitle, OpRegex, "(unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTextFieldCondition(tt.field, tt.op, tt.value, true, false)
			if !apperr.Is(err, apperr.RulesetValidation) {
				t.Fatalf("err = %v, want RulesetValidationError", err)
			}
		})
	}
}

func TestCompoundCondition(t *testing.T) {
	ev := newEvent(t, "TD Physics", "", "Lab 3")
	isTD := mustText(t, models.FieldTitle, OpStartsWith, "TD", true, false)
	inAmphi := mustText(t, models.FieldLocation, OpContains, "Amphi", true, false)

	and, err := NewCompoundCondition(And, isTD, inAmphi)
	if err != nil {
		t.Fatalf("and: %v", err)
	}
	or, err := NewCompoundCondition(Or, isTD, inAmphi)
	if err != nil {
		t.Fatalf("or: %v", err)
	}

	if and.Evaluate(ev) {
		t.Error("AND should be false")
	}
	if !or.Evaluate(ev) {
		t.Error("OR should be true")
	}

	if _, err := NewCompoundCondition(And, isTD); err == nil {
		t.Error("expected error for a single child")
	}
}

func TestCompoundNestingDepth(t *testing.T) {
	leaf := mustText(t, models.FieldTitle, OpContains, "x", true, false)

	var cond Condition = leaf
	for i := 0; i < MaxNestingDepth; i++ {
		c, err := NewCompoundCondition(Or, cond, leaf)
		if err != nil {
			t.Fatalf("depth %d: %v", i+1, err)
		}
		cond = c
	}

	if _, err := NewCompoundCondition(Or, cond, leaf); !apperr.Is(err, apperr.RulesetValidation) {
		t.Fatalf("depth %d: err = %v, want validation error", MaxNestingDepth+1, err)
	}
}

func TestChangeFieldAction(t *testing.T) {
	ev := newEvent(t, "CM - Algebra - G1", "", "")

	tests := []struct {
		method Method
		value  string
		want   string
	}{
		{MethodSet, "Algebra", "Algebra"},
		{MethodAppend, " (mandatory)", "CM - Algebra - G1 (mandatory)"},
		{MethodPrepend, "[UNI] ", "[UNI] CM - Algebra - G1"},
		{MethodCutBefore, " - ", "Algebra - G1"},
		{MethodCutAfter, " - ", "CM"},
		{MethodCutBefore, "absent", "CM - Algebra - G1"},
		{MethodCutAfter, "absent", "CM - Algebra - G1"},
	}

	for _, tt := range tests {
		t.Run(string(tt.method)+" "+tt.value, func(t *testing.T) {
			a, err := NewChangeFieldAction(models.FieldTitle, tt.method, tt.value)
			if err != nil {
				t.Fatalf("new action: %v", err)
			}
			got, kept := a.Apply(ev)
			if !kept {
				t.Fatal("event dropped")
			}
			if got.Title() != tt.want {
				t.Errorf("title = %q, want %q", got.Title(), tt.want)
			}
		})
	}
}

func TestRuleShortCircuitsOnDelete(t *testing.T) {
	ev := newEvent(t, "Optional seminar", "", "")
	cond := mustText(t, models.FieldTitle, OpContains, "Optional", true, false)
	recolor, _ := NewChangeColorAction(models.ColorTomato)

	r := mustRule(t, cond, DeleteEventAction{}, recolor)
	if _, kept := r.Apply(ev); kept {
		t.Fatal("expected event to be dropped")
	}

	miss := mustRule(t, mustText(t, models.FieldTitle, OpContains, "Exam", true, false), DeleteEventAction{})
	got, kept := miss.Apply(ev)
	if !kept || got != ev {
		t.Fatal("non-matching rule should return the event unchanged")
	}
}

func TestRulesetApplyPreservesOrder(t *testing.T) {
	events := []models.Event{
		newEvent(t, "Lecture A", "", ""),
		newEvent(t, "Lunch", "", ""),
		newEvent(t, "Lecture B", "", ""),
		newEvent(t, "Sport", "", ""),
	}

	dropLunch := mustRule(t, mustText(t, models.FieldTitle, OpEquals, "Lunch", true, false), DeleteEventAction{})
	prefix, _ := NewChangeFieldAction(models.FieldTitle, MethodPrepend, "[L] ")
	green, _ := NewChangeColorAction(models.ColorBasil)
	tagLectures := mustRule(t, mustText(t, models.FieldTitle, OpStartsWith, "Lecture", true, false), prefix, green)

	rs, err := NewRuleset(dropLunch, tagLectures)
	if err != nil {
		t.Fatalf("new ruleset: %v", err)
	}

	got := rs.Apply(events)
	want := []string{"[L] Lecture A", "[L] Lecture B", "Sport"}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, ev := range got {
		if ev.Title() != want[i] {
			t.Errorf("event %d title = %q, want %q", i, ev.Title(), want[i])
		}
	}
	if got[0].Color() != models.ColorBasil || got[2].Color() != "" {
		t.Errorf("colors = %q, %q", got[0].Color(), got[2].Color())
	}

	again := rs.Apply(events)
	for i := range got {
		if got[i] != again[i] {
			t.Errorf("apply is not deterministic at %d", i)
		}
	}
}

func TestRulesetLimits(t *testing.T) {
	if _, err := NewRuleset(); err == nil {
		t.Error("expected error for empty ruleset")
	}

	cond := mustText(t, models.FieldTitle, OpContains, "x", true, false)
	actions := make([]Action, MaxActions+1)
	for i := range actions {
		actions[i] = DeleteEventAction{}
	}
	if _, err := NewRule(cond, actions...); err == nil {
		t.Error("expected error for too many actions")
	}

	rules := make([]Rule, MaxRules+1)
	for i := range rules {
		rules[i] = mustRule(t, cond, DeleteEventAction{})
	}
	if _, err := NewRuleset(rules...); err == nil {
		t.Error("expected error for too many rules")
	}
}

const sampleRuleset = `{
  "rules": [
    {
      "condition": {"type": "text_field", "field": "title", "operator": "contains", "value": "lecture", "case_sensitive": false},
      "actions": [
        {"type": "change_field", "field": "title", "method": "set", "value": "Modified Lecture"},
        {"type": "change_color", "value": "peacock"}
      ]
    },
    {
      "condition": {
        "type": "compound",
        "logical_operator": "OR",
        "conditions": [
          {"type": "text_field", "field": "location", "operator": "equals", "value": "Online"},
          {"type": "text_field", "field": "description", "operator": "regex", "value": "^cancel"}
        ]
      },
      "actions": [{"type": "delete_event"}]
    }
  ]
}`

func TestParseRuleset(t *testing.T) {
	rs, err := Parse([]byte(sampleRuleset))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rs.Rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rs.Rules))
	}

	got := rs.Apply([]models.Event{
		newEvent(t, "Physics LECTURE", "", ""),
		newEvent(t, "Tutorial", "", "Online"),
		newEvent(t, "Tutorial", "cancelled", ""),
	})
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Title() != "Modified Lecture" || got[0].Color() != models.ColorPeacock {
		t.Errorf("event = %q/%q", got[0].Title(), got[0].Color())
	}

	data, err := json.Marshal(rs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := Parse(data)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	text, ok := back.Rules[0].Condition.(*TextFieldCondition)
	if !ok || text.CaseSensitive {
		t.Errorf("first condition = %#v, want case-insensitive text condition", back.Rules[0].Condition)
	}
}

func TestParseDefaultsCaseSensitive(t *testing.T) {
	rs, err := Parse([]byte(`{"rules":[{"condition":{"type":"text_field","field":"title","operator":"equals","value":"A"},"actions":[{"type":"delete_event"}]}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c := rs.Rules[0].Condition.(*TextFieldCondition)
	if !c.CaseSensitive || c.Negate {
		t.Errorf("defaults = case_sensitive %v negate %v, want true false", c.CaseSensitive, c.Negate)
	}
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"unknown condition type": `{"rules":[{"condition":{"type":"date_range"},"actions":[{"type":"delete_event"}]}]}`,
		"unknown action type":    `{"rules":[{"condition":{"type":"text_field","field":"title","operator":"equals","value":"A"},"actions":[{"type":"explode"}]}]}`,
		"unknown member":         `{"rules":[{"condition":{"type":"text_field","field":"title","operator":"equals","value":"A","extra":1},"actions":[{"type":"delete_event"}]}]}`,
		"missing type":           `{"rules":[{"condition":{"field":"title"},"actions":[{"type":"delete_event"}]}]}`,
		"bad color":              `{"rules":[{"condition":{"type":"text_field","field":"title","operator":"equals","value":"A"},"actions":[{"type":"change_color","value":"pink"}]}]}`,
		"no actions":             `{"rules":[{"condition":{"type":"text_field","field":"title","operator":"equals","value":"A"},"actions":[]}]}`,
		"not json":               `rules`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(input)); !apperr.Is(err, apperr.RulesetValidation) {
				t.Fatalf("err = %v, want RulesetValidationError", err)
			}
		})
	}
}
