package rules

import (
	"syncademic/internal/apperr"
	"syncademic/internal/models"
)

// Rule runs its actions, in order, on events matching its condition.
type Rule struct {
	Condition Condition
	Actions   []Action
}

func NewRule(cond Condition, actions ...Action) (Rule, error) {
	if cond == nil {
		return Rule{}, apperr.New(apperr.RulesetValidation, "rule has no condition")
	}
	if n := len(actions); n < 1 || n > MaxActions {
		return Rule{}, apperr.New(apperr.RulesetValidation, "rule needs 1 to %d actions, got %d", MaxActions, n)
	}
	for _, a := range actions {
		if a == nil {
			return Rule{}, apperr.New(apperr.RulesetValidation, "rule has a nil action")
		}
	}
	if d := cond.depth(); d > MaxNestingDepth {
		return Rule{}, apperr.New(apperr.RulesetValidation, "conditions nested %d deep, max is %d", d, MaxNestingDepth)
	}
	return Rule{Condition: cond, Actions: append([]Action(nil), actions...)}, nil
}

// Apply returns the event unchanged when the condition does not match.
// It returns false as soon as an action drops the event.
func (r Rule) Apply(ev models.Event) (models.Event, bool) {
	if !r.Condition.Evaluate(ev) {
		return ev, true
	}
	for _, a := range r.Actions {
		var kept bool
		if ev, kept = a.Apply(ev); !kept {
			return models.Event{}, false
		}
	}
	return ev, true
}

// Ruleset is an ordered list of rules.
type Ruleset struct {
	Rules []Rule
}

func NewRuleset(rules ...Rule) (*Ruleset, error) {
	if n := len(rules); n < 1 || n > MaxRules {
		return nil, apperr.New(apperr.RulesetValidation, "ruleset needs 1 to %d rules, got %d", MaxRules, n)
	}
	return &Ruleset{Rules: append([]Rule(nil), rules...)}, nil
}

// Apply folds every rule over every event. Dropped events are removed;
// the others keep their relative order.
func (rs *Ruleset) Apply(events []models.Event) []models.Event {
	out := make([]models.Event, 0, len(events))
next:
	for _, ev := range events {
		for _, r := range rs.Rules {
			var kept bool
			if ev, kept = r.Apply(ev); !kept {
				continue next
			}
		}
		out = append(out, ev)
	}
	return out
}
