// Package rulegen defines the port to the ruleset generator. The generator
// itself (an LLM-backed service) lives outside this module.
package rulegen

import (
	"context"
	"syncademic/internal/apperr"
	"syncademic/internal/models"
	"syncademic/internal/rules"
)

// Generator proposes a ruleset for a feed. A nil ruleset with a nil error
// means no rules are needed.
type Generator interface {
	Generate(ctx context.Context, evs []models.Event) (*rules.Ruleset, error)
}

// Noop never proposes rules.
type Noop struct{}

func (Noop) Generate(context.Context, []models.Event) (*rules.Ruleset, error) { return nil, nil }

// Static returns a fixed JSON ruleset, for deployments that configure rules
// by hand and for tests.
type Static struct {
	JSON []byte
}

func (s Static) Generate(context.Context, []models.Event) (*rules.Ruleset, error) {
	if len(s.JSON) == 0 {
		return nil, nil
	}
	rs, err := rules.Parse(s.JSON)
	if err != nil {
		return nil, apperr.Wrap(apperr.RulesetGeneration, err, "configured ruleset is invalid")
	}
	return rs, nil
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, evs []models.Event) (*rules.Ruleset, error)

func (f Func) Generate(ctx context.Context, evs []models.Event) (*rules.Ruleset, error) {
	return f(ctx, evs)
}
