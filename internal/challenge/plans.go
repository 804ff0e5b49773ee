package challenge

import (
	"fmt"
	"strings"

	"challenge-desk-go/internal/config"
)

// Plans is the set of purchasable challenge plans keyed by lower-case name.
type Plans map[string]config.Plan

// NewPlans normalizes plan names from configuration.
func NewPlans(cfg map[string]config.Plan) Plans {
	p := make(Plans, len(cfg))
	for name, plan := range cfg {
		p[strings.ToLower(strings.TrimSpace(name))] = plan
	}
	return p
}

// Lookup finds a plan case-insensitively.
func (p Plans) Lookup(name string) (string, config.Plan, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	plan, ok := p[key]
	if !ok {
		return "", config.Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, name)
	}
	if plan.StartingBalance <= 0 {
		return "", config.Plan{}, fmt.Errorf("plan %q has non-positive starting balance", name)
	}
	return key, plan, nil
}
