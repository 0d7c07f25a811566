package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
)

// PlanUseCase serves the configured subscription plans.
type PlanUseCase struct {
	byCode map[string]*model.SubscriptionPlan
	order  []string
}

// NewPlanUseCase constructs a PlanUseCase. Plan codes are case-insensitive and must be unique.
func NewPlanUseCase(plans ...*model.SubscriptionPlan) (*PlanUseCase, error) {
	uc := &PlanUseCase{byCode: make(map[string]*model.SubscriptionPlan, len(plans))}
	for _, p := range plans {
		if p.IsZero() {
			return nil, domain.ErrInvalidArgument
		}
		code := strings.ToLower(p.Code)
		if _, dup := uc.byCode[code]; dup {
			return nil, fmt.Errorf("duplicate plan %q: %w", p.Code, domain.ErrAlreadyExists)
		}
		uc.byCode[code] = p
		uc.order = append(uc.order, code)
	}
	sort.SliceStable(uc.order, func(i, j int) bool {
		return uc.byCode[uc.order[i]].Period < uc.byCode[uc.order[j]].Period
	})
	return uc, nil
}

// Get retrieves a plan by code.
func (uc *PlanUseCase) Get(_ context.Context, code string) (*model.SubscriptionPlan, error) {
	p, ok := uc.byCode[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, domain.ErrInvalidPlan
	}
	return p, nil
}

// List returns all plans, shortest period first.
func (uc *PlanUseCase) List(_ context.Context) []*model.SubscriptionPlan {
	out := make([]*model.SubscriptionPlan, 0, len(uc.order))
	for _, code := range uc.order {
		out = append(out, uc.byCode[code])
	}
	return out
}
