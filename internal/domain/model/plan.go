package model

import (
	"strings"
	"time"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
)

// SubscriptionPlan is a purchasable plan with a fixed period and price.
type SubscriptionPlan struct {
	Code     string // stable plan identifier, e.g. "monthly"
	Name     string
	Price    int64 // minor units
	Currency string
	Period   time.Duration
	Benefits []string
}

func (p *SubscriptionPlan) IsZero() bool { return p == nil || p.Code == "" }

// NewSubscriptionPlan validates and constructs a plan.
func NewSubscriptionPlan(code, name string, price int64, currency string, period time.Duration, benefits []string) (*SubscriptionPlan, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || name == "" || price <= 0 || period <= 0 || NormalizeCurrency(currency) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &SubscriptionPlan{
		Code:     code,
		Name:     name,
		Price:    price,
		Currency: NormalizeCurrency(currency),
		Period:   period,
		Benefits: benefits,
	}, nil
}
