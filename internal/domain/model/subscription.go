package model

import (
	"time"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusNone     SubscriptionStatus = "none"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// SubscriptionState is the subscription part of an owner's record. One per owner.
type SubscriptionState struct {
	OwnerID   string
	Plan      string
	Status    SubscriptionStatus
	ExpiresAt *time.Time
	PaymentID *string // payment that activated the current period
	UpdatedAt time.Time
}

// NoSubscription is the state of an owner who never subscribed.
func NoSubscription(ownerID string) *SubscriptionState {
	return &SubscriptionState{OwnerID: ownerID, Status: SubscriptionStatusNone}
}

// ActivateSubscription starts a new period for plan paid by paymentID.
func ActivateSubscription(ownerID string, plan *SubscriptionPlan, paymentID string, now time.Time) (*SubscriptionState, error) {
	if ownerID == "" || plan == nil || plan.Period <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	ex := now.Add(plan.Period)
	pid := paymentID
	return &SubscriptionState{
		OwnerID:   ownerID,
		Plan:      plan.Code,
		Status:    SubscriptionStatusActive,
		ExpiresAt: &ex,
		PaymentID: &pid,
		UpdatedAt: now,
	}, nil
}

// IsLiveAt reports whether the subscription grants access at t.
// Expiry is derived from ExpiresAt; an active status with a past expiry is not live.
func (s *SubscriptionState) IsLiveAt(t time.Time) bool {
	if s == nil || s.Status != SubscriptionStatusActive || s.ExpiresAt == nil {
		return false
	}
	return t.Before(*s.ExpiresAt)
}

// ActivatedBy reports whether paymentID paid for the current period.
func (s *SubscriptionState) ActivatedBy(paymentID string) bool {
	return s != nil && s.PaymentID != nil && *s.PaymentID == paymentID
}
