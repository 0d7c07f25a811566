package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // record created; awaiting gateway confirmation
	PaymentStatusSucceeded PaymentStatus = "succeeded" // confirmed at gateway; access granted
	PaymentStatusFailed    PaymentStatus = "failed"    // declined at gateway; eligible for retry
	PaymentStatusRefunded  PaymentStatus = "refunded"  // refunded at gateway; access revoked
)

type PaymentKind string

const (
	PaymentKindSingle       PaymentKind = "single"
	PaymentKindBundle       PaymentKind = "bundle"
	PaymentKindSubscription PaymentKind = "subscription"
)

// PaymentTarget is what a payment buys. It is a closed set:
// SingleTarget, BundleTarget and SubscriptionTarget.
type PaymentTarget interface {
	Kind() PaymentKind
	isPaymentTarget()
}

// SingleTarget is one comic bought on its own.
type SingleTarget struct {
	ComicID string
}

// BundleTarget is one comic of a bundle checkout. Siblings share the gateway intent.
type BundleTarget struct {
	ComicID         string
	DiscountPercent decimal.Decimal
}

// SubscriptionTarget is a subscription plan purchase.
type SubscriptionTarget struct {
	Plan string
}

func (SingleTarget) Kind() PaymentKind       { return PaymentKindSingle }
func (BundleTarget) Kind() PaymentKind       { return PaymentKindBundle }
func (SubscriptionTarget) Kind() PaymentKind { return PaymentKindSubscription }

func (SingleTarget) isPaymentTarget()       {}
func (BundleTarget) isPaymentTarget()       {}
func (SubscriptionTarget) isPaymentTarget() {}

// PaymentRecord is one payment attempt for one target. Records are never deleted.
type PaymentRecord struct {
	ID              string
	OwnerID         string
	Target          PaymentTarget
	Amount          int64 // minor units, post-discount for bundles
	Currency        string
	Status          PaymentStatus
	GatewayIntentID string // replaced only by a retry
	RetryCount      int
	LastRetryAt     *time.Time
	PaidAt          *time.Time
	RefundedAt      *time.Time
	RefundAmount    *int64
	GatewayRefundID string
	RefundReason    string
	PaymentMethod   string
	TaxAmount       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (p *PaymentRecord) Kind() PaymentKind {
	if p == nil || p.Target == nil {
		return ""
	}
	return p.Target.Kind()
}

// ComicID returns the comic the record grants, or "" for subscriptions.
func (p *PaymentRecord) ComicID() string {
	switch t := p.Target.(type) {
	case SingleTarget:
		return t.ComicID
	case BundleTarget:
		return t.ComicID
	default:
		return ""
	}
}

// Plan returns the subscription plan code, or "" for comic purchases.
func (p *PaymentRecord) Plan() string {
	if t, ok := p.Target.(SubscriptionTarget); ok {
		return t.Plan
	}
	return ""
}

// BundleDiscountPercent is set only for bundle records.
func (p *PaymentRecord) BundleDiscountPercent() *decimal.Decimal {
	if t, ok := p.Target.(BundleTarget); ok {
		d := t.DiscountPercent
		return &d
	}
	return nil
}

// IsRetryable reports whether Retry may re-issue an intent for this record:
// failed records, and pending records whose intent was never created.
func (p *PaymentRecord) IsRetryable() bool {
	switch p.Status {
	case PaymentStatusFailed:
		return true
	case PaymentStatusPending:
		return p.GatewayIntentID == ""
	default:
		return false
	}
}

// NewPaymentTarget rebuilds a target from its persisted columns.
func NewPaymentTarget(kind PaymentKind, comicID, plan string, discount *decimal.Decimal) (PaymentTarget, bool) {
	switch kind {
	case PaymentKindSingle:
		return SingleTarget{ComicID: comicID}, comicID != ""
	case PaymentKindBundle:
		if discount == nil || comicID == "" {
			return nil, false
		}
		return BundleTarget{ComicID: comicID, DiscountPercent: *discount}, true
	case PaymentKindSubscription:
		return SubscriptionTarget{Plan: plan}, plan != ""
	default:
		return nil, false
	}
}

// PaymentFilter narrows ListPaymentHistory.
type PaymentFilter struct {
	Status *PaymentStatus
	Kind   *PaymentKind
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
