package repository

import (
	"context"
	"time"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
)

// -----------------------------
// Payment records
// -----------------------------

// PaymentSucceeded carries the fields set by the pending->succeeded transition.
type PaymentSucceeded struct {
	IntentID      string
	PaidAt        time.Time
	PaymentMethod string
	TaxAmount     int64
}

// PaymentRefunded carries the fields set by the succeeded->refunded transition.
type PaymentRefunded struct {
	RefundedAt      time.Time
	RefundAmount    int64
	GatewayRefundID string
	Reason          string
}

// PaymentRetried carries the fields set when a new gateway intent replaces the old one.
type PaymentRetried struct {
	OldIntentID string
	NewIntentID string
	RetriedAt   time.Time
}

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.PaymentRecord) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentRecord, error)
	// ListByIntent returns every record sharing the gateway intent, ordered by id.
	ListByIntent(ctx context.Context, tx Tx, intentID string) ([]*model.PaymentRecord, error)
	// LockByIntent is ListByIntent with row locks held until tx ends. Requires a tx.
	LockByIntent(ctx context.Context, tx Tx, intentID string) ([]*model.PaymentRecord, error)
	LockByID(ctx context.Context, tx Tx, id string) (*model.PaymentRecord, error)
	ListByOwner(ctx context.Context, tx Tx, ownerID string, f model.PaymentFilter) ([]*model.PaymentRecord, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error)
	FindByGatewayRefundID(ctx context.Context, tx Tx, refundID string) (*model.PaymentRecord, error)

	// SetIntent stores the first gateway intent of a pending record that has none yet.
	SetIntent(ctx context.Context, tx Tx, id, intentID string) error
	// MarkSucceededIfOpen is the confirmation CAS. A record is open when it is pending, or failed
	// while still carrying s.IntentID (declined, then paid on the same intent). false means it was not open.
	MarkSucceededIfOpen(ctx context.Context, tx Tx, id string, s PaymentSucceeded) (bool, error)
	MarkFailedIfPending(ctx context.Context, tx Tx, id string) (bool, error)
	// MarkRefundedIfSucceeded is the refund CAS; false means the record was not succeeded.
	MarkRefundedIfSucceeded(ctx context.Context, tx Tx, id string, r PaymentRefunded) (bool, error)
	// ApplyRetry swaps the intent id, bumps retry_count and resets status to pending,
	// only if the record still carries OldIntentID and is retryable.
	ApplyRetry(ctx context.Context, tx Tx, id string, r PaymentRetried) (bool, error)

	SumSucceededSince(ctx context.Context, tx Tx, since time.Time) (map[string]int64, error)
}
