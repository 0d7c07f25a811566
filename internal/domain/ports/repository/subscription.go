package repository

import (
	"context"
	"time"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
)

// SubscriptionRepository is the port for the per-owner subscription state.
type SubscriptionRepository interface {
	// Save upserts the owner's subscription state.
	Save(ctx context.Context, tx Tx, s *model.SubscriptionState) error
	// FindByOwner returns model.NoSubscription when the owner never subscribed.
	FindByOwner(ctx context.Context, tx Tx, ownerID string) (*model.SubscriptionState, error)
	// CancelIfActivatedBy cancels the subscription only when paymentID paid for its current period.
	CancelIfActivatedBy(ctx context.Context, tx Tx, ownerID, paymentID string) (bool, error)
	// ExpireDue flips active subscriptions whose expiry passed to expired and returns how many changed.
	ExpireDue(ctx context.Context, tx Tx, now time.Time) (int, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
