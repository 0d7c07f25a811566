package repository

import (
	"context"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
)

// EntitlementRepository stores per-comic grants, unique per (owner, comic).
type EntitlementRepository interface {
	// Upsert creates or replaces the (owner, comic) grant. Safe under concurrent duplicates.
	Upsert(ctx context.Context, tx Tx, g *model.EntitlementGrant) error
	Find(ctx context.Context, tx Tx, ownerID, comicID string) (*model.EntitlementGrant, error)
	// Revoke deletes the grant that paymentID created; it reports whether a row was removed.
	Revoke(ctx context.Context, tx Tx, ownerID, comicID, paymentID string) (bool, error)
	ListByOwner(ctx context.Context, tx Tx, ownerID string) ([]*model.EntitlementGrant, error)
}
