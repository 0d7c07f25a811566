package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.SubscriptionState) error {
	const q = `
INSERT INTO subscriptions (owner_id, plan, status, expires_at, payment_id, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (owner_id) DO UPDATE SET
  plan=$2, status=$3, expires_at=$4, payment_id=$5, updated_at=$6;`
	_, err := execSQL(ctx, r.pool, tx, q, s.OwnerID, s.Plan, string(s.Status), s.ExpiresAt, s.PaymentID, s.UpdatedAt)
	return mapExecErr(err)
}

func (r *subscriptionRepo) FindByOwner(ctx context.Context, tx repository.Tx, ownerID string) (*model.SubscriptionState, error) {
	q := `SELECT owner_id, plan, status, expires_at, payment_id, updated_at FROM subscriptions WHERE owner_id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, ownerID)
	if err != nil {
		return nil, err
	}

	var s model.SubscriptionState
	var status string
	if err := row.Scan(&s.OwnerID, &s.Plan, &status, &s.ExpiresAt, &s.PaymentID, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.NoSubscription(ownerID), nil
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.SubscriptionStatus(status)
	return &s, nil
}

func (r *subscriptionRepo) CancelIfActivatedBy(ctx context.Context, tx repository.Tx, ownerID, paymentID string) (bool, error) {
	const q = `
UPDATE subscriptions
   SET status='canceled', updated_at=NOW()
 WHERE owner_id=$1 AND payment_id=$2 AND status='active';`
	cmd, err := execSQL(ctx, r.pool, tx, q, ownerID, paymentID)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *subscriptionRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	const q = `UPDATE subscriptions SET status='expired', updated_at=$1 WHERE status='active' AND expires_at <= $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, mapExecErr(err)
	}
	return int(cmd.RowsAffected()), nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = n
	}
	return counts, rows.Err()
}
