package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
)

var _ repository.EntitlementRepository = (*entitlementRepo)(nil)

type entitlementRepo struct{ pool *pgxpool.Pool }

func NewEntitlementRepo(pool *pgxpool.Pool) *entitlementRepo {
	return &entitlementRepo{pool: pool}
}

// Upsert never downgrades a purchased grant to free or subscription access.
func (r *entitlementRepo) Upsert(ctx context.Context, tx repository.Tx, g *model.EntitlementGrant) error {
	const q = `
INSERT INTO entitlements (owner_id, comic_id, access_type, payment_id, granted_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (owner_id, comic_id) DO UPDATE SET
  access_type=EXCLUDED.access_type, payment_id=EXCLUDED.payment_id, granted_at=EXCLUDED.granted_at
WHERE entitlements.access_type <> 'purchased' OR EXCLUDED.access_type = 'purchased';`
	_, err := execSQL(ctx, r.pool, tx, q, g.OwnerID, g.ComicID, string(g.AccessType), g.PaymentID, g.GrantedAt)
	return mapExecErr(err)
}

func (r *entitlementRepo) Find(ctx context.Context, tx repository.Tx, ownerID, comicID string) (*model.EntitlementGrant, error) {
	const q = `SELECT owner_id, comic_id, access_type, payment_id, granted_at FROM entitlements WHERE owner_id=$1 AND comic_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, ownerID, comicID)
	if err != nil {
		return nil, err
	}
	g, err := scanGrant(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return g, nil
}

func (r *entitlementRepo) Revoke(ctx context.Context, tx repository.Tx, ownerID, comicID, paymentID string) (bool, error) {
	const q = `DELETE FROM entitlements WHERE owner_id=$1 AND comic_id=$2 AND payment_id=$3;`
	cmd, err := execSQL(ctx, r.pool, tx, q, ownerID, comicID, paymentID)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *entitlementRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string) ([]*model.EntitlementGrant, error) {
	const q = `SELECT owner_id, comic_id, access_type, payment_id, granted_at FROM entitlements WHERE owner_id=$1 ORDER BY granted_at DESC, comic_id;`
	rows, err := queryRows(ctx, r.pool, tx, q, ownerID)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.EntitlementGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, g)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func scanGrant(row scanner) (*model.EntitlementGrant, error) {
	var g model.EntitlementGrant
	var access string
	if err := row.Scan(&g.OwnerID, &g.ComicID, &access, &g.PaymentID, &g.GrantedAt); err != nil {
		return nil, err
	}
	g.AccessType = model.AccessType(access)
	return &g, nil
}
