package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentCols = `id, owner_id, kind, comic_id, plan, bundle_discount_percent::text, amount, currency, status,
  COALESCE(gateway_intent_id,''), retry_count, last_retry_at, paid_at, refunded_at, refund_amount,
  COALESCE(gateway_refund_id,''), refund_reason, payment_method, tax_amount, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row scanner) (*model.PaymentRecord, error) {
	var (
		p              model.PaymentRecord
		kind           string
		comicID, plan  *string
		discount       *string
		status         string
		bundleDiscount *decimal.Decimal
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &kind, &comicID, &plan, &discount, &p.Amount, &p.Currency, &status,
		&p.GatewayIntentID, &p.RetryCount, &p.LastRetryAt, &p.PaidAt, &p.RefundedAt, &p.RefundAmount,
		&p.GatewayRefundID, &p.RefundReason, &p.PaymentMethod, &p.TaxAmount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if discount != nil {
		d, err := decimal.NewFromString(*discount)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		bundleDiscount = &d
	}
	target, ok := model.NewPaymentTarget(model.PaymentKind(kind), deref(comicID), deref(plan), bundleDiscount)
	if !ok {
		return nil, domain.ErrReadDatabaseRow
	}
	p.Target = target
	p.Status = model.PaymentStatus(status)
	return &p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error {
	const q = `
INSERT INTO payments (
  id, owner_id, kind, comic_id, plan, bundle_discount_percent, amount, currency, status,
  gateway_intent_id, retry_count, last_retry_at, paid_at, refunded_at, refund_amount,
  gateway_refund_id, refund_reason, payment_method, tax_amount, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,NULLIF($10,''),$11,$12,$13,$14,$15,NULLIF($16,''),$17,$18,$19,$20,$21
);`

	var discount *string
	if d := p.BundleDiscountPercent(); d != nil {
		s := d.String()
		discount = &s
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.OwnerID, string(p.Kind()), nullable(p.ComicID()), nullable(p.Plan()), discount, p.Amount, p.Currency, string(p.Status),
		p.GatewayIntentID, p.RetryCount, p.LastRetryAt, p.PaidAt, p.RefundedAt, p.RefundAmount,
		p.GatewayRefundID, p.RefundReason, p.PaymentMethod, p.TaxAmount, p.CreatedAt, p.UpdatedAt)
	return mapExecErr(err)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentRecord, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *paymentRepo) LockByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentRecord, error) {
	if !inTx(tx) {
		return nil, domain.ErrInvalidExecContext
	}
	q := `SELECT ` + paymentCols + ` FROM payments WHERE id=$1 FOR UPDATE;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *paymentRepo) FindByGatewayRefundID(ctx context.Context, tx repository.Tx, refundID string) (*model.PaymentRecord, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE gateway_refund_id=$1 LIMIT 1;`
	return r.queryOne(ctx, tx, q, refundID)
}

func (r *paymentRepo) ListByIntent(ctx context.Context, tx repository.Tx, intentID string) ([]*model.PaymentRecord, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE gateway_intent_id=$1 ORDER BY id;`
	return r.queryMany(ctx, tx, q, intentID)
}

// LockByIntent takes row locks in id order so concurrent confirmations of the same intent serialize.
func (r *paymentRepo) LockByIntent(ctx context.Context, tx repository.Tx, intentID string) ([]*model.PaymentRecord, error) {
	if !inTx(tx) {
		return nil, domain.ErrInvalidExecContext
	}
	q := `SELECT ` + paymentCols + ` FROM payments WHERE gateway_intent_id=$1 ORDER BY id FOR UPDATE;`
	return r.queryMany(ctx, tx, q, intentID)
}

func (r *paymentRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, f model.PaymentFilter) ([]*model.PaymentRecord, error) {
	where := []string{"owner_id=$1"}
	args := []interface{}{ownerID}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != nil {
		add("status=$%d", string(*f.Status))
	}
	if f.Kind != nil {
		add("kind=$%d", string(*f.Kind))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	q := fmt.Sprintf(`SELECT %s FROM payments WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d;`,
		paymentCols, strings.Join(where, " AND "), len(args)-1, len(args))
	return r.queryMany(ctx, tx, q, args...)
}

// ListPendingOlderThan returns pending records that have a gateway intent and were
// last touched before olderThan, oldest first.
func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentCols + `
  FROM payments
 WHERE status='pending'
   AND gateway_intent_id IS NOT NULL
   AND COALESCE(last_retry_at, created_at) < $1
 ORDER BY created_at ASC
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, olderThan, limit)
}

func (r *paymentRepo) SetIntent(ctx context.Context, tx repository.Tx, id, intentID string) error {
	const q = `
UPDATE payments
   SET gateway_intent_id=$2, updated_at=NOW()
 WHERE id=$1 AND status='pending' AND gateway_intent_id IS NULL;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, intentID)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentRepo) MarkSucceededIfOpen(ctx context.Context, tx repository.Tx, id string, s repository.PaymentSucceeded) (bool, error) {
	const q = `
UPDATE payments
   SET status='succeeded', paid_at=$2, payment_method=$3, tax_amount=$4, updated_at=NOW()
 WHERE id=$1 AND gateway_intent_id=$5 AND status IN ('pending','failed');`
	return r.cas(ctx, tx, q, id, s.PaidAt, s.PaymentMethod, s.TaxAmount, s.IntentID)
}

func (r *paymentRepo) MarkFailedIfPending(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE payments SET status='failed', updated_at=NOW() WHERE id=$1 AND status='pending';`
	return r.cas(ctx, tx, q, id)
}

func (r *paymentRepo) MarkRefundedIfSucceeded(ctx context.Context, tx repository.Tx, id string, rf repository.PaymentRefunded) (bool, error) {
	const q = `
UPDATE payments
   SET status='refunded', refunded_at=$2, refund_amount=$3, gateway_refund_id=$4, refund_reason=$5, updated_at=NOW()
 WHERE id=$1 AND status='succeeded';`
	return r.cas(ctx, tx, q, id, rf.RefundedAt, rf.RefundAmount, rf.GatewayRefundID, rf.Reason)
}

func (r *paymentRepo) ApplyRetry(ctx context.Context, tx repository.Tx, id string, rt repository.PaymentRetried) (bool, error) {
	const q = `
UPDATE payments
   SET gateway_intent_id=$3, retry_count=retry_count+1, last_retry_at=$4, status='pending', updated_at=NOW()
 WHERE id=$1
   AND COALESCE(gateway_intent_id,'')=$2
   AND (status='failed' OR (status='pending' AND gateway_intent_id IS NULL));`
	return r.cas(ctx, tx, q, id, rt.OldIntentID, rt.NewIntentID, rt.RetriedAt)
}

func (r *paymentRepo) SumSucceededSince(ctx context.Context, tx repository.Tx, since time.Time) (map[string]int64, error) {
	const q = `SELECT currency, COALESCE(SUM(amount),0) FROM payments WHERE status='succeeded' AND paid_at >= $1 GROUP BY currency;`
	rows, err := queryRows(ctx, r.pool, tx, q, since)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var cur string
		var sum int64
		if err := rows.Scan(&cur, &sum); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[cur] = sum
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func (r *paymentRepo) cas(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (bool, error) {
	cmd, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.PaymentRecord, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		if err == domain.ErrReadDatabaseRow {
			return nil, err
		}
		return nil, mapScanErr(err)
	}
	return p, nil
}

func (r *paymentRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.PaymentRecord, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
