// File: internal/usecase/refund_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/logging"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/metrics"
)

// Compile-time check
var _ RefundUseCase = (*refundUC)(nil)

type RefundResult struct {
	Payment  *model.PaymentRecord
	RefundID string
	// Applied is false when the refund was already recorded, or the gateway refund failed.
	Applied bool
}

type RefundUseCase interface {
	// Refund returns the money of a succeeded record and revokes the access it bought.
	// If the gateway refund succeeds but the local revoke does not commit, the error is
	// domain.ErrRevokePending and ReplayRevoke finishes the job.
	Refund(ctx context.Context, paymentID, reason string) (*RefundResult, error)
	// ReplayRevoke applies a gateway refund to local state. It is idempotent per refund id.
	ReplayRevoke(ctx context.Context, refundID string) (*RefundResult, error)
}

type refundUC struct {
	payments     repository.PaymentRepository
	entitlements repository.EntitlementRepository
	subs         repository.SubscriptionRepository
	gateway      adapter.PaymentGateway
	pub          adapter.EventPublisher
	tm           repository.TransactionManager
	opts         Options
	log          *zerolog.Logger
}

func NewRefundUseCase(
	payments repository.PaymentRepository,
	entitlements repository.EntitlementRepository,
	subs repository.SubscriptionRepository,
	gateway adapter.PaymentGateway,
	pub adapter.EventPublisher,
	tm repository.TransactionManager,
	opts Options,
	logger *zerolog.Logger,
) *refundUC {
	return &refundUC{
		payments:     payments,
		entitlements: entitlements,
		subs:         subs,
		gateway:      gateway,
		pub:          pub,
		tm:           tm,
		opts:         opts.withDefaults(),
		log:          logger,
	}
}

func (u *refundUC) Refund(ctx context.Context, paymentID, reason string) (*RefundResult, error) {
	defer logging.TraceDuration(u.log, "RefundUC.Refund")()
	ctx = logging.WithPaymentID(ctx, paymentID)
	log := logging.With(ctx, u.log)

	rec, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	if rec.Status != model.PaymentStatusSucceeded {
		metrics.IncRefund("rejected")
		return nil, domain.NewError(domain.CodeNotRefundable, "payment is "+string(rec.Status), nil)
	}

	meta := map[string]string{"payment_id": rec.ID}
	if reason != "" {
		meta["reason"] = reason
	}
	gctx, cancel := u.opts.gatewayCtx(ctx)
	res, err := u.gateway.CreateRefund(gctx, adapter.RefundRequest{
		IntentID:       rec.GatewayIntentID,
		Amount:         rec.Amount,
		Reason:         reason,
		Metadata:       meta,
		IdempotencyKey: refundKey(rec.ID),
	})
	cancel()
	if err != nil {
		metrics.IncRefund("rejected")
		return nil, gatewayErr(err)
	}
	if res.Failed() {
		metrics.IncRefund("rejected")
		return nil, domain.NewError(domain.CodeGatewayRejected, "gateway refund "+res.ID+" is "+res.Status, nil)
	}

	out, err := u.apply(ctx, rec.ID, res, reason)
	if err != nil {
		metrics.IncRefund("revoke_pending")
		log.Error().Err(err).Str("refund_id", res.ID).Msg("gateway refunded but local revoke failed")
		return nil, domain.NewError(domain.CodeRevokePending, fmt.Sprintf("refund %s recorded at gateway; local revoke pending", res.ID), err)
	}
	metrics.IncRefund("ok")
	log.Info().Str("refund_id", res.ID).Int64("amount", res.Amount).Bool("applied", out.Applied).Msg("payment refunded")
	return out, nil
}

func (u *refundUC) ReplayRevoke(ctx context.Context, refundID string) (*RefundResult, error) {
	defer logging.TraceDuration(u.log, "RefundUC.ReplayRevoke")()
	log := logging.With(ctx, u.log).With().Str("refund_id", refundID).Logger()

	if refundID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if rec, err := u.payments.FindByGatewayRefundID(ctx, repository.NoTX, refundID); err == nil {
		return &RefundResult{Payment: rec, RefundID: refundID}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	gctx, cancel := u.opts.gatewayCtx(ctx)
	res, err := u.gateway.RetrieveRefund(gctx, refundID)
	cancel()
	if err != nil {
		return nil, gatewayErr(err)
	}
	if res.Failed() {
		return &RefundResult{RefundID: refundID}, nil
	}

	paymentID, err := u.resolvePayment(ctx, res)
	if err != nil {
		return nil, err
	}
	out, err := u.apply(ctx, paymentID, res, res.Metadata["reason"])
	if err != nil {
		return nil, err
	}
	if out.Applied {
		metrics.IncRefund("replayed")
		log.Info().Str("payment_id", paymentID).Msg("refund replayed; access revoked")
	}
	return out, nil
}

// resolvePayment finds the record a gateway refund belongs to: the payment_id metadata we set,
// otherwise the only succeeded record of the intent with the refunded amount.
func (u *refundUC) resolvePayment(ctx context.Context, res adapter.RefundResult) (string, error) {
	if id := res.Metadata["payment_id"]; id != "" {
		return id, nil
	}
	if res.IntentID == "" {
		return "", domain.NewError(domain.CodeNotFound, "refund "+res.ID+" has no intent", nil)
	}
	recs, err := u.payments.ListByIntent(ctx, repository.NoTX, res.IntentID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	var match []*model.PaymentRecord
	for _, r := range recs {
		if r.Status == model.PaymentStatusSucceeded && (len(recs) == 1 || r.Amount == res.Amount) {
			match = append(match, r)
		}
	}
	if len(match) != 1 {
		return "", domain.NewError(domain.CodeNotFound, fmt.Sprintf("cannot attribute refund %s to one payment of intent %s", res.ID, res.IntentID), nil)
	}
	return match[0].ID, nil
}

// apply records the refund and revokes access in one transaction.
func (u *refundUC) apply(ctx context.Context, paymentID string, res adapter.RefundResult, reason string) (*RefundResult, error) {
	now := u.opts.now()
	out := &RefundResult{RefundID: res.ID}
	var events []adapter.EntitlementEvent

	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		out.Applied, events = false, nil

		rec, err := u.payments.LockByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		out.Payment = rec
		if rec.Status == model.PaymentStatusRefunded {
			// same refund replayed, or already refunded by another one
			return nil
		}
		if rec.Status != model.PaymentStatusSucceeded {
			return domain.NewError(domain.CodeNotRefundable, "payment is "+string(rec.Status), nil)
		}

		amount := res.Amount
		if amount <= 0 {
			amount = rec.Amount
		}
		ok, err := u.payments.MarkRefundedIfSucceeded(ctx, tx, rec.ID, repository.PaymentRefunded{
			RefundedAt:      now,
			RefundAmount:    amount,
			GatewayRefundID: res.ID,
			Reason:          reason,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		rec.Status, rec.RefundedAt, rec.RefundAmount, rec.GatewayRefundID, rec.RefundReason, rec.UpdatedAt =
			model.PaymentStatusRefunded, &now, &amount, res.ID, reason, now

		ev, err := u.revoke(ctx, tx, rec, now)
		if err != nil {
			return err
		}
		if ev != nil {
			events = append(events, *ev)
		}
		out.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Applied {
		metrics.IncPayment(string(out.Payment.Kind()), string(model.PaymentStatusRefunded))
		publish(ctx, u.pub, logging.With(ctx, u.log), events...)
	}
	return out, nil
}

// revoke removes the access rec bought. A grant or subscription period paid by another payment is left alone.
func (u *refundUC) revoke(ctx context.Context, tx repository.Tx, rec *model.PaymentRecord, now time.Time) (*adapter.EntitlementEvent, error) {
	ev := &adapter.EntitlementEvent{OwnerID: rec.OwnerID, PaymentID: rec.ID, OccurredAt: now}
	switch t := rec.Target.(type) {
	case model.SingleTarget, model.BundleTarget:
		removed, err := u.entitlements.Revoke(ctx, tx, rec.OwnerID, rec.ComicID(), rec.ID)
		if err != nil || !removed {
			return nil, err
		}
		ev.Type, ev.ComicID = adapter.EventEntitlementRevoked, rec.ComicID()
	case model.SubscriptionTarget:
		canceled, err := u.subs.CancelIfActivatedBy(ctx, tx, rec.OwnerID, rec.ID)
		if err != nil || !canceled {
			return nil, err
		}
		ev.Type, ev.Plan = adapter.EventSubscriptionCanceled, t.Plan
	default:
		return nil, domain.ErrInvalidArgument
	}
	return ev, nil
}
