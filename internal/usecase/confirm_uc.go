// File: internal/usecase/confirm_uc.go
package usecase

import (
	"context"
	"errors"
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
var _ ConfirmUseCase = (*confirmUC)(nil)

// ConfirmResult is the access state after a confirmation.
type ConfirmResult struct {
	Payments     []*model.PaymentRecord
	Grants       []*model.EntitlementGrant
	Subscription *model.SubscriptionState
	// Replayed is true when an earlier call already granted access.
	Replayed bool
}

type ConfirmUseCase interface {
	// Confirm grants access for every record of a gateway intent once the gateway reports success.
	// Calling it again for a confirmed intent returns the existing grants without changing anything.
	Confirm(ctx context.Context, intentID string) (*ConfirmResult, error)
}

type confirmUC struct {
	payments     repository.PaymentRepository
	entitlements repository.EntitlementRepository
	subs         repository.SubscriptionRepository
	plans        *PlanUseCase
	gateway      adapter.PaymentGateway
	pub          adapter.EventPublisher
	tm           repository.TransactionManager
	opts         Options
	log          *zerolog.Logger
}

func NewConfirmUseCase(
	payments repository.PaymentRepository,
	entitlements repository.EntitlementRepository,
	subs repository.SubscriptionRepository,
	plans *PlanUseCase,
	gateway adapter.PaymentGateway,
	pub adapter.EventPublisher,
	tm repository.TransactionManager,
	opts Options,
	logger *zerolog.Logger,
) *confirmUC {
	return &confirmUC{
		payments:     payments,
		entitlements: entitlements,
		subs:         subs,
		plans:        plans,
		gateway:      gateway,
		pub:          pub,
		tm:           tm,
		opts:         opts.withDefaults(),
		log:          logger,
	}
}

func (u *confirmUC) Confirm(ctx context.Context, intentID string) (*ConfirmResult, error) {
	defer logging.TraceDuration(u.log, "ConfirmUC.Confirm")()
	ctx = logging.WithIntentID(ctx, intentID)
	log := logging.With(ctx, u.log)

	if intentID == "" {
		return nil, domain.ErrPaymentNotFound
	}
	recs, err := u.payments.ListByIntent(ctx, repository.NoTX, intentID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		metrics.IncConfirm("error")
		return nil, err
	}
	if len(recs) == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	if alreadyConfirmed(recs) {
		metrics.IncConfirm("replay")
		return u.replay(ctx, recs)
	}

	gctx, cancel := u.opts.gatewayCtx(ctx)
	info, err := u.gateway.RetrieveIntent(gctx, intentID)
	cancel()
	if err != nil {
		metrics.IncConfirm("error")
		return nil, gatewayErr(err)
	}

	switch {
	case info.Status == adapter.IntentStatusSucceeded:
	case info.Status.IsTerminalFailure():
		if err := u.markFailed(ctx, recs); err != nil {
			metrics.IncConfirm("error")
			return nil, err
		}
		metrics.IncConfirm("declined")
		log.Info().Str("gateway_status", string(info.Status)).Msg("payment declined; records marked failed")
		return nil, domain.ErrPaymentDeclined
	default:
		metrics.IncConfirm("not_succeeded")
		return nil, domain.NewError(domain.CodePaymentNotSucceeded, "gateway status is "+string(info.Status), nil)
	}

	now := u.opts.now()
	var (
		confirmed []*model.PaymentRecord
		grants    []*model.EntitlementGrant
		sub       *model.SubscriptionState
		replayed  bool
	)
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		confirmed, grants, sub, replayed = nil, nil, nil, false

		locked, err := u.payments.LockByIntent(ctx, tx, intentID)
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return domain.ErrPaymentNotFound
		}
		if alreadyConfirmed(locked) {
			replayed = true
			return nil
		}

		for i, r := range locked {
			s := repository.PaymentSucceeded{IntentID: intentID, PaidAt: now, PaymentMethod: info.PaymentMethod}
			if i == 0 {
				s.TaxAmount = info.TaxAmount
			}
			ok, err := u.payments.MarkSucceededIfOpen(ctx, tx, r.ID, s)
			if err != nil {
				return err
			}
			if !ok {
				return errLostRace
			}
			r.Status, r.PaidAt, r.PaymentMethod, r.TaxAmount, r.UpdatedAt = model.PaymentStatusSucceeded, &now, s.PaymentMethod, s.TaxAmount, now
		}
		confirmed = locked

		for _, r := range locked {
			switch t := r.Target.(type) {
			case model.SingleTarget, model.BundleTarget:
				g := model.NewPurchasedGrant(r, now)
				if err := u.entitlements.Upsert(ctx, tx, g); err != nil {
					return err
				}
				grants = append(grants, g)
			case model.SubscriptionTarget:
				plan, err := u.plans.Get(ctx, t.Plan)
				if err != nil {
					return err
				}
				// row lock on the owner's subscription
				if _, err := u.subs.FindByOwner(ctx, tx, r.OwnerID); err != nil {
					return err
				}
				s, err := model.ActivateSubscription(r.OwnerID, plan, r.ID, now)
				if err != nil {
					return err
				}
				if err := u.subs.Save(ctx, tx, s); err != nil {
					return err
				}
				sub = s
			default:
				return domain.ErrInvalidArgument
			}
		}
		return nil
	})
	if errors.Is(err, errLostRace) {
		replayed, err = true, nil
	}
	if err != nil {
		metrics.IncConfirm("error")
		log.Error().Err(err).Msg("confirmation rolled back")
		return nil, err
	}
	if replayed {
		metrics.IncConfirm("replay")
		fresh, err := u.payments.ListByIntent(ctx, repository.NoTX, intentID)
		if err != nil {
			return nil, err
		}
		return u.replay(ctx, fresh)
	}

	metrics.IncConfirm("granted")
	for _, r := range confirmed {
		metrics.IncPayment(string(r.Kind()), string(model.PaymentStatusSucceeded))
		metrics.AddPaymentRevenue(r.Currency, r.Amount)
	}
	publish(ctx, u.pub, log, grantEvents(confirmed, now)...)
	log.Info().Int("records", len(confirmed)).Int("grants", len(grants)).Bool("subscription", sub != nil).Msg("payment confirmed")

	return &ConfirmResult{Payments: confirmed, Grants: grants, Subscription: sub}, nil
}

// markFailed moves the still-pending records of a declined intent to failed so they become retryable.
func (u *confirmUC) markFailed(ctx context.Context, recs []*model.PaymentRecord) error {
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, r := range recs {
			ok, err := u.payments.MarkFailedIfPending(ctx, tx, r.ID)
			if err != nil {
				return err
			}
			if ok {
				r.Status = model.PaymentStatusFailed
				metrics.IncPayment(string(r.Kind()), string(model.PaymentStatusFailed))
			}
		}
		return nil
	})
}

// replay reads the access an earlier confirmation produced. Grants removed by a refund are skipped.
func (u *confirmUC) replay(ctx context.Context, recs []*model.PaymentRecord) (*ConfirmResult, error) {
	res := &ConfirmResult{Payments: recs, Replayed: true}
	for _, r := range recs {
		switch t := r.Target.(type) {
		case model.SingleTarget, model.BundleTarget:
			g, err := u.entitlements.Find(ctx, repository.NoTX, r.OwnerID, r.ComicID())
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			res.Grants = append(res.Grants, g)
		case model.SubscriptionTarget:
			s, err := u.subs.FindByOwner(ctx, repository.NoTX, r.OwnerID)
			if err != nil {
				return nil, err
			}
			if s.Plan == t.Plan {
				res.Subscription = s
			}
		}
	}
	return res, nil
}

func alreadyConfirmed(recs []*model.PaymentRecord) bool {
	for _, r := range recs {
		if r.Status == model.PaymentStatusSucceeded || r.Status == model.PaymentStatusRefunded {
			return true
		}
	}
	return false
}

func grantEvents(recs []*model.PaymentRecord, at time.Time) []adapter.EntitlementEvent {
	out := make([]adapter.EntitlementEvent, 0, len(recs))
	for _, r := range recs {
		ev := adapter.EntitlementEvent{OwnerID: r.OwnerID, PaymentID: r.ID, OccurredAt: at}
		switch t := r.Target.(type) {
		case model.SubscriptionTarget:
			ev.Type, ev.Plan = adapter.EventSubscriptionActivated, t.Plan
		default:
			ev.Type, ev.ComicID = adapter.EventEntitlementGranted, r.ComicID()
		}
		out = append(out, ev)
	}
	return out
}
