// File: internal/usecase/retry_uc.go
package usecase

import (
	"context"
	"errors"
	"sort"

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
var _ RetryUseCase = (*retryUC)(nil)

type RetryResult struct {
	// Payments holds the retried record and, for bundles, its siblings.
	Payments     []*model.PaymentRecord
	IntentID     string
	ClientSecret string
}

type RetryUseCase interface {
	// Retry issues a new gateway intent for a failed record, or for a pending one whose intent was never created.
	// Every call that passes validation creates a new intent; it is not idempotent.
	Retry(ctx context.Context, paymentID string) (*RetryResult, error)
}

type retryUC struct {
	payments repository.PaymentRepository
	gateway  adapter.PaymentGateway
	tm       repository.TransactionManager
	opts     Options
	log      *zerolog.Logger
}

func NewRetryUseCase(payments repository.PaymentRepository, gateway adapter.PaymentGateway, tm repository.TransactionManager, opts Options, logger *zerolog.Logger) *retryUC {
	return &retryUC{payments: payments, gateway: gateway, tm: tm, opts: opts.withDefaults(), log: logger}
}

func (u *retryUC) Retry(ctx context.Context, paymentID string) (*RetryResult, error) {
	defer logging.TraceDuration(u.log, "RetryUC.Retry")()
	ctx = logging.WithPaymentID(ctx, paymentID)
	log := logging.With(ctx, u.log)

	rec, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	if !rec.IsRetryable() {
		metrics.IncRetry("not_retryable")
		return nil, domain.NewError(domain.CodeNotRetryable, "payment is "+string(rec.Status), nil)
	}
	if rec.RetryCount >= u.opts.RetryLimit {
		metrics.IncRetry("limit")
		return nil, domain.ErrRetryLimitExceeded
	}

	group, err := u.siblings(ctx, rec)
	if err != nil {
		return nil, err
	}
	oldIntent := rec.GatewayIntentID
	// a pending record without intent repeats its unfinished attempt so the gateway can dedupe it
	attempt := rec.RetryCount
	if rec.Status == model.PaymentStatusFailed {
		attempt++
	}

	if oldIntent != "" {
		if err := u.closeIntent(ctx, oldIntent); err != nil {
			return nil, err
		}
	}

	gctx, cancel := u.opts.gatewayCtx(ctx)
	intent, err := u.gateway.CreateIntent(gctx, intentRequest(group, describeGroup(group), attempt))
	cancel()
	if err != nil {
		metrics.IncRetry("gateway_error")
		return nil, gatewayErr(err)
	}

	now := u.opts.now()
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, r := range group {
			ok, err := u.payments.ApplyRetry(ctx, tx, r.ID, repository.PaymentRetried{
				OldIntentID: oldIntent,
				NewIntentID: intent.ID,
				RetriedAt:   now,
			})
			if err != nil {
				return err
			}
			if !ok {
				return errLostRace
			}
		}
		return nil
	})
	if errors.Is(err, errLostRace) {
		metrics.IncRetry("not_retryable")
		log.Warn().Str("intent_id", intent.ID).Msg("retry lost to a concurrent update; new intent abandoned")
		return nil, domain.NewError(domain.CodeNotRetryable, "payment changed during retry", err)
	}
	if err != nil {
		log.Error().Err(err).Str("intent_id", intent.ID).Msg("failed to store retried intent")
		return nil, err
	}

	for _, r := range group {
		r.GatewayIntentID = intent.ID
		r.RetryCount++
		r.LastRetryAt = &now
		r.Status = model.PaymentStatusPending
		r.UpdatedAt = now
	}
	metrics.IncRetry("ok")
	log.Info().Str("intent_id", intent.ID).Int("retry_count", rec.RetryCount).Int("records", len(group)).Msg("payment retried")
	return &RetryResult{Payments: group, IntentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// closeIntent cancels the superseded intent so the customer cannot pay both attempts.
func (u *retryUC) closeIntent(ctx context.Context, intentID string) error {
	gctx, cancel := u.opts.gatewayCtx(ctx)
	info, err := u.gateway.CancelIntent(gctx, intentID)
	cancel()
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		return nil
	case err != nil:
		metrics.IncRetry("gateway_error")
		return gatewayErr(err)
	}
	switch info.Status {
	case adapter.IntentStatusCanceled, adapter.IntentStatusDeclined:
		return nil
	case adapter.IntentStatusSucceeded:
		metrics.IncRetry("not_retryable")
		return domain.NewError(domain.CodeNotRetryable, "payment already completed at the gateway; confirm intent "+intentID, nil)
	default:
		metrics.IncRetry("not_retryable")
		return domain.NewError(domain.CodeNotRetryable, "previous attempt is still in progress at the gateway", nil)
	}
}

// siblings returns every record paid by the same intent as rec, rec included, ordered by id.
// Bundle records that never got an intent are grouped by owner and creation time.
func (u *retryUC) siblings(ctx context.Context, rec *model.PaymentRecord) ([]*model.PaymentRecord, error) {
	if rec.Kind() != model.PaymentKindBundle {
		return []*model.PaymentRecord{rec}, nil
	}

	var (
		candidates []*model.PaymentRecord
		err        error
	)
	if rec.GatewayIntentID != "" {
		candidates, err = u.payments.ListByIntent(ctx, repository.NoTX, rec.GatewayIntentID)
	} else {
		kind, status := model.PaymentKindBundle, model.PaymentStatusPending
		from, to := rec.CreatedAt, rec.CreatedAt.Add(1)
		candidates, err = u.payments.ListByOwner(ctx, repository.NoTX, rec.OwnerID, model.PaymentFilter{
			Kind: &kind, Status: &status, From: &from, To: &to, Limit: 200,
		})
	}
	if err != nil {
		return nil, err
	}

	group := []*model.PaymentRecord{rec}
	for _, c := range candidates {
		if c.ID == rec.ID || c.OwnerID != rec.OwnerID || c.Kind() != model.PaymentKindBundle {
			continue
		}
		if c.GatewayIntentID != rec.GatewayIntentID || !c.CreatedAt.Equal(rec.CreatedAt) {
			continue
		}
		if c.Status != rec.Status || c.RetryCount != rec.RetryCount {
			return nil, domain.NewError(domain.CodeNotRetryable, "bundle siblings are out of step", nil)
		}
		group = append(group, c)
	}
	sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
	return group, nil
}
