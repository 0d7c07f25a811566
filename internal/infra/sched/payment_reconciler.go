package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/config"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/metrics"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/redis"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/worker"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/usecase"
)

// ReconcileReport counts what one reconciler pass did.
type ReconcileReport struct {
	Skipped bool // another instance held the lock

	Confirmed    int
	Declined     int
	StillPending int
	Refunds      int // gateway refunds applied locally
	Errors       int
}

// PaymentReconciler periodically finishes what the request path left open:
// pending records whose confirmation never arrived, and gateway refunds whose
// local revoke never committed (including refunds issued from the gateway dashboard).
type PaymentReconciler struct {
	confirm  usecase.ConfirmUseCase
	refunds  usecase.RefundUseCase
	payments repository.PaymentRepository
	gateway  adapter.PaymentGateway
	locker   redis.Locker // nil runs without a lock
	pool     *worker.Pool // nil confirms inline
	cfg      config.ReconcilerConfig
	now      func() time.Time
	log      *zerolog.Logger
}

func NewPaymentReconciler(
	confirm usecase.ConfirmUseCase,
	refunds usecase.RefundUseCase,
	payments repository.PaymentRepository,
	gateway adapter.PaymentGateway,
	locker redis.Locker,
	pool *worker.Pool,
	cfg config.ReconcilerConfig,
	logger *zerolog.Logger,
) *PaymentReconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.RefundLookback <= 0 {
		cfg.RefundLookback = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	compLog := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		confirm:  confirm,
		refunds:  refunds,
		payments: payments,
		gateway:  gateway,
		locker:   locker,
		pool:     pool,
		cfg:      cfg,
		now:      time.Now,
		log:      &compLog,
	}
}

// WithClock replaces the time source; tests only.
func (w *PaymentReconciler) WithClock(now func() time.Time) *PaymentReconciler {
	w.now = now
	return w
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.cfg.Interval).Msg("Starting payment reconciler")
	t := time.NewTicker(w.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("reconciler pass failed")
			}
		}
	}
}

// RunOnce performs a single pass. It is safe to run from several processes; only
// the holder of the Redis lock does work.
func (w *PaymentReconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport
	if w.locker != nil {
		key := redis.ReconcilerLockKey("payments")
		token, err := w.locker.TryLock(ctx, key, 2*w.cfg.Interval)
		if errors.Is(err, redis.ErrLockHeld) {
			w.log.Debug().Msg("reconciler lock held elsewhere; skipping pass")
			rep.Skipped = true
			return rep, nil
		}
		if err != nil {
			return rep, err
		}
		defer func() {
			// the pass ctx may already be done
			uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := w.locker.Unlock(uctx, key, token); err != nil {
				w.log.Warn().Err(err).Msg("reconciler unlock failed")
			}
		}()
	}

	now := w.now()
	if err := w.reconcilePending(ctx, now, &rep); err != nil {
		return rep, err
	}
	w.replayRefunds(ctx, now, &rep)

	w.log.Info().
		Int("confirmed", rep.Confirmed).
		Int("declined", rep.Declined).
		Int("still_pending", rep.StillPending).
		Int("refunds", rep.Refunds).
		Int("errors", rep.Errors).
		Msg("reconciler pass done")
	return rep, nil
}

func (w *PaymentReconciler) reconcilePending(ctx context.Context, now time.Time, rep *ReconcileReport) error {
	pending, err := w.payments.ListPendingOlderThan(ctx, repository.NoTX, now.Add(-w.cfg.StaleAfter), w.cfg.BatchSize)
	if err != nil {
		return err
	}
	// bundle siblings share an intent; confirm each intent once
	seen := make(map[string]bool, len(pending))
	var intents []string
	for _, p := range pending {
		if p.GatewayIntentID == "" || seen[p.GatewayIntentID] {
			continue
		}
		seen[p.GatewayIntentID] = true
		intents = append(intents, p.GatewayIntentID)
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(intentID, result string, err error) {
		metrics.IncReconciled("pending", result)
		mu.Lock()
		defer mu.Unlock()
		switch result {
		case "confirmed", "replayed":
			rep.Confirmed++
		case "declined":
			rep.Declined++
		case "pending":
			rep.StillPending++
		default:
			rep.Errors++
			w.log.Warn().Err(err).Str("intent_id", intentID).Msg("reconcile confirm failed")
		}
	}

	for _, intentID := range intents {
		intentID := intentID
		task := func(context.Context) error {
			defer wg.Done()
			res, err := w.confirm.Confirm(ctx, intentID)
			record(intentID, confirmOutcome(res, err), err)
			return nil
		}
		wg.Add(1)
		if w.pool == nil {
			_ = task(ctx)
			continue
		}
		if err := w.pool.SubmitWait(ctx, task); err != nil {
			wg.Done()
			record(intentID, "error", err)
		}
	}
	wg.Wait()
	return nil
}

func confirmOutcome(res *usecase.ConfirmResult, err error) string {
	switch {
	case err == nil && res != nil && res.Replayed:
		return "replayed"
	case err == nil:
		return "confirmed"
	case errors.Is(err, domain.ErrPaymentDeclined):
		return "declined"
	case errors.Is(err, domain.ErrPaymentNotSucceeded):
		return "pending"
	default:
		return "error"
	}
}

func (w *PaymentReconciler) replayRefunds(ctx context.Context, now time.Time, rep *ReconcileReport) {
	refunds, err := w.gateway.ListRefunds(ctx, now.Add(-w.cfg.RefundLookback), w.cfg.BatchSize)
	if err != nil {
		rep.Errors++
		w.log.Warn().Err(err).Msg("list gateway refunds failed")
		return
	}
	for _, r := range refunds {
		if r.Failed() {
			continue
		}
		res, err := w.refunds.ReplayRevoke(ctx, r.ID)
		switch {
		case err == nil && res.Applied:
			rep.Refunds++
			metrics.IncReconciled("refund", "applied")
		case err == nil:
			metrics.IncReconciled("refund", "noop")
		case domain.CodeOf(err) == domain.CodeNotFound:
			// refunds of payments this service never recorded, or of a whole bundle without metadata
			metrics.IncReconciled("refund", "unattributed")
			w.log.Debug().Err(err).Str("refund_id", r.ID).Msg("refund not attributable")
		default:
			rep.Errors++
			metrics.IncReconciled("refund", "error")
			w.log.Warn().Err(err).Str("refund_id", r.ID).Msg("refund replay failed")
		}
	}
}
