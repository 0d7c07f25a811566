package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/metrics"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/usecase"
)

// ExpiryWorker periodically flips subscriptions whose period ended to expired.
// Access checks already compare expires_at; this keeps stored status and gauges honest.
type ExpiryWorker struct {
	interval time.Duration
	access   usecase.AccessUseCase
	now      func() time.Time
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, access usecase.AccessUseCase, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		access:   access,
		now:      time.Now,
		log:      &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce expires due subscriptions and refreshes the subscription gauges.
func (w *ExpiryWorker) RunOnce(ctx context.Context) int {
	n, err := w.access.ExpireSubscriptions(ctx, w.now().UTC())
	if err != nil {
		w.log.Error().Err(err).Msg("expiry worker error")
	}
	counts, err := w.access.CountSubscriptions(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("count subscriptions failed")
		return n
	}
	metrics.SetSubscriptionsTotal(counts)
	return n
}
