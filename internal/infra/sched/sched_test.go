//go:build !integration

package sched

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/config"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/redis"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/worker"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ---- fakes ----

type fakeConfirm struct {
	mu    sync.Mutex
	calls []string
	fn    func(intentID string) (*usecase.ConfirmResult, error)
}

func (f *fakeConfirm) Confirm(ctx context.Context, intentID string) (*usecase.ConfirmResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, intentID)
	f.mu.Unlock()
	return f.fn(intentID)
}

type fakeRefunds struct {
	usecase.RefundUseCase
	calls []string
	fn    func(refundID string) (*usecase.RefundResult, error)
}

func (f *fakeRefunds) ReplayRevoke(ctx context.Context, refundID string) (*usecase.RefundResult, error) {
	f.calls = append(f.calls, refundID)
	return f.fn(refundID)
}

type fakePayments struct {
	repository.PaymentRepository
	pending []*model.PaymentRecord
	cutoff  time.Time
}

func (f *fakePayments) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error) {
	f.cutoff = olderThan
	return f.pending, nil
}

type fakeGateway struct {
	adapter.PaymentGateway
	refunds []adapter.RefundResult
	since   time.Time
}

func (f *fakeGateway) ListRefunds(ctx context.Context, since time.Time, limit int) ([]adapter.RefundResult, error) {
	f.since = since
	return f.refunds, nil
}

type fakeLocker struct {
	held     bool
	locked   int
	unlocked int
}

func (f *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if f.held {
		return "", redis.ErrLockHeld
	}
	f.locked++
	return "tok", nil
}

func (f *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	f.unlocked++
	return nil
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func reconcilerCfg() config.ReconcilerConfig {
	return config.ReconcilerConfig{Interval: time.Minute, StaleAfter: 10 * time.Minute, RefundLookback: 24 * time.Hour, BatchSize: 50}
}

func TestPaymentReconciler_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("should confirm each stale intent once", func(t *testing.T) {
		// --- Arrange ---
		payments := &fakePayments{pending: []*model.PaymentRecord{
			{ID: "p1", GatewayIntentID: "pi_bundle"},
			{ID: "p2", GatewayIntentID: "pi_bundle"},
			{ID: "p3", GatewayIntentID: "pi_single"},
			{ID: "p4", GatewayIntentID: "pi_declined"},
		}}
		confirm := &fakeConfirm{fn: func(id string) (*usecase.ConfirmResult, error) {
			switch id {
			case "pi_bundle":
				return &usecase.ConfirmResult{}, nil
			case "pi_declined":
				return nil, domain.ErrPaymentDeclined
			default:
				return nil, domain.ErrPaymentNotSucceeded
			}
		}}
		pool := worker.NewPool(2, newTestLogger())
		pool.Start(ctx)
		defer pool.Stop()
		locker := &fakeLocker{}
		r := NewPaymentReconciler(confirm, &fakeRefunds{}, payments, &fakeGateway{}, locker, pool, reconcilerCfg(), newTestLogger()).
			WithClock(func() time.Time { return testNow })

		// --- Act ---
		rep, err := r.RunOnce(ctx)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		sort.Strings(confirm.calls)
		if len(confirm.calls) != 3 || confirm.calls[0] != "pi_bundle" {
			t.Errorf("expected one call per intent, got %v", confirm.calls)
		}
		if rep.Confirmed != 1 || rep.Declined != 1 || rep.StillPending != 1 || rep.Errors != 0 {
			t.Errorf("unexpected report: %+v", rep)
		}
		if want := testNow.Add(-10 * time.Minute); !payments.cutoff.Equal(want) {
			t.Errorf("expected cutoff %s, got %s", want, payments.cutoff)
		}
		if locker.locked != 1 || locker.unlocked != 1 {
			t.Errorf("expected lock then unlock, got %d/%d", locker.locked, locker.unlocked)
		}
	})

	t.Run("should skip the pass while another instance holds the lock", func(t *testing.T) {
		confirm := &fakeConfirm{fn: func(string) (*usecase.ConfirmResult, error) { return &usecase.ConfirmResult{}, nil }}
		payments := &fakePayments{pending: []*model.PaymentRecord{{ID: "p1", GatewayIntentID: "pi_1"}}}
		r := NewPaymentReconciler(confirm, &fakeRefunds{}, payments, &fakeGateway{}, &fakeLocker{held: true}, nil, reconcilerCfg(), newTestLogger())

		rep, err := r.RunOnce(ctx)

		if err != nil || !rep.Skipped {
			t.Fatalf("expected a skipped pass, got %+v / %v", rep, err)
		}
		if len(confirm.calls) != 0 {
			t.Error("expected no confirmations")
		}
	})

	t.Run("should replay recent gateway refunds", func(t *testing.T) {
		// --- Arrange ---
		gw := &fakeGateway{refunds: []adapter.RefundResult{
			{ID: "re_failed", Status: "failed"},
			{ID: "re_new", Status: "succeeded"},
			{ID: "re_done", Status: "succeeded"},
			{ID: "re_foreign", Status: "succeeded"},
			{ID: "re_broken", Status: "succeeded"},
		}}
		refunds := &fakeRefunds{fn: func(id string) (*usecase.RefundResult, error) {
			switch id {
			case "re_new":
				return &usecase.RefundResult{RefundID: id, Applied: true}, nil
			case "re_done":
				return &usecase.RefundResult{RefundID: id}, nil
			case "re_foreign":
				return nil, domain.ErrPaymentNotFound
			default:
				return nil, domain.ErrOperationFailed
			}
		}}
		confirm := &fakeConfirm{fn: func(string) (*usecase.ConfirmResult, error) { return nil, nil }}
		r := NewPaymentReconciler(confirm, refunds, &fakePayments{}, gw, nil, nil, reconcilerCfg(), newTestLogger()).
			WithClock(func() time.Time { return testNow })

		// --- Act ---
		rep, err := r.RunOnce(ctx)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rep.Refunds != 1 || rep.Errors != 1 {
			t.Errorf("unexpected report: %+v", rep)
		}
		if len(refunds.calls) != 4 {
			t.Errorf("expected failed refunds to be skipped, got calls %v", refunds.calls)
		}
		if want := testNow.Add(-24 * time.Hour); !gw.since.Equal(want) {
			t.Errorf("expected lookback from %s, got %s", want, gw.since)
		}
	})
}

type fakeAccess struct {
	usecase.AccessUseCase
	expiredAt time.Time
	n         int
	err       error
}

func (f *fakeAccess) ExpireSubscriptions(ctx context.Context, now time.Time) (int, error) {
	f.expiredAt = now
	return f.n, f.err
}

func (f *fakeAccess) CountSubscriptions(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	return map[model.SubscriptionStatus]int{model.SubscriptionStatusActive: 2, model.SubscriptionStatusExpired: f.n}, nil
}

func TestExpiryWorker_RunOnce(t *testing.T) {
	t.Run("should expire due subscriptions at the current time", func(t *testing.T) {
		acc := &fakeAccess{n: 3}
		w := NewExpiryWorker(time.Hour, acc, newTestLogger())
		w.now = func() time.Time { return testNow }

		n := w.RunOnce(context.Background())

		if n != 3 || !acc.expiredAt.Equal(testNow) {
			t.Errorf("expected 3 expiries at %s, got %d at %s", testNow, n, acc.expiredAt)
		}
	})

	t.Run("should keep going when the store fails", func(t *testing.T) {
		acc := &fakeAccess{err: errors.New("db down")}
		w := NewExpiryWorker(0, acc, newTestLogger())

		if n := w.RunOnce(context.Background()); n != 0 {
			t.Errorf("expected 0, got %d", n)
		}
		if w.interval != time.Hour {
			t.Errorf("expected the default interval, got %s", w.interval)
		}
	})
}
