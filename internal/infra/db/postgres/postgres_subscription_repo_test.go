//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
)

func TestSubscriptionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewSubscriptionRepo(testPool)
	payments := NewPaymentRepo(testPool)
	monthly, _ := model.NewSubscriptionPlan("monthly", "Monthly", 999, "USD", 30*24*time.Hour, nil)

	t.Run("should report none for an owner who never subscribed", func(t *testing.T) {
		cleanup(t)
		s, err := repo.FindByOwner(ctx, nil, "nobody")
		if err != nil {
			t.Fatalf("FindByOwner failed: %v", err)
		}
		if s.Status != model.SubscriptionStatusNone || s.IsLiveAt(time.Now()) {
			t.Errorf("expected no subscription, got %+v", s)
		}
	})

	t.Run("should activate, cancel by payment and expire", func(t *testing.T) {
		cleanup(t)
		p := newPendingRecord("o1", model.SubscriptionTarget{Plan: "monthly"}, 999, "pi_s", time.Now())
		payments.Save(ctx, nil, p)

		now := time.Now().UTC()
		state, _ := model.ActivateSubscription("o1", monthly, p.ID, now)
		if err := repo.Save(ctx, nil, state); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		got, _ := repo.FindByOwner(ctx, nil, "o1")
		if !got.IsLiveAt(now.Add(29*24*time.Hour)) || got.IsLiveAt(now.Add(31*24*time.Hour)) {
			t.Errorf("unexpected liveness window for %+v", got)
		}

		if ok, _ := repo.CancelIfActivatedBy(ctx, nil, "o1", "other"); ok {
			t.Error("cancel with a foreign payment must be a no-op")
		}
		if ok, err := repo.CancelIfActivatedBy(ctx, nil, "o1", p.ID); err != nil || !ok {
			t.Fatalf("expected cancel to apply, got ok=%v err=%v", ok, err)
		}

		state2, _ := model.ActivateSubscription("o2", monthly, p.ID, now.Add(-31*24*time.Hour))
		repo.Save(ctx, nil, state2)
		n, err := repo.ExpireDue(ctx, nil, now)
		if err != nil || n != 1 {
			t.Fatalf("expected one expiry, got n=%d err=%v", n, err)
		}

		counts, _ := repo.CountByStatus(ctx, nil)
		if counts[model.SubscriptionStatusCanceled] != 1 || counts[model.SubscriptionStatusExpired] != 1 {
			t.Errorf("unexpected counts %v", counts)
		}
	})
}
