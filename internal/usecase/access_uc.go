// File: internal/usecase/access_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/logging"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/metrics"
)

// Compile-time check
var _ AccessUseCase = (*accessUC)(nil)

type AccessUseCase interface {
	HasAccess(ctx context.Context, ownerID, comicID string) (bool, error)
	// GetPayment returns a record owned by ownerID. An empty ownerID skips the ownership check.
	GetPayment(ctx context.Context, ownerID, paymentID string) (*model.PaymentRecord, error)
	// ListPaymentHistory returns the owner's records, newest first.
	ListPaymentHistory(ctx context.Context, ownerID string, f model.PaymentFilter) ([]*model.PaymentRecord, error)
	// AddToLibrary grants a free comic, or any comic while the owner's subscription is live.
	AddToLibrary(ctx context.Context, ownerID, comicID string) (*model.EntitlementGrant, error)
	ListLibrary(ctx context.Context, ownerID string) ([]*model.EntitlementGrant, error)
	GetSubscription(ctx context.Context, ownerID string) (*model.SubscriptionState, error)
	// ExpireSubscriptions marks active subscriptions whose period ended before now as expired.
	ExpireSubscriptions(ctx context.Context, now time.Time) (int, error)
	CountSubscriptions(ctx context.Context) (map[model.SubscriptionStatus]int, error)
}

type accessUC struct {
	payments     repository.PaymentRepository
	entitlements repository.EntitlementRepository
	subs         repository.SubscriptionRepository
	catalog      adapter.Catalog
	pub          adapter.EventPublisher
	opts         Options
	log          *zerolog.Logger
}

func NewAccessUseCase(
	payments repository.PaymentRepository,
	entitlements repository.EntitlementRepository,
	subs repository.SubscriptionRepository,
	catalog adapter.Catalog,
	pub adapter.EventPublisher,
	opts Options,
	logger *zerolog.Logger,
) *accessUC {
	return &accessUC{
		payments:     payments,
		entitlements: entitlements,
		subs:         subs,
		catalog:      catalog,
		pub:          pub,
		opts:         opts.withDefaults(),
		log:          logger,
	}
}

func (u *accessUC) HasAccess(ctx context.Context, ownerID, comicID string) (bool, error) {
	defer logging.TraceDuration(u.log, "AccessUC.HasAccess")()
	if ownerID == "" || comicID == "" {
		return false, domain.ErrInvalidArgument
	}
	now := u.opts.now()

	g, err := u.entitlements.Find(ctx, repository.NoTX, ownerID, comicID)
	switch {
	case err == nil:
		if g.AccessType != model.AccessTypeSubscription {
			return true, nil
		}
	case !errors.Is(err, domain.ErrNotFound):
		return false, err
	}

	// a subscription grant only counts while the subscription is live, which the next check covers
	s, err := u.subs.FindByOwner(ctx, repository.NoTX, ownerID)
	if err != nil {
		return false, err
	}
	if s.IsLiveAt(now) {
		return true, nil
	}

	free, err := u.catalog.IsFree(ctx, comicID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, domain.ErrInvalidComic
		}
		return false, err
	}
	return free, nil
}

func (u *accessUC) GetPayment(ctx context.Context, ownerID, paymentID string) (*model.PaymentRecord, error) {
	rec, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	if ownerID != "" && rec.OwnerID != ownerID {
		return nil, domain.ErrPaymentNotFound
	}
	return rec, nil
}

func (u *accessUC) ListPaymentHistory(ctx context.Context, ownerID string, f model.PaymentFilter) ([]*model.PaymentRecord, error) {
	defer logging.TraceDuration(u.log, "AccessUC.ListPaymentHistory")()
	if ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, domain.ErrInvalidArgument
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, domain.ErrInvalidArgument
	}
	recs, err := u.payments.ListByOwner(ctx, repository.NoTX, ownerID, f)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if recs == nil {
		recs = []*model.PaymentRecord{}
	}
	return recs, nil
}

func (u *accessUC) AddToLibrary(ctx context.Context, ownerID, comicID string) (*model.EntitlementGrant, error) {
	defer logging.TraceDuration(u.log, "AccessUC.AddToLibrary")()
	ctx = logging.WithUserID(ctx, ownerID)
	if ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}

	comic, err := u.catalog.GetComic(ctx, comicID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidComic
		}
		return nil, err
	}
	if g, err := u.entitlements.Find(ctx, repository.NoTX, ownerID, comic.ID); err == nil {
		return g, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := u.opts.now()
	g := &model.EntitlementGrant{OwnerID: ownerID, ComicID: comic.ID, GrantedAt: now}
	if comic.IsFree {
		g.AccessType = model.AccessTypeFree
	} else {
		sub, err := u.subs.FindByOwner(ctx, repository.NoTX, ownerID)
		if err != nil {
			return nil, err
		}
		if !sub.IsLiveAt(now) {
			return nil, domain.ErrNotPurchasable
		}
		g.AccessType = model.AccessTypeSubscription
	}

	if err := u.entitlements.Upsert(ctx, repository.NoTX, g); err != nil {
		return nil, err
	}
	publish(ctx, u.pub, logging.With(ctx, u.log), adapter.EntitlementEvent{
		Type: adapter.EventEntitlementGranted, OwnerID: ownerID, ComicID: comic.ID, OccurredAt: now,
	})
	return g, nil
}

func (u *accessUC) ListLibrary(ctx context.Context, ownerID string) ([]*model.EntitlementGrant, error) {
	if ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.entitlements.ListByOwner(ctx, repository.NoTX, ownerID)
}

func (u *accessUC) GetSubscription(ctx context.Context, ownerID string) (*model.SubscriptionState, error) {
	if ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.subs.FindByOwner(ctx, repository.NoTX, ownerID)
}

func (u *accessUC) ExpireSubscriptions(ctx context.Context, now time.Time) (int, error) {
	defer logging.TraceDuration(u.log, "AccessUC.ExpireSubscriptions")()
	n, err := u.subs.ExpireDue(ctx, repository.NoTX, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.IncSubscriptionsExpired(n)
		u.log.Info().Int("count", n).Msg("subscriptions expired")
	}
	return n, nil
}

func (u *accessUC) CountSubscriptions(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	return u.subs.CountByStatus(ctx, repository.NoTX)
}
