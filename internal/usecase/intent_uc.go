// File: internal/usecase/intent_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/logging"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/metrics"
)

// Compile-time check
var _ IntentUseCase = (*intentUC)(nil)

// IntentResult is what a client needs to complete a single purchase.
type IntentResult struct {
	Payment      *model.PaymentRecord
	IntentID     string
	ClientSecret string
}

type BundleIntentResult struct {
	Payments        []*model.PaymentRecord
	IntentID        string
	ClientSecret    string
	ComicCount      int
	OriginalPrice   int64
	DiscountedPrice int64
	Savings         int64
	Currency        string
}

type SubscriptionIntentResult struct {
	Payment      *model.PaymentRecord
	IntentID     string
	ClientSecret string
	Plan         *model.SubscriptionPlan
}

type IntentUseCase interface {
	// CreateSingleIntent starts the purchase of one comic. currency may be empty to use the comic's own.
	CreateSingleIntent(ctx context.Context, ownerID, comicID, currency string) (*IntentResult, error)
	// CreateBundleIntent starts one discounted checkout for at least two distinct comics.
	CreateBundleIntent(ctx context.Context, ownerID string, comicIDs []string, discountPercent decimal.Decimal) (*BundleIntentResult, error)
	CreateSubscriptionIntent(ctx context.Context, ownerID, plan string) (*SubscriptionIntentResult, error)
}

type intentUC struct {
	payments     repository.PaymentRepository
	entitlements repository.EntitlementRepository
	catalog      adapter.Catalog
	gateway      adapter.PaymentGateway
	plans        *PlanUseCase
	tm           repository.TransactionManager
	opts         Options
	log          *zerolog.Logger
}

func NewIntentUseCase(
	payments repository.PaymentRepository,
	entitlements repository.EntitlementRepository,
	catalog adapter.Catalog,
	gateway adapter.PaymentGateway,
	plans *PlanUseCase,
	tm repository.TransactionManager,
	opts Options,
	logger *zerolog.Logger,
) *intentUC {
	return &intentUC{
		payments:     payments,
		entitlements: entitlements,
		catalog:      catalog,
		gateway:      gateway,
		plans:        plans,
		tm:           tm,
		opts:         opts.withDefaults(),
		log:          logger,
	}
}

func (u *intentUC) CreateSingleIntent(ctx context.Context, ownerID, comicID, currency string) (*IntentResult, error) {
	defer logging.TraceDuration(u.log, "IntentUC.CreateSingleIntent")()
	ctx = logging.WithUserID(ctx, ownerID)

	comic, err := u.purchasableComic(ctx, ownerID, comicID)
	if err != nil {
		return nil, err
	}
	if cur := model.NormalizeCurrency(currency); cur != "" && cur != comic.Currency {
		return nil, domain.NewError(domain.CodeNotPurchasable, fmt.Sprintf("comic is sold in %s, not %s", comic.Currency, cur), nil)
	}

	rec := u.newRecord(ownerID, model.SingleTarget{ComicID: comic.ID}, comic.Price, comic.Currency)
	if err := u.payments.Save(ctx, repository.NoTX, rec); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(model.PaymentKindSingle), string(model.PaymentStatusPending))

	intent, err := u.openIntent(ctx, []*model.PaymentRecord{rec}, "Comic "+comic.Title)
	if err != nil {
		return nil, err
	}
	return &IntentResult{Payment: rec, IntentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (u *intentUC) CreateBundleIntent(ctx context.Context, ownerID string, comicIDs []string, discountPercent decimal.Decimal) (*BundleIntentResult, error) {
	defer logging.TraceDuration(u.log, "IntentUC.CreateBundleIntent")()
	ctx = logging.WithUserID(ctx, ownerID)

	ids, err := bundleIDs(comicIDs)
	if err != nil {
		return nil, err
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return nil, domain.NewError(domain.CodeInvalidBundle, "discount must be in [0, 100)", nil)
	}

	comics := make([]*model.Comic, 0, len(ids))
	prices := make([]int64, 0, len(ids))
	for _, id := range ids {
		c, err := u.purchasableComic(ctx, ownerID, id)
		if err != nil {
			var de *domain.Error
			if errors.As(err, &de) && de.Code != domain.CodeInternal {
				return nil, domain.NewError(domain.CodeInvalidBundle, fmt.Sprintf("comic %s: %s", id, de.Msg), err)
			}
			return nil, err
		}
		if len(comics) > 0 && c.Currency != comics[0].Currency {
			return nil, domain.NewError(domain.CodeInvalidBundle, "bundle comics must share one currency", nil)
		}
		comics = append(comics, c)
		prices = append(prices, c.Price)
	}

	price := model.PriceBundle(prices, discountPercent)
	for _, share := range price.PerItem {
		if share <= 0 {
			return nil, domain.NewError(domain.CodeInvalidBundle, "discount leaves a comic with nothing to pay", nil)
		}
	}
	recs := make([]*model.PaymentRecord, len(comics))
	for i, c := range comics {
		recs[i] = u.newRecord(ownerID, model.BundleTarget{ComicID: c.ID, DiscountPercent: discountPercent}, price.PerItem[i], c.Currency)
	}
	// siblings share created_at; it groups them until an intent id exists
	for _, r := range recs[1:] {
		r.CreatedAt, r.UpdatedAt = recs[0].CreatedAt, recs[0].UpdatedAt
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, r := range recs {
			if err := u.payments.Save(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for range recs {
		metrics.IncPayment(string(model.PaymentKindBundle), string(model.PaymentStatusPending))
	}

	intent, err := u.openIntent(ctx, recs, describeGroup(recs))
	if err != nil {
		return nil, err
	}
	return &BundleIntentResult{
		Payments:        recs,
		IntentID:        intent.ID,
		ClientSecret:    intent.ClientSecret,
		ComicCount:      price.ComicCount,
		OriginalPrice:   price.OriginalPrice,
		DiscountedPrice: price.DiscountedPrice,
		Savings:         price.Savings,
		Currency:        comics[0].Currency,
	}, nil
}

func (u *intentUC) CreateSubscriptionIntent(ctx context.Context, ownerID, planCode string) (*SubscriptionIntentResult, error) {
	defer logging.TraceDuration(u.log, "IntentUC.CreateSubscriptionIntent")()
	ctx = logging.WithUserID(ctx, ownerID)

	if ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	plan, err := u.plans.Get(ctx, planCode)
	if err != nil {
		return nil, err
	}

	rec := u.newRecord(ownerID, model.SubscriptionTarget{Plan: plan.Code}, plan.Price, plan.Currency)
	if err := u.payments.Save(ctx, repository.NoTX, rec); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(model.PaymentKindSubscription), string(model.PaymentStatusPending))

	intent, err := u.openIntent(ctx, []*model.PaymentRecord{rec}, "Subscription "+plan.Name)
	if err != nil {
		return nil, err
	}
	return &SubscriptionIntentResult{Payment: rec, IntentID: intent.ID, ClientSecret: intent.ClientSecret, Plan: plan}, nil
}

// purchasableComic runs every check that must pass before money is requested.
func (u *intentUC) purchasableComic(ctx context.Context, ownerID, comicID string) (*model.Comic, error) {
	if ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if strings.TrimSpace(comicID) == "" {
		return nil, domain.ErrInvalidComic
	}
	comic, err := u.catalog.GetComic(ctx, comicID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidComic
		}
		return nil, err
	}
	// subscription grants lapse with the subscription, so they never block a purchase
	g, err := u.entitlements.Find(ctx, repository.NoTX, ownerID, comic.ID)
	switch {
	case err == nil && (g.AccessType == model.AccessTypePurchased || g.AccessType == model.AccessTypeFree):
		return nil, domain.ErrAlreadyOwned
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	if comic.IsFree || comic.Price <= 0 {
		return nil, domain.ErrNotPurchasable
	}
	return comic, nil
}

func (u *intentUC) newRecord(ownerID string, target model.PaymentTarget, amount int64, currency string) *model.PaymentRecord {
	now := u.opts.now()
	return &model.PaymentRecord{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Target:    target,
		Amount:    amount,
		Currency:  model.NormalizeCurrency(currency),
		Status:    model.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// openIntent asks the gateway for one intent covering recs and stores its id on every record.
// On gateway failure the records stay pending without an intent and remain retryable.
func (u *intentUC) openIntent(ctx context.Context, recs []*model.PaymentRecord, description string) (adapter.Intent, error) {
	log := logging.With(ctx, u.log)

	gctx, cancel := u.opts.gatewayCtx(ctx)
	intent, err := u.gateway.CreateIntent(gctx, intentRequest(recs, description, 0))
	cancel()
	if err != nil {
		err = gatewayErr(err)
		log.Warn().Err(err).Strs("payment_ids", recordIDs(recs)).Msg("gateway intent creation failed; records left pending")
		return adapter.Intent{}, fmt.Errorf("payment %s: %w", recs[0].ID, err)
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, r := range recs {
			if err := u.payments.SetIntent(ctx, tx, r.ID, intent.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("intent_id", intent.ID).Msg("failed to store gateway intent id")
		return adapter.Intent{}, err
	}
	for _, r := range recs {
		r.GatewayIntentID = intent.ID
	}
	log.Info().Str("intent_id", intent.ID).Strs("payment_ids", recordIDs(recs)).Int64("amount", totalAmount(recs)).Msg("payment intent created")
	return intent, nil
}

// bundleIDs trims the ids and rejects blanks, duplicates and bundles of fewer than two comics.
func bundleIDs(ids []string) ([]string, error) {
	if len(ids) < 2 {
		return nil, domain.NewError(domain.CodeInvalidBundle, "a bundle needs at least two distinct comics", nil)
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for i, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, domain.NewError(domain.CodeInvalidBundle, fmt.Sprintf("comic id %d is blank", i), nil)
		}
		if seen[id] {
			return nil, domain.NewError(domain.CodeInvalidBundle, "comic "+id+" is listed twice", nil)
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
