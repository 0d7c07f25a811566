// File: internal/app/app.go
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/config"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/adapters/events"
	payAdapters "github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/adapters/payment"
	pg "github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/db/postgres"
	red "github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/redis"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/usecase"
)

// Gateway is what the service needs from a payment provider.
type Gateway interface {
	adapter.PaymentGateway
	adapter.WebhookVerifier
}

// App holds the wired dependencies shared by the service and the ops CLI.
type App struct {
	Cfg *config.Config
	Log *zerolog.Logger

	Pool      *pgxpool.Pool
	Redis     *red.Client
	Gateway   Gateway
	Publisher adapter.EventPublisher

	Payments repository.PaymentRepository
	Users    repository.UserRepository
	Comics   repository.ComicRepository
	TM       repository.TransactionManager

	Plans    *usecase.PlanUseCase
	Intents  usecase.IntentUseCase
	Confirm  usecase.ConfirmUseCase
	Retry    usecase.RetryUseCase
	Refund   usecase.RefundUseCase
	Invoices usecase.InvoiceUseCase
	Access   usecase.AccessUseCase
	Profiles usecase.UserUseCase
}

// New connects to Postgres, Redis, the gateway and the broker, and builds the use cases.
// On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (_ *App, err error) {
	a := &App{Cfg: cfg, Log: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Pool, err = pg.NewPgxPool(ctx, cfg.Database); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if a.Redis, err = red.NewClient(ctx, &cfg.Redis); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if a.Gateway, err = newGateway(cfg, logger); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	if a.Publisher, err = newPublisher(cfg, logger); err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}

	a.Payments = pg.NewPaymentRepo(a.Pool)
	a.Users = pg.NewUserRepoCacheDecorator(pg.NewUserRepo(a.Pool), a.Redis)
	catalog := pg.NewComicCatalog(pg.NewComicRepo(a.Pool), a.Redis, cfg.Redis.TTL, logger)
	a.Comics = catalog
	entitlements := pg.NewEntitlementRepo(a.Pool)
	subs := pg.NewSubscriptionRepo(a.Pool)
	a.TM = pg.NewTxManager(a.Pool)

	if a.Plans, err = usecase.NewPlanUseCase(PlansFromConfig(cfg.Payments)...); err != nil {
		return nil, fmt.Errorf("plans: %w", err)
	}
	opts := usecase.Options{RetryLimit: cfg.Payments.RetryLimit, GatewayTimeout: cfg.Payments.GatewayTimeout}

	a.Intents = usecase.NewIntentUseCase(a.Payments, entitlements, catalog, a.Gateway, a.Plans, a.TM, opts, component(logger, "IntentUC"))
	a.Confirm = usecase.NewConfirmUseCase(a.Payments, entitlements, subs, a.Plans, a.Gateway, a.Publisher, a.TM, opts, component(logger, "ConfirmUC"))
	a.Retry = usecase.NewRetryUseCase(a.Payments, a.Gateway, a.TM, opts, component(logger, "RetryUC"))
	a.Refund = usecase.NewRefundUseCase(a.Payments, entitlements, subs, a.Gateway, a.Publisher, a.TM, opts, component(logger, "RefundUC"))
	a.Invoices = usecase.NewInvoiceUseCase(a.Payments, a.Users, a.Plans, component(logger, "InvoiceUC"))
	a.Access = usecase.NewAccessUseCase(a.Payments, entitlements, subs, catalog, a.Publisher, opts, component(logger, "AccessUC"))
	a.Profiles = usecase.NewUserUseCase(a.Users, a.TM, component(logger, "UserUC"))
	return a, nil
}

// Close releases connections in reverse order of New. Safe on a partially built App.
func (a *App) Close() {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Log.Warn().Err(err).Msg("close publisher")
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// PlansFromConfig converts configured plans; a missing currency falls back to the default.
func PlansFromConfig(cfg config.PaymentsConfig) []*model.SubscriptionPlan {
	out := make([]*model.SubscriptionPlan, 0, len(cfg.Plans))
	for _, p := range cfg.Plans {
		cur := strings.ToUpper(p.Currency)
		if cur == "" {
			cur = cfg.DefaultCurrency
		}
		out = append(out, &model.SubscriptionPlan{
			Code:     p.Code,
			Name:     p.Name,
			Price:    p.Price,
			Currency: cur,
			Period:   p.Period,
			Benefits: p.Benefits,
		})
	}
	return out
}

func newGateway(cfg *config.Config, logger *zerolog.Logger) (Gateway, error) {
	if cfg.Stripe.SecretKey == "" {
		logger.Warn().Msg("stripe.secret_key empty: using the in-memory gateway")
		return payAdapters.NewNoopPaymentGateway(), nil
	}
	return payAdapters.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Payments.GatewayTimeout)
}

func newPublisher(cfg *config.Config, logger *zerolog.Logger) (adapter.EventPublisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info().Msg("kafka.brokers empty: entitlement events go to the log")
		return events.NewLogPublisher(logger), nil
	}
	producer, err := events.NewSaramaProducer(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	return events.NewKafkaPublisher(producer, cfg.Kafka.Topic, logger), nil
}

func component(logger *zerolog.Logger, name string) *zerolog.Logger {
	l := logger.With().Str("component", name).Logger()
	return &l
}
