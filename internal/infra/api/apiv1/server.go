package apiv1

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/logging"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/redis"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/usecase"
)

// RateLimiter is satisfied by redis.RateLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Deps are the collaborators of the v1 API. Limiter may be nil.
type Deps struct {
	Intents  usecase.IntentUseCase
	Confirm  usecase.ConfirmUseCase
	Retry    usecase.RetryUseCase
	Refund   usecase.RefundUseCase
	Invoices usecase.InvoiceUseCase
	Access   usecase.AccessUseCase
	Users    usecase.UserUseCase
	Plans    *usecase.PlanUseCase
	Webhooks adapter.WebhookVerifier
	Auth     *Authenticator

	// BundleDiscount is the discount every buyer gets on a bundle.
	BundleDiscount decimal.Decimal

	Limiter    RateLimiter
	RateLimit  int
	RateWindow time.Duration
}

type Server struct {
	Deps
	log *zerolog.Logger
}

func NewServer(deps Deps, logger *zerolog.Logger) *Server {
	if deps.RateLimit <= 0 {
		deps.RateLimit = 20
	}
	if deps.RateWindow <= 0 {
		deps.RateWindow = time.Minute
	}
	apiLog := logger.With().Str("component", "apiv1").Logger()
	return &Server{Deps: deps, log: &apiLog}
}

// RegisterAPIV1 mounts every /api/v1 route on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1", func(r chi.Router) {
		// authenticated by signature, not by bearer token
		r.Post("/webhooks/stripe", s.handleStripeWebhook)
		r.Get("/plans", s.listPlans)

		r.Group(func(r chi.Router) {
			r.Use(s.Auth.RequireAuth)

			r.Route("/payments", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(s.rateLimit("intent"))
					r.Post("/intents/single", s.createSingleIntent)
					r.Post("/intents/bundle", s.createBundleIntent)
					r.Post("/intents/subscription", s.createSubscriptionIntent)
				})
				r.Post("/confirm", s.confirm)
				r.Get("/", s.listPayments)
				r.Get("/{id}", s.getPayment)
				r.Post("/{id}/retry", s.retry)
				r.Post("/{id}/refund", s.refund)
				r.Get("/{id}/invoice", s.invoice)
			})

			r.Get("/comics/{id}/access", s.hasAccess)
			r.Post("/comics/{id}/library", s.addToLibrary)

			r.Get("/me/library", s.listLibrary)
			r.Get("/me/subscription", s.getSubscription)
			r.Get("/me/profile", s.getProfile)
			r.Put("/me/profile", s.putProfile)
		})
	})
}

// rateLimit caps an owner's calls to one action per window. Redis errors let the request through.
func (s *Server) rateLimit(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principalFrom(r.Context())
			if s.Limiter == nil || p == nil {
				next.ServeHTTP(w, r)
				return
			}
			ok, err := s.Limiter.Allow(r.Context(), redis.OwnerActionKey(p.OwnerID, action), s.RateLimit, s.RateWindow)
			if err != nil {
				logging.With(r.Context(), s.log).Warn().Err(err).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Retry-After", s.RateWindow.String())
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Code: "RATE_LIMITED", Message: "too many " + action + " requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
