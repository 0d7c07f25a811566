// File: internal/infra/adapters/payment/stripe_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/metrics"
)

var (
	_ adapter.PaymentGateway  = (*StripeGateway)(nil)
	_ adapter.WebhookVerifier = (*StripeGateway)(nil)
)

// StripeGateway implements adapter.PaymentGateway on Stripe PaymentIntents and Refunds.
// Each instance owns its client; nothing is read from stripe.Key.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	timeout       time.Duration
}

func NewStripeGateway(secretKey, webhookSecret string, timeout time.Duration) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	return newStripeGateway(secretKey, webhookSecret, timeout, nil), nil
}

// newStripeGateway lets tests point the client at a local backend.
func newStripeGateway(secretKey, webhookSecret string, timeout time.Duration, backends *stripe.Backends) *StripeGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeGateway{api: api, webhookSecret: webhookSecret, timeout: timeout}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateIntent(ctx context.Context, req adapter.IntentRequest) (adapter.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	start := time.Now()
	pi, err := g.api.PaymentIntents.New(params)
	metrics.ObserveGatewayCall(g.Name(), "create_intent", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return adapter.Intent{}, classifyStripeErr(err)
	}
	return adapter.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (adapter.IntentInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("payment_method")

	start := time.Now()
	pi, err := g.api.PaymentIntents.Get(intentID, params)
	metrics.ObserveGatewayCall(g.Name(), "retrieve_intent", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return adapter.IntentInfo{}, classifyStripeErr(err)
	}
	return adapter.IntentInfo{
		ID:            pi.ID,
		Status:        mapIntentStatus(pi),
		PaymentMethod: describePaymentMethod(pi.PaymentMethod),
		Amount:        pi.Amount,
		Currency:      strings.ToUpper(string(pi.Currency)),
	}, nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) (adapter.IntentInfo, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String("abandoned"),
	}
	params.Context = cctx

	start := time.Now()
	pi, err := g.api.PaymentIntents.Cancel(intentID, params)
	metrics.ObserveGatewayCall(g.Name(), "cancel_intent", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			// succeeded, processing or already canceled
			return g.RetrieveIntent(ctx, intentID)
		}
		return adapter.IntentInfo{}, classifyStripeErr(err)
	}
	return adapter.IntentInfo{
		ID:       pi.ID,
		Status:   mapIntentStatus(pi),
		Amount:   pi.Amount,
		Currency: strings.ToUpper(string(pi.Currency)),
	}, nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
		Amount:        stripe.Int64(req.Amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	start := time.Now()
	rf, err := g.api.Refunds.New(params)
	metrics.ObserveGatewayCall(g.Name(), "create_refund", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return adapter.RefundResult{}, classifyStripeErr(err)
	}
	return toRefundResult(rf), nil
}

func (g *StripeGateway) RetrieveRefund(ctx context.Context, refundID string) (adapter.RefundResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.RefundParams{}
	params.Context = ctx

	start := time.Now()
	rf, err := g.api.Refunds.Get(refundID, params)
	metrics.ObserveGatewayCall(g.Name(), "retrieve_refund", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return adapter.RefundResult{}, classifyStripeErr(err)
	}
	return toRefundResult(rf), nil
}

func (g *StripeGateway) ListRefunds(ctx context.Context, since time.Time, limit int) ([]adapter.RefundResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if limit <= 0 {
		limit = 100
	}

	params := &stripe.RefundListParams{
		CreatedRange: &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()},
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(min(limit, 100)))

	start := time.Now()
	var out []adapter.RefundResult
	it := g.api.Refunds.List(params)
	for it.Next() && len(out) < limit {
		out = append(out, toRefundResult(it.Refund()))
	}
	err := it.Err()
	metrics.ObserveGatewayCall(g.Name(), "list_refunds", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return nil, classifyStripeErr(err)
	}
	// Stripe lists newest first.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ParseEvent verifies the Stripe-Signature header and normalizes the event.
func (g *StripeGateway) ParseEvent(payload []byte, signature string) (adapter.GatewayEvent, error) {
	ev, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return adapter.GatewayEvent{}, domain.NewError(domain.CodeGatewayRejected, "invalid webhook signature", err)
	}
	out := adapter.GatewayEvent{ID: ev.ID, Kind: adapter.GatewayEventIgnored}
	if ev.Data == nil {
		return out, nil
	}

	switch string(ev.Type) {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return out, fmt.Errorf("decode payment intent: %w", err)
		}
		out.IntentID = pi.ID
		out.Kind = adapter.GatewayEventIntentFailed
		if string(ev.Type) == "payment_intent.succeeded" {
			out.Kind = adapter.GatewayEventIntentSucceeded
		}
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return out, fmt.Errorf("decode charge: %w", err)
		}
		out.Kind = adapter.GatewayEventRefund
		if ch.PaymentIntent != nil {
			out.IntentID = ch.PaymentIntent.ID
		}
		if ch.Refunds != nil {
			for _, r := range ch.Refunds.Data {
				out.RefundIDs = append(out.RefundIDs, r.ID)
			}
		}
	case "refund.created", "refund.updated", "charge.refund.updated":
		var rf stripe.Refund
		if err := json.Unmarshal(ev.Data.Raw, &rf); err != nil {
			return out, fmt.Errorf("decode refund: %w", err)
		}
		out.Kind = adapter.GatewayEventRefund
		out.RefundIDs = []string{rf.ID}
		if rf.PaymentIntent != nil {
			out.IntentID = rf.PaymentIntent.ID
		}
	}
	return out, nil
}

func mapIntentStatus(pi *stripe.PaymentIntent) adapter.IntentStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return adapter.IntentStatusSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return adapter.IntentStatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		return adapter.IntentStatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// a failed attempt sends the intent back to requires_payment_method
		if pi.LastPaymentError != nil {
			return adapter.IntentStatusDeclined
		}
		return adapter.IntentStatusRequiresAction
	default:
		return adapter.IntentStatusRequiresAction
	}
}

func describePaymentMethod(pm *stripe.PaymentMethod) string {
	if pm == nil {
		return ""
	}
	if pm.Card != nil {
		return fmt.Sprintf("%s **** %s", pm.Card.Brand, pm.Card.Last4)
	}
	return string(pm.Type)
}

func toRefundResult(rf *stripe.Refund) adapter.RefundResult {
	out := adapter.RefundResult{
		ID:        rf.ID,
		Status:    string(rf.Status),
		Amount:    rf.Amount,
		Metadata:  rf.Metadata,
		CreatedAt: time.Unix(rf.Created, 0).UTC(),
	}
	if rf.PaymentIntent != nil {
		out.IntentID = rf.PaymentIntent.ID
	}
	return out
}

// classifyStripeErr maps Stripe failures onto the transient / terminal error codes.
func classifyStripeErr(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		// network errors, timeouts, context cancellation
		return domain.Wrap(domain.ErrGatewayUnavailable, err)
	}
	switch {
	case se.HTTPStatusCode >= http.StatusInternalServerError,
		se.HTTPStatusCode == http.StatusTooManyRequests,
		se.Type == stripe.ErrorTypeAPI:
		return domain.Wrap(domain.ErrGatewayUnavailable, err)
	case se.Type == stripe.ErrorTypeCard:
		return domain.Wrap(domain.ErrPaymentDeclined, err)
	case se.HTTPStatusCode == http.StatusNotFound:
		return domain.Wrap(domain.ErrPaymentNotFound, err)
	default:
		return domain.Wrap(domain.ErrGatewayRejected, err)
	}
}
