package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
)

var (
	_ adapter.PaymentGateway  = (*NoopPaymentGateway)(nil)
	_ adapter.WebhookVerifier = (*NoopPaymentGateway)(nil)
)

type noopIntent struct {
	req    adapter.IntentRequest
	status adapter.IntentStatus
}

// NoopPaymentGateway is an in-memory gateway for dev mode and tests.
// Intents start in the configured status (succeeded by default); idempotency keys are honored.
type NoopPaymentGateway struct {
	mu            sync.Mutex
	seq           int64
	initial       adapter.IntentStatus
	intents       map[string]*noopIntent
	refunds       map[string]adapter.RefundResult
	byIdempotency map[string]string
	failNext      error
	now           func() time.Time
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		initial:       adapter.IntentStatusSucceeded,
		intents:       make(map[string]*noopIntent),
		refunds:       make(map[string]adapter.RefundResult),
		byIdempotency: make(map[string]string),
		now:           time.Now,
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

// SetInitialStatus changes the status newly created intents start in.
func (g *NoopPaymentGateway) SetInitialStatus(s adapter.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initial = s
}

// SetStatus moves an existing intent, e.g. to simulate the customer paying.
func (g *NoopPaymentGateway) SetStatus(intentID string, s adapter.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if in, ok := g.intents[intentID]; ok {
		in.status = s
	}
}

// FailNext makes the next gateway call return err.
func (g *NoopPaymentGateway) FailNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = err
}

func (g *NoopPaymentGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_noop_%d", prefix, g.seq)
}

func (g *NoopPaymentGateway) takeFailure() error {
	err := g.failNext
	g.failNext = nil
	return err
}

func (g *NoopPaymentGateway) CreateIntent(ctx context.Context, req adapter.IntentRequest) (adapter.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(); err != nil {
		return adapter.Intent{}, err
	}
	if id, ok := g.byIdempotency["pi:"+req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return adapter.Intent{ID: id, ClientSecret: id + "_secret"}, nil
	}
	id := g.next("pi")
	g.intents[id] = &noopIntent{req: req, status: g.initial}
	if req.IdempotencyKey != "" {
		g.byIdempotency["pi:"+req.IdempotencyKey] = id
	}
	return adapter.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *NoopPaymentGateway) RetrieveIntent(ctx context.Context, intentID string) (adapter.IntentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(); err != nil {
		return adapter.IntentInfo{}, err
	}
	in, ok := g.intents[intentID]
	if !ok {
		return adapter.IntentInfo{}, domain.ErrPaymentNotFound
	}
	return adapter.IntentInfo{
		ID:            intentID,
		Status:        in.status,
		PaymentMethod: "visa **** 4242",
		Amount:        in.req.Amount,
		Currency:      in.req.Currency,
	}, nil
}

func (g *NoopPaymentGateway) CancelIntent(ctx context.Context, intentID string) (adapter.IntentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(); err != nil {
		return adapter.IntentInfo{}, err
	}
	in, ok := g.intents[intentID]
	if !ok {
		return adapter.IntentInfo{}, domain.ErrPaymentNotFound
	}
	if in.status != adapter.IntentStatusSucceeded && in.status != adapter.IntentStatusProcessing {
		in.status = adapter.IntentStatusCanceled
	}
	return adapter.IntentInfo{
		ID:       intentID,
		Status:   in.status,
		Amount:   in.req.Amount,
		Currency: in.req.Currency,
	}, nil
}

func (g *NoopPaymentGateway) CreateRefund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(); err != nil {
		return adapter.RefundResult{}, err
	}
	if id, ok := g.byIdempotency["re:"+req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return g.refunds[id], nil
	}
	in, ok := g.intents[req.IntentID]
	if !ok || in.status != adapter.IntentStatusSucceeded {
		return adapter.RefundResult{}, domain.NewError(domain.CodeGatewayRejected, "intent is not refundable", nil)
	}
	meta := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if req.Reason != "" {
		meta["reason"] = req.Reason
	}
	res := adapter.RefundResult{
		ID:        g.next("re"),
		IntentID:  req.IntentID,
		Status:    "succeeded",
		Amount:    req.Amount,
		Metadata:  meta,
		CreatedAt: g.now().UTC(),
	}
	g.refunds[res.ID] = res
	if req.IdempotencyKey != "" {
		g.byIdempotency["re:"+req.IdempotencyKey] = res.ID
	}
	return res, nil
}

func (g *NoopPaymentGateway) RetrieveRefund(ctx context.Context, refundID string) (adapter.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(); err != nil {
		return adapter.RefundResult{}, err
	}
	rf, ok := g.refunds[refundID]
	if !ok {
		return adapter.RefundResult{}, domain.ErrPaymentNotFound
	}
	return rf, nil
}

func (g *NoopPaymentGateway) ListRefunds(ctx context.Context, since time.Time, limit int) ([]adapter.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(); err != nil {
		return nil, err
	}
	var out []adapter.RefundResult
	for _, rf := range g.refunds {
		if !rf.CreatedAt.Before(since) {
			out = append(out, rf)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ParseEvent accepts an unsigned JSON GatewayEvent. Dev mode only.
func (g *NoopPaymentGateway) ParseEvent(payload []byte, signature string) (adapter.GatewayEvent, error) {
	var ev struct {
		ID        string   `json:"id"`
		Kind      string   `json:"kind"`
		IntentID  string   `json:"intent_id"`
		RefundIDs []string `json:"refund_ids"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return adapter.GatewayEvent{}, domain.NewError(domain.CodeGatewayRejected, "invalid webhook payload", err)
	}
	return adapter.GatewayEvent{
		ID:        ev.ID,
		Kind:      adapter.GatewayEventKind(ev.Kind),
		IntentID:  ev.IntentID,
		RefundIDs: ev.RefundIDs,
	}, nil
}
