package adapter

import (
	"context"
	"time"
)

// IntentStatus is the gateway's view of a payment intent, normalized.
type IntentStatus string

const (
	IntentStatusSucceeded      IntentStatus = "succeeded"
	IntentStatusProcessing     IntentStatus = "processing" // still in flight; ask again later
	IntentStatusRequiresAction IntentStatus = "requires_action"
	IntentStatusDeclined       IntentStatus = "declined" // terminal failure for this intent
	IntentStatusCanceled       IntentStatus = "canceled"
)

// IsTerminalFailure reports whether no later poll can turn the intent into a success.
func (s IntentStatus) IsTerminalFailure() bool {
	return s == IntentStatusDeclined || s == IntentStatusCanceled
}

type IntentRequest struct {
	Amount         int64 // minor units
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is what the client needs to complete a payment.
type Intent struct {
	ID           string
	ClientSecret string
}

type IntentInfo struct {
	ID            string
	Status        IntentStatus
	PaymentMethod string // human readable, e.g. "visa **** 4242"
	Amount        int64
	Currency      string
	TaxAmount     int64 // 0 unless the gateway computed tax
}

type RefundRequest struct {
	IntentID       string
	Amount         int64
	Reason         string
	Metadata       map[string]string
	IdempotencyKey string
}

// RefundResult is a provider-agnostic view of a refund.
type RefundResult struct {
	ID        string
	IntentID  string
	Status    string // provider status e.g. pending / succeeded / failed
	Amount    int64
	Metadata  map[string]string
	CreatedAt time.Time
}

// Failed reports whether the gateway will not move money for this refund.
func (r RefundResult) Failed() bool { return r.Status == "failed" || r.Status == "canceled" }

// PaymentGateway is the port for the external payment processor.
// Implementations return domain.ErrGatewayUnavailable for transient failures
// (network, timeouts, 5xx) and domain.ErrPaymentDeclined / domain.ErrGatewayRejected
// for terminal ones, so callers never have to inspect provider messages.
type PaymentGateway interface {
	Name() string

	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (IntentInfo, error)
	// CancelIntent closes an intent so it can no longer be paid and returns where it
	// ended up. An intent that already succeeded or is processing is reported, not canceled.
	CancelIntent(ctx context.Context, intentID string) (IntentInfo, error)
	CreateRefund(ctx context.Context, req RefundRequest) (RefundResult, error)

	RetrieveRefund(ctx context.Context, refundID string) (RefundResult, error)
	// ListRefunds returns refunds created at or after since, oldest first.
	ListRefunds(ctx context.Context, since time.Time, limit int) ([]RefundResult, error)
}

// GatewayEventKind is the normalized meaning of an inbound gateway notification.
type GatewayEventKind string

const (
	GatewayEventIntentSucceeded GatewayEventKind = "intent_succeeded"
	GatewayEventIntentFailed    GatewayEventKind = "intent_failed"
	GatewayEventRefund          GatewayEventKind = "refund"
	GatewayEventIgnored         GatewayEventKind = "ignored"
)

type GatewayEvent struct {
	ID        string
	Kind      GatewayEventKind
	IntentID  string
	RefundIDs []string
}

// WebhookVerifier authenticates and decodes gateway webhook payloads.
type WebhookVerifier interface {
	ParseEvent(payload []byte, signature string) (GatewayEvent, error)
}
