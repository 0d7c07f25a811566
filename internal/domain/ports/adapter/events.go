package adapter

import (
	"context"
	"time"
)

type EventType string

const (
	EventEntitlementGranted    EventType = "entitlement.granted"
	EventEntitlementRevoked    EventType = "entitlement.revoked"
	EventSubscriptionActivated EventType = "subscription.activated"
	EventSubscriptionCanceled  EventType = "subscription.canceled"
)

// EntitlementEvent tells downstream consumers (library, reader, analytics) that access changed.
type EntitlementEvent struct {
	Type       EventType `json:"type"`
	OwnerID    string    `json:"owner_id"`
	ComicID    string    `json:"comic_id,omitempty"`
	Plan       string    `json:"plan,omitempty"`
	PaymentID  string    `json:"payment_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher delivers events after the local transaction committed.
// Delivery is best-effort; entitlement state in the database stays authoritative.
type EventPublisher interface {
	Publish(ctx context.Context, events ...EntitlementEvent) error
	Close() error
}
