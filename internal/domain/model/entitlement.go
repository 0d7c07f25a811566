package model

import "time"

type AccessType string

const (
	AccessTypeFree         AccessType = "free"
	AccessTypePurchased    AccessType = "purchased"
	AccessTypeSubscription AccessType = "subscription"
)

// EntitlementGrant records that an owner may read a comic.
// There is at most one grant per (OwnerID, ComicID).
type EntitlementGrant struct {
	OwnerID    string
	ComicID    string
	AccessType AccessType
	PaymentID  *string // originating payment, nil for free grants
	GrantedAt  time.Time
}

func NewPurchasedGrant(p *PaymentRecord, at time.Time) *EntitlementGrant {
	id := p.ID
	return &EntitlementGrant{
		OwnerID:    p.OwnerID,
		ComicID:    p.ComicID(),
		AccessType: AccessTypePurchased,
		PaymentID:  &id,
		GrantedAt:  at,
	}
}
