package apiv1

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
)

// ---- requests ----

type SingleIntentRequest struct {
	ComicID  string `json:"comic_id"`
	Currency string `json:"currency,omitempty"`
}

type BundleIntentRequest struct {
	ComicIDs []string `json:"comic_ids"`
	// DiscountPercent overrides the store discount; admins only.
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
}

type SubscriptionIntentRequest struct {
	Plan string `json:"plan"`
}

type ConfirmRequest struct {
	IntentID string `json:"intent_id"`
}

type RefundRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ListPaymentsParams are the query parameters of GET /api/v1/payments.
type ListPaymentsParams struct {
	Status *string    `form:"status" json:"status,omitempty"`
	Kind   *string    `form:"kind" json:"kind,omitempty"`
	From   *time.Time `form:"from" json:"from,omitempty"`
	To     *time.Time `form:"to" json:"to,omitempty"`
	Limit  *int       `form:"limit" json:"limit,omitempty"`
	Offset *int       `form:"offset" json:"offset,omitempty"`
	// OwnerID is honored for admins only.
	OwnerID *string `form:"owner_id" json:"owner_id,omitempty"`
}

// ---- responses ----

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Payment struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Kind            string     `json:"kind"`
	ComicID         string     `json:"comic_id,omitempty"`
	Plan            string     `json:"plan,omitempty"`
	DiscountPercent string     `json:"discount_percent,omitempty"`
	Amount          string     `json:"amount"`
	AmountMinor     int64      `json:"amount_minor"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	IntentID        string     `json:"intent_id,omitempty"`
	RetryCount      int        `json:"retry_count"`
	PaymentMethod   string     `json:"payment_method,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	RefundedAt      *time.Time `json:"refunded_at,omitempty"`
	RefundAmount    string     `json:"refund_amount,omitempty"`
}

func toPayment(p *model.PaymentRecord) Payment {
	out := Payment{
		ID:            p.ID,
		OwnerID:       p.OwnerID,
		Kind:          string(p.Kind()),
		ComicID:       p.ComicID(),
		Plan:          p.Plan(),
		Amount:        model.FormatAmount(p.Amount, p.Currency),
		AmountMinor:   p.Amount,
		Currency:      p.Currency,
		Status:        string(p.Status),
		IntentID:      p.GatewayIntentID,
		RetryCount:    p.RetryCount,
		PaymentMethod: p.PaymentMethod,
		CreatedAt:     p.CreatedAt,
		PaidAt:        p.PaidAt,
		RefundedAt:    p.RefundedAt,
	}
	if d := p.BundleDiscountPercent(); d != nil {
		out.DiscountPercent = d.String()
	}
	if p.RefundAmount != nil {
		out.RefundAmount = model.FormatAmount(*p.RefundAmount, p.Currency)
	}
	return out
}

func toPayments(recs []*model.PaymentRecord) []Payment {
	out := make([]Payment, 0, len(recs))
	for _, r := range recs {
		out = append(out, toPayment(r))
	}
	return out
}

type IntentResponse struct {
	Payment      Payment `json:"payment"`
	IntentID     string  `json:"intent_id"`
	ClientSecret string  `json:"client_secret"`
}

type BundleIntentResponse struct {
	Payments        []Payment `json:"payments"`
	IntentID        string    `json:"intent_id"`
	ClientSecret    string    `json:"client_secret"`
	ComicCount      int       `json:"comic_count"`
	OriginalPrice   string    `json:"original_price"`
	DiscountedPrice string    `json:"discounted_price"`
	Savings         string    `json:"savings"`
	Currency        string    `json:"currency"`
}

type Plan struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	Price      string   `json:"price"`
	Currency   string   `json:"currency"`
	PeriodDays int      `json:"period_days"`
	Benefits   []string `json:"benefits"`
}

func toPlan(p *model.SubscriptionPlan) Plan {
	benefits := p.Benefits
	if benefits == nil {
		benefits = []string{}
	}
	return Plan{
		Code:       p.Code,
		Name:       p.Name,
		Price:      model.FormatAmount(p.Price, p.Currency),
		Currency:   p.Currency,
		PeriodDays: int(p.Period / (24 * time.Hour)),
		Benefits:   benefits,
	}
}

type SubscriptionIntentResponse struct {
	Payment      Payment `json:"payment"`
	IntentID     string  `json:"intent_id"`
	ClientSecret string  `json:"client_secret"`
	Plan         Plan    `json:"plan"`
}

type Grant struct {
	ComicID    string    `json:"comic_id"`
	AccessType string    `json:"access_type"`
	PaymentID  *string   `json:"payment_id,omitempty"`
	GrantedAt  time.Time `json:"granted_at"`
}

func toGrants(gs []*model.EntitlementGrant) []Grant {
	out := make([]Grant, 0, len(gs))
	for _, g := range gs {
		out = append(out, Grant{ComicID: g.ComicID, AccessType: string(g.AccessType), PaymentID: g.PaymentID, GrantedAt: g.GrantedAt})
	}
	return out
}

type Subscription struct {
	Plan      string     `json:"plan,omitempty"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func toSubscription(s *model.SubscriptionState) *Subscription {
	if s == nil {
		return nil
	}
	return &Subscription{Plan: s.Plan, Status: string(s.Status), ExpiresAt: s.ExpiresAt}
}

type ConfirmResponse struct {
	Payments     []Payment     `json:"payments"`
	Grants       []Grant       `json:"grants"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Replayed     bool          `json:"replayed"`
}

type RetryResponse struct {
	Payments     []Payment `json:"payments"`
	IntentID     string    `json:"intent_id"`
	ClientSecret string    `json:"client_secret"`
}

type RefundResponse struct {
	Payment  Payment `json:"payment"`
	RefundID string  `json:"refund_id"`
	Applied  bool    `json:"applied"`
}

type AccessResponse struct {
	ComicID   string `json:"comic_id"`
	HasAccess bool   `json:"has_access"`
}

type ListPaymentsResponse struct {
	Items []Payment `json:"items"`
}

type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Kind     string `json:"kind"`
}
