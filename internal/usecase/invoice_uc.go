// File: internal/usecase/invoice_uc.go
package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/logging"
)

// Compile-time check
var _ InvoiceUseCase = (*invoiceUC)(nil)

type InvoiceUseCase interface {
	// GetInvoice projects the receipt of a payment owned by ownerID. An empty ownerID skips the
	// ownership check (admin). The projection reads state only; repeated calls return the same invoice.
	GetInvoice(ctx context.Context, ownerID, paymentID string) (*model.Invoice, error)
}

type invoiceUC struct {
	payments repository.PaymentRepository
	users    repository.UserRepository
	plans    *PlanUseCase
	log      *zerolog.Logger
}

func NewInvoiceUseCase(payments repository.PaymentRepository, users repository.UserRepository, plans *PlanUseCase, logger *zerolog.Logger) *invoiceUC {
	return &invoiceUC{payments: payments, users: users, plans: plans, log: logger}
}

func (u *invoiceUC) GetInvoice(ctx context.Context, ownerID, paymentID string) (*model.Invoice, error) {
	defer logging.TraceDuration(u.log, "InvoiceUC.GetInvoice")()

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

	lines, err := u.lineRecords(ctx, rec)
	if err != nil {
		return nil, err
	}

	inv := &model.Invoice{
		InvoiceID:     InvoiceID(lines[0]),
		Date:          rec.CreatedAt.UTC(),
		Currency:      rec.Currency,
		PaymentMethod: rec.PaymentMethod,
		Status:        rec.Status,
	}
	if rec.PaidAt != nil {
		inv.Date = rec.PaidAt.UTC()
	}

	var subtotal, tax int64
	for _, r := range lines {
		item := model.InvoiceLineItem{
			PaymentID:   r.ID,
			Description: u.describe(ctx, r),
			Quantity:    1,
			UnitPrice:   model.FormatAmount(r.Amount, r.Currency),
			Amount:      model.FormatAmount(r.Amount, r.Currency),
		}
		if d := r.BundleDiscountPercent(); d != nil {
			item.DiscountPercent = d.String()
		}
		inv.LineItems = append(inv.LineItems, item)
		subtotal += r.Amount
		tax += r.TaxAmount
		if inv.PaymentMethod == "" {
			inv.PaymentMethod = r.PaymentMethod
		}
	}
	inv.Subtotal = model.FormatAmount(subtotal, rec.Currency)
	inv.Tax = model.FormatAmount(tax, rec.Currency)
	inv.Total = model.FormatAmount(subtotal+tax, rec.Currency)

	user, err := u.users.FindByID(ctx, repository.NoTX, rec.OwnerID)
	switch {
	case err == nil:
		inv.Customer = model.Customer{Name: user.Name, Email: user.Email}
	case errors.Is(err, domain.ErrNotFound):
		logging.With(ctx, u.log).Warn().Str("owner_id", rec.OwnerID).Msg("invoice owner not found; customer left blank")
	default:
		return nil, err
	}
	return inv, nil
}

// lineRecords returns the records an invoice lists: the whole bundle for bundle records, ordered by comic.
func (u *invoiceUC) lineRecords(ctx context.Context, rec *model.PaymentRecord) ([]*model.PaymentRecord, error) {
	if rec.Kind() != model.PaymentKindBundle || rec.GatewayIntentID == "" {
		return []*model.PaymentRecord{rec}, nil
	}
	sibs, err := u.payments.ListByIntent(ctx, repository.NoTX, rec.GatewayIntentID)
	if err != nil {
		return nil, err
	}
	lines := make([]*model.PaymentRecord, 0, len(sibs))
	for _, s := range sibs {
		if s.OwnerID == rec.OwnerID && s.Kind() == model.PaymentKindBundle {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		lines = append(lines, rec)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ComicID() != lines[j].ComicID() {
			return lines[i].ComicID() < lines[j].ComicID()
		}
		return lines[i].ID < lines[j].ID
	})
	return lines, nil
}

func (u *invoiceUC) describe(ctx context.Context, r *model.PaymentRecord) string {
	switch t := r.Target.(type) {
	case model.SingleTarget:
		return "Comic " + t.ComicID
	case model.BundleTarget:
		return fmt.Sprintf("Comic %s (bundle, %s%% off)", t.ComicID, t.DiscountPercent.String())
	case model.SubscriptionTarget:
		if p, err := u.plans.Get(ctx, t.Plan); err == nil {
			return "Subscription: " + p.Name
		}
		return "Subscription: " + t.Plan
	default:
		return "Payment " + r.ID
	}
}

// InvoiceID derives a stable invoice number from the record's creation time and id.
func InvoiceID(r *model.PaymentRecord) string {
	sum := sha256.Sum256([]byte(r.ID))
	id, err := ulid.New(ulid.Timestamp(r.CreatedAt), bytes.NewReader(sum[:]))
	if err != nil {
		// only reachable for timestamps past year 10889
		return "INV-" + fmt.Sprintf("%X", sum[:13])
	}
	return "INV-" + id.String()
}
