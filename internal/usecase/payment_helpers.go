// File: internal/usecase/payment_helpers.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
)

const (
	DefaultRetryLimit     = 3
	DefaultGatewayTimeout = 10 * time.Second
)

// Options carries the tunables shared by the payment use cases.
type Options struct {
	RetryLimit     int
	GatewayTimeout time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.RetryLimit <= 0 {
		o.RetryLimit = DefaultRetryLimit
	}
	if o.GatewayTimeout <= 0 {
		o.GatewayTimeout = DefaultGatewayTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) now() time.Time { return o.Now().UTC() }

// gatewayCtx bounds a gateway call by the configured timeout on top of the caller's deadline.
func (o Options) gatewayCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.GatewayTimeout)
}

// gatewayErr keeps coded gateway errors and treats anything else (timeouts, cancellations) as transient.
func gatewayErr(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Wrap(domain.ErrGatewayUnavailable, err)
}

// intentKey is the gateway idempotency key of one intent-creation attempt for a record group.
func intentKey(baseID string, attempt int) string {
	return fmt.Sprintf("intent:%s:%d", baseID, attempt)
}

func refundKey(paymentID string) string { return "refund:" + paymentID }

// baseID is the smallest record id of a group; it names the group at the gateway.
func baseID(recs []*model.PaymentRecord) string {
	ids := recordIDs(recs)
	sort.Strings(ids)
	return ids[0]
}

func recordIDs(recs []*model.PaymentRecord) []string {
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}

func totalAmount(recs []*model.PaymentRecord) int64 {
	var sum int64
	for _, r := range recs {
		sum += r.Amount
	}
	return sum
}

// intentRequest builds the single gateway intent covering every record of a group.
func intentRequest(recs []*model.PaymentRecord, description string, attempt int) adapter.IntentRequest {
	first := recs[0]
	return adapter.IntentRequest{
		Amount:      totalAmount(recs),
		Currency:    first.Currency,
		Description: description,
		Metadata: map[string]string{
			"payment_ids": strings.Join(recordIDs(recs), ","),
			"owner_id":    first.OwnerID,
			"kind":        string(first.Kind()),
		},
		IdempotencyKey: intentKey(baseID(recs), attempt),
	}
}

func describeGroup(recs []*model.PaymentRecord) string {
	first := recs[0]
	switch t := first.Target.(type) {
	case model.SingleTarget:
		return "Comic " + t.ComicID
	case model.BundleTarget:
		return fmt.Sprintf("Bundle of %d comics (%s%% off)", len(recs), t.DiscountPercent.String())
	case model.SubscriptionTarget:
		return "Subscription " + t.Plan
	default:
		return "Payment " + first.ID
	}
}

// publish hands events to the broker after commit. Failures are logged, never returned.
func publish(ctx context.Context, pub adapter.EventPublisher, log *zerolog.Logger, events ...adapter.EntitlementEvent) {
	if pub == nil || len(events) == 0 {
		return
	}
	if err := pub.Publish(ctx, events...); err != nil {
		log.Warn().Err(err).Int("events", len(events)).Msg("failed to publish entitlement events")
	}
}

// errLostRace aborts a transaction whose CAS lost to a concurrent writer.
var errLostRace = errors.New("compare-and-set lost to a concurrent update")
