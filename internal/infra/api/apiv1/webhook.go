package apiv1

import (
	"errors"
	"io"
	"net/http"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/logging"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/metrics"
)

const maxWebhookBody = 64 << 10

// handleStripeWebhook applies gateway notifications through the same paths as the client
// and the reconciler. Outcomes that are final for us are acknowledged with 200 so the
// gateway stops redelivering; transient failures answer 5xx to get a redelivery.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		badRequest(w, "unreadable body")
		return
	}
	ev, err := s.Webhooks.ParseEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		metrics.IncWebhook("invalid")
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("rejected webhook")
		badRequest(w, "invalid webhook signature or payload")
		return
	}

	ctx := r.Context()
	log := logging.With(ctx, s.log)
	log.Info().Str("event_id", ev.ID).Str("kind", string(ev.Kind)).Msg("webhook received")

	switch ev.Kind {
	case adapter.GatewayEventIntentSucceeded, adapter.GatewayEventIntentFailed:
		ctx = logging.WithIntentID(ctx, ev.IntentID)
		_, err = s.Confirm.Confirm(ctx, ev.IntentID)
		switch {
		case err == nil,
			errors.Is(err, domain.ErrPaymentDeclined),
			errors.Is(err, domain.ErrPaymentNotSucceeded),
			errors.Is(err, domain.ErrPaymentNotFound):
			err = nil
		}
	case adapter.GatewayEventRefund:
		for _, id := range ev.RefundIDs {
			_, rerr := s.Refund.ReplayRevoke(ctx, id)
			if rerr == nil {
				continue
			}
			switch domain.ClassOf(rerr) {
			case domain.ClassValidation, domain.ClassTerminal:
				// redelivery cannot change the answer
				log.Info().Err(rerr).Str("refund_id", id).Msg("refund not applicable; acknowledged")
			default:
				err = rerr
				log.Warn().Err(rerr).Str("refund_id", id).Msg("refund replay failed")
			}
		}
	}

	if err != nil {
		metrics.IncWebhook("error")
		if domain.IsRetrySafe(err) {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Code: string(domain.CodeOf(err)), Message: "try again later"})
			return
		}
		writeError(w, r, s.log, err)
		return
	}
	metrics.IncWebhook(string(ev.Kind))
	writeJSON(w, http.StatusOK, WebhookResponse{Received: true, Kind: string(ev.Kind)})
}
