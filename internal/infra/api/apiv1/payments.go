package apiv1

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/logging"
)

func (s *Server) createSingleIntent(w http.ResponseWriter, r *http.Request) {
	var req SingleIntentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := principalFrom(r.Context())
	res, err := s.Intents.CreateSingleIntent(r.Context(), p.OwnerID, strings.TrimSpace(req.ComicID), req.Currency)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, IntentResponse{
		Payment:      toPayment(res.Payment),
		IntentID:     res.IntentID,
		ClientSecret: res.ClientSecret,
	})
}

func (s *Server) createBundleIntent(w http.ResponseWriter, r *http.Request) {
	var req BundleIntentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := principalFrom(r.Context())
	discount := s.BundleDiscount
	if req.DiscountPercent != nil && !req.DiscountPercent.Equal(discount) {
		if !p.Admin {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Code: codeForbidden, Message: "discount_percent is set by the store"})
			return
		}
		discount = *req.DiscountPercent
	}
	res, err := s.Intents.CreateBundleIntent(r.Context(), p.OwnerID, req.ComicIDs, discount)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, BundleIntentResponse{
		Payments:        toPayments(res.Payments),
		IntentID:        res.IntentID,
		ClientSecret:    res.ClientSecret,
		ComicCount:      res.ComicCount,
		OriginalPrice:   model.FormatAmount(res.OriginalPrice, res.Currency),
		DiscountedPrice: model.FormatAmount(res.DiscountedPrice, res.Currency),
		Savings:         model.FormatAmount(res.Savings, res.Currency),
		Currency:        res.Currency,
	})
}

func (s *Server) createSubscriptionIntent(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionIntentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := principalFrom(r.Context())
	res, err := s.Intents.CreateSubscriptionIntent(r.Context(), p.OwnerID, req.Plan)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubscriptionIntentResponse{
		Payment:      toPayment(res.Payment),
		IntentID:     res.IntentID,
		ClientSecret: res.ClientSecret,
		Plan:         toPlan(res.Plan),
	})
}

// confirm is the client-side completion path. The owner must hold a record on the intent.
func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	intentID := strings.TrimSpace(req.IntentID)
	if intentID == "" {
		badRequest(w, "intent_id is required")
		return
	}
	ctx := logging.WithIntentID(r.Context(), intentID)
	res, err := s.Confirm.Confirm(ctx, intentID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	p := principalFrom(ctx)
	if !p.Admin && (len(res.Payments) == 0 || res.Payments[0].OwnerID != p.OwnerID) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Code: "NOT_FOUND", Message: "payment not found"})
		return
	}
	writeJSON(w, http.StatusOK, ConfirmResponse{
		Payments:     toPayments(res.Payments),
		Grants:       toGrants(res.Grants),
		Subscription: toSubscription(res.Subscription),
		Replayed:     res.Replayed,
	})
}

func (s *Server) getPayment(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	rec, err := s.Access.GetPayment(r.Context(), scopeOwner(p), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayment(rec))
}

func (s *Server) retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.WithPaymentID(r.Context(), id)
	p := principalFrom(ctx)
	if _, err := s.Access.GetPayment(ctx, scopeOwner(p), id); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	res, err := s.Retry.Retry(ctx, id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, RetryResponse{
		Payments:     toPayments(res.Payments),
		IntentID:     res.IntentID,
		ClientSecret: res.ClientSecret,
	})
}

func (s *Server) refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	ctx := logging.WithPaymentID(r.Context(), id)
	p := principalFrom(ctx)
	if _, err := s.Access.GetPayment(ctx, scopeOwner(p), id); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	res, err := s.Refund.Refund(ctx, id, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, RefundResponse{
		Payment:  toPayment(res.Payment),
		RefundID: res.RefundID,
		Applied:  res.Applied,
	})
}

func (s *Server) invoice(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	inv, err := s.Invoices.GetInvoice(r.Context(), scopeOwner(p), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	var params ListPaymentsParams
	q := r.URL.Query()
	binds := []struct {
		name string
		dst  any
	}{
		{"status", &params.Status},
		{"kind", &params.Kind},
		{"from", &params.From},
		{"to", &params.To},
		{"limit", &params.Limit},
		{"offset", &params.Offset},
		{"owner_id", &params.OwnerID},
	}
	for _, b := range binds {
		if err := runtime.BindQueryParameter("form", true, false, b.name, q, b.dst); err != nil {
			badRequest(w, "invalid "+b.name+" parameter")
			return
		}
	}

	f := model.PaymentFilter{From: params.From, To: params.To}
	if params.Status != nil {
		st := model.PaymentStatus(strings.ToLower(*params.Status))
		f.Status = &st
	}
	if params.Kind != nil {
		k := model.PaymentKind(strings.ToLower(*params.Kind))
		f.Kind = &k
	}
	if params.Limit != nil {
		f.Limit = *params.Limit
	}
	if params.Offset != nil {
		f.Offset = *params.Offset
	}

	owner := ownerParam(principalFrom(r.Context()), params.OwnerID)
	recs, err := s.Access.ListPaymentHistory(r.Context(), owner, f)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ListPaymentsResponse{Items: toPayments(recs)})
}

// ownerParam lets admins look at another owner; everyone else sees their own records.
func ownerParam(p *Principal, requested *string) string {
	if p.Admin && requested != nil && *requested != "" {
		return *requested
	}
	return p.OwnerID
}
