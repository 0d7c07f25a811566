package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/logging"
)

const (
	codeInvalidArgument = "INVALID_ARGUMENT"
	codeForbidden       = "FORBIDDEN"
)

var statusByCode = map[domain.Code]int{
	domain.CodeAlreadyOwned:        http.StatusConflict,
	domain.CodeNotPurchasable:      http.StatusBadRequest,
	domain.CodeInvalidBundle:       http.StatusBadRequest,
	domain.CodeInvalidPlan:         http.StatusBadRequest,
	domain.CodeInvalidComic:        http.StatusBadRequest,
	domain.CodeNotFound:            http.StatusNotFound,
	domain.CodePaymentDeclined:     http.StatusPaymentRequired,
	domain.CodeGatewayUnavailable:  http.StatusServiceUnavailable,
	domain.CodeGatewayRejected:     http.StatusBadGateway,
	domain.CodePaymentNotSucceeded: http.StatusConflict,
	domain.CodeRetryLimitExceeded:  http.StatusConflict,
	domain.CodeNotRetryable:        http.StatusConflict,
	domain.CodeNotRefundable:       http.StatusConflict,
	// money moved; the reconciler finishes the revoke
	domain.CodeRevokePending: http.StatusAccepted,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and a stable code. Internal errors are logged, never echoed.
func writeError(w http.ResponseWriter, r *http.Request, log *zerolog.Logger, err error) {
	if errors.Is(err, domain.ErrInvalidArgument) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: codeInvalidArgument, Message: err.Error()})
		return
	}
	code := domain.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		logging.With(r.Context(), log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Code: string(domain.CodeInternal), Message: "internal error"})
		return
	}
	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.Msg
	}
	writeJSON(w, status, ErrorResponse{Code: string(code), Message: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: codeInvalidArgument, Message: msg})
}

// decodeJSON reads a JSON body; an empty body is a bad request.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			badRequest(w, "missing request body")
		} else {
			badRequest(w, "invalid request body: "+err.Error())
		}
		return false
	}
	return true
}
