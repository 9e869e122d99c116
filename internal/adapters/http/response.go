package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/contracts"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, contracts.SuccessResponse{Status: "success", Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	writeJSON(w, status, contracts.ErrorResponse{Status: "error", Error: contracts.ErrorPayload{Code: code, Message: message, RequestID: requestID}})
}

func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrStaleTransition):
		return http.StatusConflict, "stale_transition"
	default:
		var perr *domain.ProviderError
		if errors.As(err, &perr) {
			switch perr.Code {
			case domain.ProviderErrValidation, domain.ProviderErrBadRequest:
				return http.StatusBadRequest, perr.Code
			case domain.ProviderErrRateLimit:
				return http.StatusTooManyRequests, perr.Code
			default:
				return http.StatusBadGateway, perr.Code
			}
		}
		return http.StatusInternalServerError, "internal_error"
	}
}
