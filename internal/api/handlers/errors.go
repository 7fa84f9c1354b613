package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lolmarket/topup-backend/internal/api/httpx"
	"github.com/lolmarket/topup-backend/internal/api/validate"
	"github.com/lolmarket/topup-backend/internal/middleware"
	"github.com/lolmarket/topup-backend/internal/services"
)

const maxBody = 1 << 20

// writeServiceError maps service sentinels onto HTTP responses. Anything
// unrecognised is logged and rendered as a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var fields validate.Errs
	switch {
	case errors.As(err, &fields):
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "validation failed", fields)
	case errors.Is(err, services.ErrAmountTooLow),
		errors.Is(err, services.ErrAmountTooHigh),
		errors.Is(err, services.ErrAmountNotWhole):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_amount", err.Error(), nil)
	case errors.Is(err, services.ErrTopUpNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "transaction not found", nil)
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrNotificationNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, services.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
	case errors.Is(err, services.ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, "email_taken", err.Error(), nil)
	case errors.Is(err, services.ErrGatewayNotConfigured):
		httpx.WriteError(w, http.StatusServiceUnavailable, "gateway_not_configured", "payments are temporarily unavailable", nil)
	case errors.Is(err, services.ErrGatewayUnavailable):
		httpx.WriteError(w, http.StatusBadGateway, "gateway_error", "could not create payment link, please try again", nil)
	default:
		log.Error("request failed", "path", r.URL.Path, "request_id", middleware.RequestIDFrom(r.Context()), "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func badJSON(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", nil)
		return
	}
	httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body", nil)
}
