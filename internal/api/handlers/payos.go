package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lolmarket/topup-backend/internal/api/httpx"
	"github.com/lolmarket/topup-backend/internal/metrics"
	"github.com/lolmarket/topup-backend/internal/middleware"
	"github.com/lolmarket/topup-backend/internal/payos"
	"github.com/lolmarket/topup-backend/internal/services"
	"github.com/shopspring/decimal"
)

type PayOSHandler struct {
	TopUps *services.TopUpService
	Rec    *services.Reconciler
	Signer *payos.Signer
	// AllowUnsigned lets payloads carrying no signature at all through.
	// Callers must never set it in prod.
	AllowUnsigned bool
	Log           *slog.Logger
}

type messageResp struct {
	Message   string `json:"message"`
	Outcome   string `json:"outcome,omitempty"`
	Reference string `json:"reference,omitempty"`
	Status    string `json:"status,omitempty"`
}

var outcomeMessages = map[services.Outcome]string{
	services.OutcomeCredited:   "payment confirmed",
	services.OutcomeFailed:     "payment marked as failed",
	services.OutcomeProcessing: "payment still processing",
	services.OutcomeDuplicate:  "already processed",
}

// Webhook receives PayOS callbacks. Nothing is written unless the payload
// is authenticated and correlates to a known top-up.
func (h *PayOSHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	log := h.Log.With("request_id", middleware.RequestIDFrom(r.Context()))

	body, err := httpx.ReadBody(w, r, maxBody)
	if err != nil {
		h.outcome("bad_request")
		badJSON(w, err)
		return
	}
	p, err := payos.Parse(body)
	if err != nil {
		h.outcome("bad_request")
		httpx.WriteError(w, http.StatusBadRequest, "invalid_payload", "webhook body must be a JSON object", nil)
		return
	}
	ev := p.Event()
	header := r.Header.Get("X-Signature")

	if ev.IsPing() && header == "" {
		h.outcome("ping")
		httpx.WriteJSON(w, http.StatusOK, messageResp{Message: "webhook is alive"})
		return
	}

	unsigned := header == "" && !ev.Signed
	if !(unsigned && h.AllowUnsigned) {
		if err := h.Signer.Verify(p, body, header); err != nil {
			h.outcome("unauthorized")
			if errors.Is(err, payos.ErrNotConfigured) {
				log.Error("payos webhook rejected: checksum key not configured")
				httpx.WriteError(w, http.StatusUnauthorized, "webhook_not_configured", "webhook verification is not configured", nil)
				return
			}
			log.Warn("payos webhook rejected", "err", err, "order_code", ev.OrderCode)
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_signature", "invalid signature", nil)
			return
		}
	} else {
		log.Warn("accepting unsigned payos webhook", "order_code", ev.OrderCode)
	}

	if !ev.HasOrderCode {
		h.outcome("bad_request")
		httpx.WriteError(w, http.StatusBadRequest, "missing_order_code", "orderCode is required", nil)
		return
	}

	res, err := h.Rec.Apply(r.Context(), ev)
	switch {
	case errors.Is(err, services.ErrTopUpNotFound):
		h.outcome("not_found")
		log.Warn("payos webhook for unknown order", "order_code", ev.OrderCode, "reference", ev.Reference)
		httpx.WriteError(w, http.StatusNotFound, "not_found", "transaction not found", nil)
		return
	case err != nil:
		h.outcome("error")
		log.Error("payos webhook reconcile", "order_code", ev.OrderCode, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not process webhook", nil)
		return
	}

	h.outcome(string(res.Outcome))
	httpx.WriteJSON(w, http.StatusOK, messageResp{
		Message:   outcomeMessages[res.Outcome],
		Outcome:   string(res.Outcome),
		Reference: res.TopUp.Reference,
		Status:    string(res.TopUp.Status),
	})
}

func (h *PayOSHandler) outcome(o string) {
	metrics.WebhookOutcomes.WithLabelValues("webhook", o).Inc()
}

type createPaymentReq struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *PayOSHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.CurrentUser(r.Context())
	var req createPaymentReq
	if err := httpx.DecodeJSON(w, r, maxBody, &req); err != nil {
		badJSON(w, err)
		return
	}
	in, err := h.TopUps.CreateIntent(r.Context(), u.UserID, req.Amount)
	if err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, in)
}

type statusResp struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// Status is the checkout page's poll. It never writes.
func (h *PayOSHandler) Status(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.CurrentUser(r.Context())
	ref := r.URL.Query().Get("reference")
	if ref == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "reference is required", nil)
		return
	}
	st, err := h.TopUps.Status(r.Context(), u.UserID, u.Role, ref)
	if err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, statusResp{Success: true, Status: string(st)})
}

func (h *PayOSHandler) PaymentDetail(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.CurrentUser(r.Context())
	t, err := h.TopUps.Detail(r.Context(), u.UserID, u.Role, chi.URLParam(r, "reference"))
	if err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}
