package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lolmarket/topup-backend/internal/api/httpx"
	"github.com/lolmarket/topup-backend/internal/middleware"
	"github.com/lolmarket/topup-backend/internal/models"
	"github.com/lolmarket/topup-backend/internal/services"
)

type AccountHandler struct {
	Accounts *services.AccountService
	TopUps   *services.TopUpService
	Users    *services.UserService
	Log      *slog.Logger
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.CurrentUser(r.Context())
	me, err := h.Accounts.Me(r.Context(), u.UserID)
	if err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, me)
}

func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.CurrentUser(r.Context())
	limit, offset := httpx.Page(r)
	items, err := h.Accounts.History(r.Context(), u.UserID, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": nonNil(items), "limit": limit, "offset": offset})
}

func (h *AccountHandler) TopUpList(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.CurrentUser(r.Context())
	limit, offset := httpx.Page(r)
	items, err := h.TopUps.ListMine(r.Context(), u.UserID, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": nonNil(items), "limit": limit, "offset": offset})
}

func (h *AccountHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.CurrentUser(r.Context())
	limit, offset := httpx.Page(r)
	items, err := h.Accounts.Notifications(r.Context(), u.UserID, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": nonNil(items), "limit": limit, "offset": offset})
}

func (h *AccountHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.CurrentUser(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid notification id", nil)
		return
	}
	if err := h.Accounts.MarkRead(r.Context(), u.UserID, id); err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminUsers lists accounts for the back office.
func (h *AccountHandler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := httpx.Page(r)
	users, err := h.Users.List(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": nonNil(users), "limit": limit, "offset": offset})
}

func (h *AccountHandler) AdminTopUps(w http.ResponseWriter, r *http.Request) {
	limit, offset := httpx.Page(r)
	f := models.TopUpFilter{
		Status: models.TopUpStatus(r.URL.Query().Get("status")),
		UserID: r.URL.Query().Get("user_id"),
		Limit:  limit,
		Offset: offset,
	}
	if f.Status != "" && !f.Status.Valid() {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "status must be PENDING, SUCCESS or FAILED", nil)
		return
	}
	items, err := h.TopUps.AdminList(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": nonNil(items), "limit": limit, "offset": offset})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
