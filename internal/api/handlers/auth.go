package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lolmarket/topup-backend/internal/api/httpx"
	"github.com/lolmarket/topup-backend/internal/api/validate"
	"github.com/lolmarket/topup-backend/internal/services"
)

type AuthHandler struct {
	Users *services.UserService
	Log   *slog.Logger
}

func NewAuthHandler(us *services.UserService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{Users: us, Log: log}
}

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := httpx.DecodeJSON(w, r, maxBody, &req); err != nil {
		badJSON(w, err)
		return
	}
	if err := validate.Collect(
		validate.MinLen("username", req.Username, 3),
		validate.Email("email", req.Email),
		validate.MinLen("password", req.Password, 8),
	); err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	u, err := h.Users.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, u)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := httpx.DecodeJSON(w, r, maxBody, &req); err != nil {
		badJSON(w, err)
		return
	}
	pair, err := h.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := httpx.DecodeJSON(w, r, maxBody, &req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token required", nil)
		return
	}
	pair, err := h.Users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}
