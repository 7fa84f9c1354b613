package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/lolmarket/topup-backend/internal/api/handlers"
	"github.com/lolmarket/topup-backend/internal/api/httpx"
	"github.com/lolmarket/topup-backend/internal/auth"
	"github.com/lolmarket/topup-backend/internal/config"
	"github.com/lolmarket/topup-backend/internal/metrics"
	"github.com/lolmarket/topup-backend/internal/middleware"
	"github.com/lolmarket/topup-backend/internal/models"
	"github.com/lolmarket/topup-backend/internal/payos"
	repo "github.com/lolmarket/topup-backend/internal/repository"
	"github.com/lolmarket/topup-backend/internal/services"
)

type RouterDeps struct {
	Cfg        config.Config
	Log        *slog.Logger
	Store      repo.Store
	TM         *auth.TokenManager
	UserSvc    *services.UserService
	TopUpSvc   *services.TopUpService
	AccountSvc *services.AccountService
	Reconciler *services.Reconciler
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id", "X-Signature"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMW := middleware.NewAuthMiddleware(d.TM, d.Cfg.Env)
	authH := handlers.NewAuthHandler(d.UserSvc, d.Log)
	payH := &handlers.PayOSHandler{
		TopUps:        d.TopUpSvc,
		Rec:           d.Reconciler,
		Signer:        payos.NewSigner(d.Cfg.PayOS.ChecksumKey),
		AllowUnsigned: d.Cfg.UnsignedWebhooksAllowed(),
		Log:           d.Log,
	}
	accH := &handlers.AccountHandler{Accounts: d.AccountSvc, TopUps: d.TopUpSvc, Users: d.UserSvc, Log: d.Log}

	// Called by PayOS from a few gateway addresses and authenticated by
	// signature, so it sits outside the per-client rate limit.
	r.Post("/api/payos/webhook", payH.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(d.Cfg.RateRPS))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := d.Store.Ping(r.Context()); err != nil {
				httpx.WriteError(w, http.StatusServiceUnavailable, "unhealthy", "datastore unreachable", nil)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Handle("/metrics", metrics.Handler())

		// ---------- payos ----------
		r.Group(func(r chi.Router) {
			r.Use(authMW.Auth)
			r.Post("/api/payos/create-payment", payH.CreatePayment)
			r.Get("/api/payos/status", payH.Status)
			r.Get("/api/payos/payments/{reference}", payH.PaymentDetail)
		})

		r.Route("/api/v1", func(r chi.Router) {
			// ---------- auth ----------
			r.Post("/auth/register", authH.Register)
			r.Post("/auth/login", authH.Login)
			r.Post("/auth/refresh", authH.Refresh)

			// ---------- me ----------
			r.Group(func(r chi.Router) {
				r.Use(authMW.Auth)
				r.Get("/me", accH.Me)
				r.Get("/me/history", accH.History)
				r.Get("/me/topups", accH.TopUpList)
				r.Get("/me/notifications", accH.Notifications)
				r.Post("/me/notifications/{id}/read", accH.MarkRead)
			})

			// ---------- admin ----------
			r.Group(func(r chi.Router) {
				r.Use(authMW.Auth, middleware.RequireRole(models.RoleAdmin))
				r.Get("/admin/users", accH.AdminUsers)
				r.Get("/admin/topups", accH.AdminTopUps)
			})
		})
	})

	return r
}
