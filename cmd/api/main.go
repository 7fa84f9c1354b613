package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lolmarket/topup-backend/internal/api"
	"github.com/lolmarket/topup-backend/internal/auth"
	"github.com/lolmarket/topup-backend/internal/config"
	"github.com/lolmarket/topup-backend/internal/db"
	"github.com/lolmarket/topup-backend/internal/logger"
	"github.com/lolmarket/topup-backend/internal/metrics"
	"github.com/lolmarket/topup-backend/internal/payos"
	repo "github.com/lolmarket/topup-backend/internal/repository"
	"github.com/lolmarket/topup-backend/internal/repository/memory"
	"github.com/lolmarket/topup-backend/internal/repository/postgres"
	"github.com/lolmarket/topup-backend/internal/services"
	"github.com/lolmarket/topup-backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store repo.Store
	switch cfg.StoreDriver {
	case "memory":
		if cfg.IsProd() {
			log.Error("memory store is not allowed in prod")
			os.Exit(1)
		}
		store = memory.NewStore()
		log.Warn("using in-memory store; data is lost on restart")
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			log.Error("db connect", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		if cfg.Migrate {
			if err := db.RunMigrations(ctx, pool, log); err != nil {
				log.Error("migrations", "err", err)
				os.Exit(1)
			}
		}
		store = postgres.NewStore(pool)
	}

	var gw services.Gateway
	if cfg.GatewayConfigured() {
		gw = payos.NewClient(payos.Config{
			ClientID:    cfg.PayOS.ClientID,
			APIKey:      cfg.PayOS.APIKey,
			ChecksumKey: cfg.PayOS.ChecksumKey,
			BaseURL:     cfg.PayOS.BaseURL,
			Timeout:     cfg.PayOS.Timeout,
		})
	} else {
		log.Warn("payos credentials missing; payment links and the pending sweeper are disabled")
	}
	if cfg.Env == "dev" {
		log.Warn("APP_ENV=dev: \"Bearer dev-<user id>\" tokens are accepted without a signature")
	}
	if cfg.UnsignedWebhooksAllowed() {
		log.Warn("PAYOS_ALLOW_UNSIGNED is on; unsigned webhooks will be processed")
	}

	tm := auth.NewTokenManager(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret, cfg.JWT.Issuer, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	rec := services.NewReconciler(store, log)
	userSvc := services.NewUserService(store.Repos().Users, tm, cfg.AdminEmails)
	topUpSvc := services.NewTopUpService(store, gw, services.TopUpOptions{
		MinAmount: cfg.TopUp.MinAmount,
		MaxAmount: cfg.TopUp.MaxAmount,
		ReturnURL: cfg.PayOS.ReturnURL,
		CancelURL: cfg.PayOS.CancelURL,
		LinkTTL:   cfg.TopUp.LinkTTL,
	}, log)
	accountSvc := services.NewAccountService(store)

	wp := worker.NewPool(cfg.Workers, 256)
	defer wp.Stop()
	if gw != nil {
		sweeper := services.NewSweeper(store, gw, rec, wp, cfg.TopUp.SweepMinAge, log)
		go sweeper.Run(ctx, cfg.TopUp.SweepInterval)
	}

	metrics.Init()
	r := api.NewRouter(api.RouterDeps{
		Cfg:        cfg,
		Log:        log,
		Store:      store,
		TM:         tm,
		UserSvc:    userSvc,
		TopUpSvc:   topUpSvc,
		AccountSvc: accountSvc,
		Reconciler: rec,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
