package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"srwa/internal/app"
	"srwa/internal/compliance"
	"srwa/internal/distribution"
	"srwa/internal/hook"
	jwttoken "srwa/internal/jwt_token"
	"srwa/internal/orders"
	"srwa/internal/platform/config"
	"srwa/internal/platform/httpserver"
	"srwa/internal/platform/logger"
	"srwa/internal/platform/metrics"
	authmw "srwa/pkg/platform/middleware/auth"
	request "srwa/pkg/platform/middleware/request"
	"srwa/pkg/platform/middleware/requesttime"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal service packages.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer services.Close()

	if services.Relay != nil {
		go func() {
			if err := services.Relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit relay stopped", "error", err)
			}
		}()
	}

	srv := httpserver.New(cfg.Server.Addr, router(cfg, services, log))
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting srwa", "addr", cfg.Server.Addr, "custodian", services.Custodian.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func router(cfg config.Config, services *app.App, log *slog.Logger) http.Handler {
	httpMetrics := metrics.New()
	jwt := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer))

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(httpMetrics.Middleware)

	complianceHandler := compliance.NewHandler(services.Compliance, log)
	hookHandler := hook.NewHandler(services.Hooks, log)
	distributionHandler := distribution.NewHandler(services.Distribution, log)
	orderHandler := orders.NewHandler(services.Orders, log)

	r.Get("/healthz", services.Health)
	r.Handle("/metrics", metrics.Handler())

	complianceHandler.Register(r)
	hookHandler.Register(r)
	orderHandler.Register(r)

	r.Route("/admin", func(r chi.Router) {
		r.Use(authmw.RequireAuth(jwt, log))
		r.Use(authmw.RequireRole(log, jwttoken.RoleAdmin))
		complianceHandler.RegisterAdmin(r)
		hookHandler.RegisterAdmin(r)
		distributionHandler.RegisterAdmin(r)
		orderHandler.RegisterAdmin(r)
	})
	return r
}
