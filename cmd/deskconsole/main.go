package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/adapter/driven/deskapi"
	sqliteadapter "github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/adapter/driven/sqlite"
	httphandler "github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/adapter/driving/http"
	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/application"
	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid values).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"api_base_url", cfg.APIBaseURL,
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"request_timeout", cfg.RequestTimeout,
		"read_retries", cfg.ReadRetries,
		"session_persistence", cfg.HasSecretKey(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "schema_version", version)

	// 5. Wire adapters.
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	backend, err := deskapi.NewClient(cfg.APIBaseURL, deskapi.Options{
		Timeout:     cfg.RequestTimeout,
		ReadRetries: cfg.ReadRetries,
		Logger:      slog.Default(),
	})
	if err != nil {
		return err
	}

	// 6. Create the session guard and pick up any persisted session.
	guard := application.NewSessionGuard(backend, credentialStore, application.GuardOptions{
		ExpiryLeeway: cfg.ExpiryLeeway,
		UserInfoTTL:  cfg.UserInfoTTL,
		Logger:       slog.Default(),
	})
	guard.OnSessionEnd(backend.ResetCache)
	if err := guard.Restore(ctx); err != nil {
		return err
	}

	// 7. Create resource and booking services.
	resources := application.NewDeltaUpdater(backend, guard, application.DiffPolicy{MaxDepth: cfg.DiffMaxDepth}, slog.Default())
	bookings := application.NewBookingService(backend, guard)

	// 8. Create HTTP handler.
	apiHandler := httphandler.NewHandler(guard, resources, bookings, cfg.FallbackPath, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Reads may retry against the backend within the request timeout.
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	// 9. Log startup complete.
	slog.Info("deskconsole started",
		"listen_addr", cfg.ListenAddr,
		"api_base_url", cfg.APIBaseURL,
	)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 11. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
