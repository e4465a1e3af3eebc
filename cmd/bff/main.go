// Command bff runs the backend-for-frontend API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/atriumhq/atrium/internal/app"
	"github.com/atriumhq/atrium/internal/config"
	"github.com/atriumhq/atrium/internal/httpapi"
	"github.com/atriumhq/atrium/internal/middleware"
	"github.com/atriumhq/atrium/internal/objstore"
	"github.com/atriumhq/atrium/internal/platform/database"
	"github.com/atriumhq/atrium/internal/platform/migrations"
	"github.com/atriumhq/atrium/internal/platform/redisclient"
	"github.com/atriumhq/atrium/internal/services/attachments"
	"github.com/atriumhq/atrium/internal/services/notifications"
	"github.com/atriumhq/atrium/internal/session"
	"github.com/atriumhq/atrium/internal/storage/postgres"
	"github.com/atriumhq/atrium/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bff:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Component: "bff",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores := app.Stores{}
	if cfg.Database.DSN != "" {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if cfg.Database.AutoMigrate {
			if err := migrations.Apply(ctx, db.DB); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			log.Info("Database migrations applied")
		}

		pg := postgres.New(db)
		stores = app.Stores{
			Tenants:       pg,
			Conversations: pg,
			Messages:      pg,
			Attachments:   pg,
			Notifications: pg,
			Dashboards:    pg,
		}
	} else {
		log.Warn("DATABASE_DSN not set; using in-memory stores")
	}

	opts := app.Options{
		Attachments: attachments.Config{
			MaxSizeBytes: cfg.Attachments.MaxSizeBytes,
			URLExpiry:    cfg.ObjectStore.URLExpiry,
		},
		Dispatcher: notifications.DispatcherConfig{
			Schedule:       cfg.Notifications.DispatchSchedule,
			Batch:          cfg.Notifications.DispatchBatch,
			WebhookTimeout: cfg.Notifications.WebhookTimeout,
		},
		EnableDispatcher: true,
	}

	sessions := session.Store(session.NewMemoryStore())
	if cfg.Redis.URL != "" || cfg.Redis.Addr != "" {
		redisClient, err := redisclient.Open(ctx, cfg.Redis)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable; sessions and unread counts fall back to memory")
		} else {
			defer redisClient.Close()
			opts.Redis = redisClient
			sessions = session.NewRedisStore(redisClient)
		}
	}

	if cfg.ObjectStore.Endpoint != "" {
		objects, err := objstore.NewMinio(cfg.ObjectStore)
		if err != nil {
			return fmt.Errorf("connect object store: %w", err)
		}
		opts.Objects = objects
	}

	application, err := app.New(stores, opts, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	handler := httpapi.NewHandler(httpapi.Deps{
		Tenants:       application.Tenants,
		Messaging:     application.Messaging,
		Notifications: application.Notifications,
		Attachments:   application.Attachments,
		Dashboards:    application.Dashboards,
		Sessions:      sessions,
		Log:           log,
	}, httpapi.Config{
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		SessionTTL:     cfg.Auth.SessionTTL,
		CookieSecure:   cfg.Auth.CookieSecure,
		PlatformAdmins: cfg.Auth.PlatformAdmins,
	})

	chain := middleware.NewTracingMiddleware(log).Handler(handler)
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
		limiter.StartCleanup(time.Minute)
		chain = limiter.Handler(chain)
	}
	chain = middleware.NewCORSMiddleware(cfg.CORS.AllowedOrigins).Handler(chain)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("BFF listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("Application stop incomplete")
	}
	return nil
}
