package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reserva_backend/internal/appointments"
	"reserva_backend/internal/catalog"
	"reserva_backend/internal/chat"
	"reserva_backend/internal/chatbot"
	"reserva_backend/internal/email"
	"reserva_backend/internal/events"
	apphttp "reserva_backend/internal/http"
	"reserva_backend/internal/http/router"
	"reserva_backend/internal/mercadopago"
	"reserva_backend/internal/notification"
	"reserva_backend/internal/payments"
	"reserva_backend/internal/subscriptions"
	"reserva_backend/internal/tenants"
	"reserva_backend/platform/config"
	"reserva_backend/platform/db"
	"reserva_backend/platform/logger"
	"reserva_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	chatClient := chat.NewClient(cfg, log)
	gateway := mercadopago.NewClient(cfg, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	tenantSettings := tenants.NewCachedSettings(tenants.NewRepository(pool), 5*time.Minute)
	catalogRepo := catalog.New(pool)
	subscriptionRepo := subscriptions.NewRepository(pool)

	// Notification module subscribes to domain events (not HTTP-facing)
	notification.NewModule(pool, tenantSettings, catalogRepo, sender, chatClient, eventBus, cfg, log)

	appointmentsModule := appointments.NewModule(pool, val, catalogRepo, eventBus, cfg, log)
	subscriptionsModule := subscriptions.NewModule(pool, catalogRepo, eventBus, val)
	paymentsModule := payments.NewModule(pool, val, appointmentsModule.Service, subscriptionRepo,
		gateway, catalogRepo, tenantSettings, eventBus, cfg, log)

	// Plan-credit bookings charge through payments (breaks the circular
	// dependency between the two modules).
	appointmentsModule.Service.SetPlanCreditCharger(paymentsModule.Service)

	chatbotModule := chatbot.NewModule(appointmentsModule.Service, catalogRepo, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			appointmentsModule,
			subscriptionsModule,
			paymentsModule,
			chatbotModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
