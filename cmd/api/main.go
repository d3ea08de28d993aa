package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/attendsure/attendsure-api/config"
	"github.com/attendsure/attendsure-api/internal/handler"
	callHandler "github.com/attendsure/attendsure-api/internal/handler/call"
	contactHandler "github.com/attendsure/attendsure-api/internal/handler/contact"
	webhookHandler "github.com/attendsure/attendsure-api/internal/handler/webhook"
	"github.com/attendsure/attendsure-api/internal/middleware"
	"github.com/attendsure/attendsure-api/internal/repository/postgres"
	"github.com/attendsure/attendsure-api/internal/router"
	callService "github.com/attendsure/attendsure-api/internal/service/call"
	contactService "github.com/attendsure/attendsure-api/internal/service/contact"
	webhookService "github.com/attendsure/attendsure-api/internal/service/webhook"
	"github.com/attendsure/attendsure-api/pkg/logger"
	redisbroker "github.com/attendsure/attendsure-api/pkg/messaging/redis"
	"github.com/attendsure/attendsure-api/pkg/metrics"
	"github.com/attendsure/attendsure-api/pkg/vapi"
	"github.com/attendsure/attendsure-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer, "attendsure")

	// Repositories
	patientRepo := postgres.NewPatientRepository(db)
	callRepo := postgres.NewCallRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	// Provider client
	vapiClient := vapi.NewClient(vapi.Config{
		BaseURL: cfg.Vapi.BaseURL,
		APIKey:  cfg.Vapi.APIKey,
		Timeout: cfg.Vapi.Timeout,
	}, log.Logger)

	// Services
	launcher := callService.NewLauncher(callRepo, outboxRepo, vapiClient, callService.LauncherConfig{
		ConcurrencyLimit: cfg.Launcher.ConcurrencyLimit,
		UseVapiScheduler: cfg.Vapi.UseVapiScheduler,
		AssistantID:      cfg.Vapi.AssistantID,
		PhoneNumberID:    cfg.Vapi.PhoneNumberID,
		DispatchTimeout:  cfg.Launcher.DispatchTimeout,
	}, appLogger, appMetrics)

	contactSvc := contactService.NewService(patientRepo, appLogger)
	callSvc := callService.NewService(patientRepo, callRepo, outboxRepo, launcher, appLogger)
	webhookSvc := webhookService.NewService(callRepo, outboxRepo, cfg.Webhook.Secret, appLogger, appMetrics)

	// Handlers
	h := handler.NewHandler(db, broker.(*redisbroker.RedisBroker))
	contactH := contactHandler.NewHandler(contactSvc)
	callH := callHandler.NewHandler(callSvc)
	webhookH := webhookHandler.NewHandler(webhookSvc)

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	}

	routerConfig := router.Config{
		CORSConfig:    corsConfig,
		MetricsPrefix: "attendsure_http",
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimitRPS = cfg.RateLimit.RequestsPerSecond
		routerConfig.RateLimitBurst = cfg.RateLimit.Burst
	}

	r := router.NewRouter(contactH, callH, webhookH, h, prometheus.DefaultRegisterer, routerConfig)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Outbox processor publishes call lifecycle events to Redis.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	outboxProcessor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
	}, appLogger, appMetrics)
	go outboxProcessor.Start(workerCtx)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	workerCancel()

	// Let in-flight dispatch tasks settle their terminal state before exit.
	done := make(chan struct{})
	go func() {
		launcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn().Msg("timed out waiting for in-flight dispatches")
	}

	log.Info().Msg("server exited properly")
}
