package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/hospitalops/internal/adapters/cache"
	"github.com/zatekoja/hospitalops/internal/adapters/database"
	"github.com/zatekoja/hospitalops/internal/adapters/events"
	"github.com/zatekoja/hospitalops/internal/api/handlers"
	"github.com/zatekoja/hospitalops/internal/api/routes"
	"github.com/zatekoja/hospitalops/internal/application/services"
	"github.com/zatekoja/hospitalops/internal/domain/providers"
	"github.com/zatekoja/hospitalops/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/hospitalops/internal/infrastructure/clients/redis"
	"github.com/zatekoja/hospitalops/internal/infrastructure/observability"
	"github.com/zatekoja/hospitalops/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger("queue-api", cfg.Server.Env)

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize postgres client")
	}
	defer pgClient.Close()
	log.Info().Msg("postgres client initialized")

	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}
	defer redisClient.Close()
	log.Info().Msg("redis client initialized")

	eventBus := events.NewRedisEventBus(redisClient, cfg.Realtime.PublishTimeout)
	cacheProvider := cache.NewRedisAdapter(redisClient)

	queueStore := database.NewQueueStoreAdapter(pgClient)
	notificationRepo := database.NewNotificationAdapter(sqlx.NewDb(pgClient.DB(), "postgres"))
	userDirectory := database.NewUserDirectoryAdapter(pgClient)

	clock := providers.SystemClock{}

	notificationService := services.NewNotificationService(notificationRepo, userDirectory, eventBus, clock, cfg.Realtime.FanOutBatch)
	defer notificationService.Stop()

	admissionService := services.NewAdmissionService(queueStore, notificationRepo, eventBus, clock)
	dispatchService := services.NewDispatchService(queueStore, notificationRepo, eventBus, clock)
	scheduleService := services.NewScheduleService(queueStore, eventBus, clock, notificationService)
	staffService := services.NewStaffService(userDirectory, cacheProvider)

	router := routes.NewRouter(
		handlers.NewQueueHandler(admissionService, dispatchService, scheduleService),
		handlers.NewScheduleHandler(scheduleService),
		handlers.NewNotificationHandler(notificationService),
		handlers.NewStaffHandler(staffService),
		userDirectory,
	)
	handler := router.SetupRoutes()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("api server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("api server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("api server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}
	if err := eventBus.Close(); err != nil {
		log.Error().Err(err).Msg("error closing event bus")
	}

	log.Info().Msg("api server stopped")
}
