package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/hospitalops/internal/adapters/database"
	"github.com/zatekoja/hospitalops/internal/adapters/events"
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

	observability.InitLogger("queue-scheduler", cfg.Server.Env)

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize postgres client")
		os.Exit(1)
	}
	defer pgClient.Close()

	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize redis client")
		os.Exit(1)
	}
	defer redisClient.Close()

	eventBus := events.NewRedisEventBus(redisClient, cfg.Realtime.PublishTimeout)
	defer eventBus.Close()

	queueStore := database.NewQueueStoreAdapter(pgClient)
	notificationRepo := database.NewNotificationAdapter(sqlx.NewDb(pgClient.DB(), "postgres"))
	userDirectory := database.NewUserDirectoryAdapter(pgClient)

	clock := providers.SystemClock{}

	notificationService := services.NewNotificationService(notificationRepo, userDirectory, eventBus, clock, cfg.Realtime.FanOutBatch)
	defer notificationService.Stop()

	scheduler := services.NewSchedulerService(queueStore, notificationService, eventBus, clock, cfg.Scheduler)
	scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("scheduler shutting down")
	scheduler.Stop()
}
