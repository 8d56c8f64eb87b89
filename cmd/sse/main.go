package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/hospitalops/internal/adapters/database"
	"github.com/zatekoja/hospitalops/internal/adapters/events"
	"github.com/zatekoja/hospitalops/internal/api/handlers"
	"github.com/zatekoja/hospitalops/internal/api/middleware"
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

	observability.InitLogger("queue-sse", cfg.Server.Env)

	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}
	defer redisClient.Close()

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize postgres client")
	}
	defer pgClient.Close()

	eventBus := events.NewRedisEventBus(redisClient, cfg.Realtime.PublishTimeout)
	userDirectory := database.NewUserDirectoryAdapter(pgClient)
	sseHandler := handlers.NewSSEHandler(eventBus)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	authenticate := middleware.Authenticate(userDirectory)
	mux.Handle("GET /api/stream/queue/{department}", authenticate(http.HandlerFunc(sseHandler.StreamQueue)))
	mux.Handle("GET /api/stream/user/{id}", authenticate(http.HandlerFunc(sseHandler.StreamUser)))

	var handler http.Handler = mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.CORSMiddleware(handler)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// SSE responses stream indefinitely
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("sse server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("sse server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("sse server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}
	if err := eventBus.Close(); err != nil {
		log.Error().Err(err).Msg("error closing event bus")
	}

	log.Info().Msg("sse server stopped")
}
