package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/lims-resolver/pkg/cache"
	"github.com/Sternrassler/lims-resolver/pkg/client"
	"github.com/Sternrassler/lims-resolver/pkg/config"
	"github.com/Sternrassler/lims-resolver/pkg/logging"
	"github.com/Sternrassler/lims-resolver/pkg/ratelimit"
	"github.com/Sternrassler/lims-resolver/pkg/refs"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", os.Getenv("LIMS_CONFIG"), "path to a YAML config file")
	writeConfig := flag.String("write-config", "", "write the effective configuration to this path and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if *writeConfig != "" {
		if err := config.Save(cfg, *writeConfig); err != nil {
			log.Fatal().Err(err).Msg("Failed to write configuration")
		}
		return
	}

	logging.Setup(cfg.Logging.ToLogging())
	logger := logging.NewLogger("proxy")
	for _, w := range config.Warnings(cfg) {
		logger.Warn().Msg(w)
	}

	backend, err := client.New(cfg.Backend.ToClient())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create LIMS client")
	}
	backend.SetLogger(logging.NewLogger("lims-client"))

	var redisClient *redis.Client
	opts := refs.Options{Resolver: cfg.Resolver.ToResolver()}

	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.TTL).Msg("Connected to Redis")

		opts.Store = cache.NewManager(redisClient, cfg.Redis.TTL)
	}

	// A nil Redis client keeps the Retry-After state local to this process.
	backend.SetRateLimiter(ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit")))

	resolverLogger := logging.NewLogger("resolver")
	opts.Logger = &resolverLogger

	lims, err := refs.New(backend, opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create resolvers")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newRouter(lims, redisClient, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("backend", cfg.Backend.BaseURL).
			Dur("throttle_delay", cfg.Resolver.ThrottleDelay).
			Int("max_ids_per_request", cfg.Resolver.MaxIDsPerRequest).
			Msg("Starting LIMS proxy server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	lims.Close()
}
