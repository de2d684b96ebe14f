package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"llmexperimenter/internal/api"
	"llmexperimenter/internal/auth"
	"llmexperimenter/internal/config"
	"llmexperimenter/internal/logger"
	"llmexperimenter/internal/metrics"
	"llmexperimenter/internal/redis"
	"llmexperimenter/internal/service/ai"
	"llmexperimenter/internal/service/chat"
	"llmexperimenter/internal/service/history"
	"llmexperimenter/internal/service/userconfig"
	"llmexperimenter/internal/storage"
)

func main() {
	// API keys usually live in .env next to the binary; a missing file is fine.
	_ = godotenv.Load()
	logger.Init()

	cfg, err := config.Load(os.Getenv("LLMEXP_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("open database")
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Str("addr", redis.Addr(cfg.Redis)).Msg("connect redis")
		}
		defer cache.Close()
	}

	pm := metrics.New(cfg.Metrics.Namespace)
	adapters, err := ai.NewAdapters(ctx, cfg, pm)
	if err != nil {
		log.Fatal().Err(err).Msg("init providers")
	}

	settings := config.NewHolder(cfg)
	go func() {
		if err := settings.Watch(ctx); err != nil {
			log.Warn().Err(err).Str("path", cfg.Path()).Msg("config watcher stopped")
		}
	}()

	historyGateway := history.NewGateway(db)
	orchestrator := chat.NewOrchestrator(adapters, historyGateway)
	authService := auth.NewService(db, cache, cfg.Server.SessionTTL)
	authService.StartSessionCleaner(ctx, auth.DefaultCleanupInterval)

	handlers := api.NewHandler(
		authService,
		orchestrator,
		historyGateway,
		userconfig.NewService(db, settings),
		settings,
		pm,
	)

	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger())
	handlers.RegisterRoutes(router)

	log.Info().Strs("providers", providerNames(orchestrator)).Msg("providers ready")
	if err := api.Serve(ctx, cfg.Server.Address, router); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func providerNames(o *chat.Orchestrator) []string {
	var names []string
	for _, p := range o.Providers() {
		names = append(names, string(p))
	}
	return names
}
