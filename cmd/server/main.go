package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/agenda_os/backend/internal/config"
	"github.com/agenda_os/backend/internal/conversation"
	"github.com/agenda_os/backend/internal/db"
	"github.com/agenda_os/backend/internal/dedup"
	httpapi "github.com/agenda_os/backend/internal/http"
	"github.com/agenda_os/backend/internal/http/handlers"
	"github.com/agenda_os/backend/internal/intent"
	"github.com/agenda_os/backend/internal/service"
	"github.com/agenda_os/backend/internal/ticketing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "agenda-backend").Logger()

	policies, err := config.LoadPolicies(cfg.PolicyFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.PolicyFile).Msg("failed to load policies")
	}
	loc := cfg.Location()

	ctx := context.Background()
	checks := map[string]handlers.Check{}

	var backend ticketing.Client
	if cfg.DatabaseURL == "" {
		mem := ticketing.NewMemory()
		seedDemo(mem, time.Now().In(loc))
		backend = mem
		logger.Info().Msg("using in-memory ticketing backend with demo data")
	} else {
		store, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		defer store.Close()
		if cfg.Env == "dev" {
			if err := store.EnsureSchema(ctx); err != nil {
				logger.Fatal().Err(err).Msg("failed to apply schema")
			}
		}
		backend = store
		checks["postgres"] = store.Ping
	}

	var (
		dedupStore dedup.Store
		sessions   conversation.SessionStore
	)
	if cfg.RedisURL == "" {
		dedupStore = dedup.NewMemoryStore(cfg.DedupMaxEntries)
		sessions = conversation.NewMemorySessions()
		logger.Info().Msg("using in-memory dedup and session stores")
	} else {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		dedupStore = dedup.NewRedisStore(rdb, cfg.DedupTTL)
		sessions = conversation.NewRedisSessions(rdb, cfg.SessionTTL)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	var extractor intent.Extractor = intent.Rules{Location: loc}
	if cfg.ExtractorURL != "" {
		extractor = intent.HTTPExtractor{
			BaseURL:  cfg.ExtractorURL,
			Client:   &http.Client{Timeout: cfg.RequestTimeout},
			Fallback: extractor,
			Location: loc,
			Logger:   logger,
		}
	} else {
		logger.Info().Msg("using rule-based intent extractor")
	}

	avail := &service.AvailabilityEngine{
		Ticketing: backend,
		Policies:  policies,
		Location:  loc,
		Timeout:   cfg.TicketingTimeout,
		Logger:    logger,
	}
	engine := &conversation.Engine{
		Availability: avail,
		Extractor:    extractor,
		Sessions:     sessions,
		Dedup:        dedup.NewGuard(dedupStore, cfg.DedupTTL, logger),
		PhoneRegion:  cfg.PhoneRegion,
		Logger:       logger,
	}
	h := &handlers.Handler{
		Engine:       engine,
		Availability: avail,
		Sessions:     sessions,
		Policies:     policies,
		Checks:       checks,
		Validator:    validator.New(),
		Logger:       logger,
		PhoneRegion:  cfg.PhoneRegion,
	}

	router := httpapi.Router(cfg, h, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
