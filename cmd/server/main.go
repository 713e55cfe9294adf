package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/logfilters/internal/api"
	"github.com/freewebtopdf/logfilters/internal/cache"
	"github.com/freewebtopdf/logfilters/internal/config"
	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/health"
	"github.com/freewebtopdf/logfilters/internal/matcher"
	"github.com/freewebtopdf/logfilters/internal/storage"
	"github.com/freewebtopdf/logfilters/internal/watcher"
)

func main() {
	healthCheck := flag.Bool("health-check", false, "Perform health check and exit")
	flag.Parse()

	if *healthCheck {
		performHealthCheck()
		return
	}

	setupLogger()

	log.Info().Msg("Log filter service starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create required directories")
	}

	logStartupConfig(cfg)

	store := storage.NewStore(cfg.StoreConfig(), cfg.Decider())

	lruCache := cache.NewLRUCacheWithBudget(cfg.Cache.MaxSize, cfg.Cache.MaxBytes)

	lineMatcher := matcher.NewMatcher(store, lruCache)

	ctx := context.Background()
	if err := lineMatcher.LoadRules(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load rules into matcher")
	}

	store.OnCommit(func(ctx context.Context) {
		if err := lineMatcher.LoadRules(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to reload matcher after commit")
		}
	})

	healthChecker := health.NewSystemHealthChecker(store, lineMatcher, lruCache)

	var settingsWatcher *watcher.Watcher
	if cfg.Storage.WatchSettings {
		settingsWatcher, err = watcher.New(cfg.Storage.SettingsPath, cfg.Storage.WatchDebounce, lineMatcher.LoadRules)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create settings watcher")
		}
		if err := settingsWatcher.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start settings watcher")
		}
		healthChecker.AddComponent("watcher", settingsWatcher.HealthCheck)
		log.Info().Str("path", settingsWatcher.Path()).Msg("Settings watcher started")
	}

	router := api.SetupRouterWithDeps(api.RouterDependencies{
		Matcher:       lineMatcher,
		Provider:      store,
		Sessions:      store,
		Cache:         lruCache,
		Validator:     domain.NewValidator(),
		HealthChecker: healthChecker,
	}, cfg.RouterConfig())

	app := router.App
	app.Server().ReadTimeout = cfg.Server.ReadTimeout
	app.Server().WriteTimeout = cfg.Server.WriteTimeout

	setupGracefulShutdown(app, settingsWatcher, router.Cleanup)

	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().
		Int("port", cfg.Server.Port).
		Str("addr", serverAddr).
		Msg("Starting HTTP server")

	if err := app.Listen(serverAddr); err != nil {
		log.Fatal().Err(err).Msg("Failed to start HTTP server")
	}
}

func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339

	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if os.Getenv("LOG_FORMAT") == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func logStartupConfig(cfg *config.Config) {
	log.Info().
		Int("server_port", cfg.Server.Port).
		Dur("server_read_timeout", cfg.Server.ReadTimeout).
		Dur("server_write_timeout", cfg.Server.WriteTimeout).
		Int("server_body_limit", cfg.Server.BodyLimit).
		Int("cache_max_size", cfg.Cache.MaxSize).
		Int64("cache_max_bytes", cfg.Cache.MaxBytes).
		Str("storage_settings_path", cfg.Storage.SettingsPath).
		Str("storage_auto_dir", cfg.Storage.AutoDir).
		Str("storage_reload_policy", cfg.Storage.ReloadPolicy).
		Bool("storage_watch_settings", cfg.Storage.WatchSettings).
		Int("rate_limit_rps", cfg.RateLimit.RPS).
		Int("rate_limit_burst", cfg.RateLimit.Burst).
		Strs("security_cors_origins", cfg.Security.CORSOrigins).
		Str("logging_level", cfg.Logging.Level).
		Str("logging_format", cfg.Logging.Format).
		Msg("Configuration loaded successfully")
}

func setupGracefulShutdown(app *fiber.App, settingsWatcher *watcher.Watcher, cleanup func()) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ctx.Done()
		stop()

		log.Info().Msg("Received shutdown signal, initiating graceful shutdown")

		if settingsWatcher != nil {
			log.Info().Msg("Stopping settings watcher...")
			if err := settingsWatcher.Stop(); err != nil {
				log.Warn().Err(err).Msg("Error stopping settings watcher")
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log.Info().Msg("Stopping HTTP server...")
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error during HTTP server shutdown")
		}

		if cleanup != nil {
			cleanup()
		}

		log.Info().Msg("Graceful shutdown completed")
		os.Exit(0)
	}()
}

func performHealthCheck() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	client := &http.Client{
		Timeout: 3 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
