package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/filesentry/internal/api"
	"github.com/freewebtopdf/filesentry/internal/cache"
	"github.com/freewebtopdf/filesentry/internal/compiler"
	"github.com/freewebtopdf/filesentry/internal/config"
	"github.com/freewebtopdf/filesentry/internal/domain"
	"github.com/freewebtopdf/filesentry/internal/engine"
	"github.com/freewebtopdf/filesentry/internal/health"
	"github.com/freewebtopdf/filesentry/internal/metrics"
	"github.com/freewebtopdf/filesentry/internal/notify"
	"github.com/freewebtopdf/filesentry/internal/pipeline"
	"github.com/freewebtopdf/filesentry/internal/provider"
	"github.com/freewebtopdf/filesentry/internal/storage"
	"github.com/freewebtopdf/filesentry/internal/validator"
	"github.com/freewebtopdf/filesentry/internal/watcher"

	docs "github.com/freewebtopdf/filesentry/docs"
)

// @title FileSentry API
// @version 1.0
// @description Natural-language file change alerts: rules are compiled by a local language model and evaluated against a watched directory tree
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /
// @schemes http https

// @tag.name Rules
// @tag.description Rule compilation and management

// @tag.name Events
// @tag.description Event submission and match history

// @tag.name System
// @tag.description System health and metrics operations

const shutdownTimeout = 30 * time.Second

func main() {
	healthCheck := flag.Bool("health-check", false, "Perform health check and exit")
	flag.Parse()

	if *healthCheck {
		performHealthCheck()
		return
	}

	setupLogger()

	log.Info().Msg("FileSentry starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create required directories")
	}

	docs.SwaggerInfo.Host = os.Getenv("DOMAIN")

	logStartupConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	if err := srv.start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start watching")
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("Received shutdown signal, initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown finished with errors")
		}
	}()

	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().
		Int("port", cfg.Server.Port).
		Str("addr", serverAddr).
		Msg("Starting HTTP server")

	if err := srv.app.Listen(serverAddr); err != nil {
		log.Fatal().Err(err).Msg("Failed to start HTTP server")
	}

	<-srv.stopped
	log.Info().Msg("Graceful shutdown completed")
}

// server owns every long-lived component of the daemon
type server struct {
	cfg        *config.Config
	app        *fiber.App
	store      *storage.Store
	engine     *engine.Engine
	watcher    *watcher.Watcher
	dispatcher *pipeline.Dispatcher
	health     *health.SystemHealthChecker
	scheduler  *cron.Cron

	cleanupRouter func()
	runCancel     context.CancelFunc
	runDone       chan struct{}
	stopped       chan struct{}
}

func newServer(ctx context.Context, cfg *config.Config) (*server, error) {
	m := metrics.New()

	store := storage.NewStore(cfg.RulesPath(),
		storage.WithLogger(log.Logger.With().Str("component", "storage").Logger()),
		storage.WithSaveHook(m.ObserveSave),
	)
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	compileCache := cache.NewLRUCache(cfg.Cache.CompileCacheSize)
	generator := provider.NewOllamaProvider(provider.Config{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	})
	ruleCompiler := compiler.New(generator,
		compiler.WithLogger(log.Logger.With().Str("component", "compiler").Logger()),
		compiler.WithCache(compileCache),
		compiler.WithRetries(cfg.LLM.MaxRetries),
		compiler.WithObserver(m),
	)

	ruleEngine := engine.New(store,
		engine.WithLogger(log.Logger.With().Str("component", "engine").Logger()),
		engine.WithHistoryLimit(cfg.Engine.RecentMatchLimit),
		engine.WithObserver(m),
	)

	notifiers := []notify.Notifier{notify.NewLogNotifier(log.Logger.With().Str("component", "notify").Logger())}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout))
	}
	dispatcher := pipeline.New(ruleEngine, notifiers,
		pipeline.WithLogger(log.Logger.With().Str("component", "pipeline").Logger()),
		pipeline.WithObserver(m),
		pipeline.WithNotifyTimeout(cfg.Notify.Timeout),
	)

	fileWatcher, err := watcher.New(cfg.Watch.Dir,
		watcher.WithLogger(log.Logger.With().Str("component", "watcher").Logger()),
		watcher.WithDebounce(cfg.Watch.Debounce),
		watcher.WithIgnore(cfg.WatchIgnore()...),
	)
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	checker := health.NewSystemHealthChecker(store, ruleEngine,
		health.WithComponent("compiler", ruleCompiler.CheckHealth),
		health.WithComponent("watcher", fileWatcher.HealthCheck),
		health.WithComponent("cache", compileCache.HealthCheck),
	)

	router := api.SetupRouterWithDeps(api.RouterDependencies{
		Repository:    store,
		Engine:        ruleEngine,
		Compiler:      ruleCompiler,
		Validator:     validator.NewRuleValidator(),
		Dispatcher:    dispatcher,
		HealthChecker: checker,
		Metrics:       m.Handler(),
	}, api.RouterConfig{
		CORSOrigins:    cfg.Security.CORSOrigins,
		BodyLimit:      cfg.Server.BodyLimit,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RateLimitRPS:   cfg.Security.RateLimitRPS,
		RateLimitBurst: cfg.Security.RateLimitBurst,
	})

	return &server{
		cfg:           cfg,
		app:           router.App,
		store:         store,
		engine:        ruleEngine,
		watcher:       fileWatcher,
		dispatcher:    dispatcher,
		health:        checker,
		scheduler:     cron.New(),
		cleanupRouter: router.Cleanup,
		runDone:       make(chan struct{}),
		stopped:       make(chan struct{}),
	}, nil
}

// start begins watching, dispatching and scheduled maintenance
func (s *server) start(ctx context.Context) error {
	if _, err := s.scheduler.AddFunc(s.cfg.Maintenance.Schedule, func() {
		s.runMaintenance(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid maintenance schedule: %w", err)
	}

	if err := s.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.cfg.Watch.Dir, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel
	go func() {
		defer close(s.runDone)
		if err := s.dispatcher.Run(runCtx, s.watcher.Events()); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Event dispatcher stopped")
		}
	}()

	go func() {
		for err := range s.watcher.Errors() {
			log.Warn().Err(err).Msg("Watcher error")
		}
	}()

	s.scheduler.Start()
	log.Info().Str("schedule", s.cfg.Maintenance.Schedule).Msg("Maintenance scheduler started")
	return nil
}

// runMaintenance drops expired threshold window entries and logs health
func (s *server) runMaintenance(ctx context.Context) {
	pruned, err := s.engine.PruneWindows(ctx, domain.NowMillis())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to prune threshold windows")
	}

	report := s.health.CheckHealth(ctx)
	event := log.Debug()
	if report.Status != domain.HealthStatusHealthy {
		event = log.Warn()
	}
	event.
		Int("pruned_windows", pruned).
		Str("status", report.Status).
		Msg("Maintenance completed")
}

// shutdown stops intake first, then drains and persists
func (s *server) shutdown(ctx context.Context) error {
	defer close(s.stopped)

	var errs []error

	log.Info().Msg("Stopping file watcher...")
	if err := s.watcher.Close(); err != nil {
		errs = append(errs, err)
	}

	if s.runCancel != nil {
		select {
		case <-s.runDone:
		case <-ctx.Done():
			s.runCancel()
		}
	}

	cronCtx := s.scheduler.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	log.Info().Msg("Stopping HTTP server...")
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	s.cleanupRouter()

	log.Info().Msg("Flushing rule store...")
	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	return errors.Join(errs...)
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
		Str("rules_path", cfg.RulesPath()).
		Str("watch_dir", cfg.Watch.Dir).
		Strs("watch_ignore", cfg.WatchIgnore()).
		Dur("watch_debounce", cfg.Watch.Debounce).
		Str("llm_endpoint", cfg.LLM.Endpoint).
		Str("llm_model", cfg.LLM.Model).
		Int("compile_cache_size", cfg.Cache.CompileCacheSize).
		Bool("webhook_enabled", cfg.Notify.WebhookURL != "").
		Strs("security_cors_origins", cfg.Security.CORSOrigins).
		Str("maintenance_schedule", cfg.Maintenance.Schedule).
		Str("logging_level", cfg.Logging.Level).
		Str("logging_format", cfg.Logging.Format).
		Msg("Configuration loaded successfully")
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
