package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/burnwatch/burnwatch/internal/api"
	"github.com/burnwatch/burnwatch/internal/config"
	"github.com/burnwatch/burnwatch/internal/dispatch"
	"github.com/burnwatch/burnwatch/internal/eval"
	"github.com/burnwatch/burnwatch/internal/logging"
	"github.com/burnwatch/burnwatch/internal/noise"
	"github.com/burnwatch/burnwatch/internal/recorder"
	"github.com/burnwatch/burnwatch/internal/scheduler"
	"github.com/burnwatch/burnwatch/internal/slo"
	"github.com/burnwatch/burnwatch/internal/storage/sqlite"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.WithFields(logrus.Fields{
		"port":     cfg.Port,
		"db":       cfg.DBPath,
		"seed_dir": cfg.SeedDir,
	}).Info("starting burnwatch server")

	// Open persistence
	store, err := sqlite.NewStore(cfg.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to open datastore")
	}
	defer store.Close()

	ctx := context.Background()

	// Seed definitions and suppression rules
	if cfg.SeedDir != "" {
		if err := seed(ctx, cfg, store, logger); err != nil {
			logger.WithError(err).Fatal("seeding failed")
		}
	}

	// Registry of SLO definitions
	registry := slo.NewRegistry(store, logger)
	if err := registry.Load(ctx); err != nil {
		logger.WithError(err).Fatal("failed to load slo definitions")
	}

	// Evaluation pipeline
	windows, err := cfg.BurnWindows()
	if err != nil {
		logger.WithError(err).Fatal("invalid window configuration")
	}
	evaluator := eval.NewEvaluator(registry, store, windows)
	noiseEngine := noise.NewEngine(store, store, cfg.Cooldown.Std(), cfg.RateCap, cfg.RateCapWindow.Std(), logger)

	// Escalation transport
	var notifier dispatch.NotifierPort
	if cfg.WebhookURL != "" {
		notifier = dispatch.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookToken, logger)
		logger.WithField("url", cfg.WebhookURL).Info("using webhook escalation transport")
	} else {
		notifier = dispatch.NewLogNotifier(logger)
		logger.Info("no webhook configured, escalations go to the log")
	}
	dispatcher := dispatch.NewDispatcher(notifier, logger)

	// Scheduler
	sched := scheduler.NewScheduler(registry, evaluator, noiseEngine, store, dispatcher, logger, scheduler.Options{
		Interval:         cfg.TickInterval.Std(),
		PairTimeout:      cfg.PairTimeout.Std(),
		Concurrency:      cfg.Concurrency,
		OutcomeRetention: cfg.OutcomeRetention.Std(),
	})
	if err := sched.Start(); err != nil {
		logger.WithError(err).Fatal("failed to start scheduler")
	}

	// Ops API
	rec := recorder.NewRecorder(registry, store, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	apiServer := api.NewServer(sched, store, rec, addr, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- apiServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.WithError(err).Fatal("server error")

	case sig := <-shutdown:
		logger.WithField("signal", sig.String()).Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout.Std())
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("error shutting down server")
		}
		sched.Stop()
		logger.Info("shutdown complete")
	}
}

// seed validates and loads seed files, then upserts their definitions
// and suppression rules. Validation failures abort startup so a typo in
// a seed file cannot silently drop an SLO.
func seed(ctx context.Context, cfg config.Config, store *sqlite.Store, logger logrus.FieldLogger) error {
	if _, err := os.Stat(cfg.SchemaPath); err == nil {
		validator, err := slo.NewValidator(cfg.SchemaPath)
		if err != nil {
			return fmt.Errorf("initialize validator: %w", err)
		}
		if errs := validator.ValidateDirectory(cfg.SeedDir); len(errs) > 0 {
			for _, e := range errs {
				logger.WithFields(logrus.Fields{
					"file": e.File,
					"path": e.Path,
				}).Error(e.Message)
			}
			return fmt.Errorf("%d validation error(s) in %s", len(errs), cfg.SeedDir)
		}
	} else {
		logger.WithField("path", cfg.SchemaPath).Warn("seed schema not found, skipping schema validation")
	}

	seeds, loadErrs := slo.LoadFromDirectory(cfg.SeedDir)
	if len(loadErrs) > 0 {
		return fmt.Errorf("%s: %s", loadErrs[0].File, loadErrs[0].Message)
	}

	var defs, rules int
	for _, s := range seeds {
		for _, seedSLO := range s.Doc.SLOs {
			def, err := seedSLO.Definition()
			if err != nil {
				return fmt.Errorf("%s: %w", s.File, err)
			}
			if err := store.UpsertDefinition(ctx, def); err != nil {
				return fmt.Errorf("upsert definition %s/%s: %w", def.Service, def.Metric, err)
			}
			defs++
		}
		for _, seedRule := range s.Doc.SuppressionRules {
			rule, err := noise.RuleFromSeed(seedRule)
			if err != nil {
				return fmt.Errorf("%s: %w", s.File, err)
			}
			if err := store.UpsertRule(ctx, rule); err != nil {
				return fmt.Errorf("upsert rule %q: %w", rule.Name, err)
			}
			rules++
		}
	}

	logger.WithFields(logrus.Fields{
		"definitions": defs,
		"rules":       rules,
	}).Info("seeded from directory")
	return nil
}

func parseFlags() (config.Config, error) {
	cfg := config.DefaultConfig()

	configFile := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config file)")
	host := flag.String("host", "", "HTTP server host (overrides config file)")
	dbPath := flag.String("db", "", "Path to the sqlite database (overrides config file)")
	seedDir := flag.String("seed-dir", "", "Directory containing seed YAML files (overrides config file)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config file)")

	flag.Parse()

	if *configFile != "" {
		if err := cfg.LoadFile(*configFile); err != nil {
			return cfg, err
		}
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *seedDir != "" {
		cfg.SeedDir = *seedDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	return cfg, nil
}
