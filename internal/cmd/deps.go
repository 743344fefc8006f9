package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/overseer/internal/archive"
	"github.com/harrison/overseer/internal/checkpoint"
	"github.com/harrison/overseer/internal/config"
	"github.com/harrison/overseer/internal/consult"
	"github.com/harrison/overseer/internal/engine"
	"github.com/harrison/overseer/internal/history"
	"github.com/harrison/overseer/internal/logger"
	"github.com/harrison/overseer/internal/planstore"
	"github.com/harrison/overseer/internal/retryloop"
	"github.com/harrison/overseer/internal/specialist"
)

// app bundles the wired components every command operates on.
type app struct {
	cfg      *config.Config
	console  *logger.Console
	store    *planstore.Store
	archiver *archive.Archiver
	registry *specialist.Registry
	invoker  *specialist.Invoker
	agg      *consult.Aggregator
	history  *history.Store
	cp       *checkpoint.Checkpoint
	retries  *retryloop.Controller
}

// loadConfig loads configuration and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	var logLevelPtr *string
	if cmd.Flags().Changed("log-level") {
		logLevel, _ := cmd.Flags().GetString("log-level")
		logLevelPtr = &logLevel
	}

	var specialistsDirPtr *string
	if cmd.Flags().Changed("specialists-dir") {
		dir, _ := cmd.Flags().GetString("specialists-dir")
		specialistsDirPtr = &dir
	}

	var invokeTimeoutPtr *time.Duration
	if cmd.Flags().Changed("invoke-timeout") {
		timeoutStr, _ := cmd.Flags().GetString("invoke-timeout")
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid invoke-timeout %q: %w", timeoutStr, err)
		}
		invokeTimeoutPtr = &timeout
	}

	cfg.MergeWithFlags(logLevelPtr, invokeTimeoutPtr, specialistsDirPtr)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildApp wires every component from the merged configuration.
func buildApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	console := logger.NewConsole(os.Stdout, cfg.LogLevel)

	registry := specialist.NewRegistry(cfg.SpecialistsDir)
	if err := registry.Load(); err != nil {
		return nil, fmt.Errorf("failed to load specialists: %w", err)
	}

	hist, err := history.NewStore(cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	invoker := specialist.NewInvoker(registry, cfg.InvokeTimeout)
	classifier := consult.NewClassifier(registry.KeywordTable(), cfg.DefaultDomain)

	cp := checkpoint.New(checkpoint.NewConsoleDecider(), hist)

	return &app{
		cfg:      cfg,
		console:  console,
		store:    planstore.NewStore(cfg.PlansDir, planstore.WithLockTimeout(cfg.LockTimeout)),
		archiver: archive.New(cfg.ArchiveDir),
		registry: registry,
		invoker:  invoker,
		agg:      consult.NewAggregator(classifier, invoker),
		history:  hist,
		cp:       cp,
		retries:  retryloop.NewController(cfg.Ceilings, cp, hist),
	}, nil
}

// close releases held resources.
func (a *app) close() {
	if a.history != nil {
		a.history.Close()
	}
}

// engine builds the execution engine over the app's components.
func (a *app) engine() *engine.Engine {
	runner := engine.NewSpecialistRunner(a.invoker, a.history)
	return engine.New(a.store, runner, a.cp, a.retries,
		engine.WithArchiver(a.archiver),
		engine.WithValidator(engine.NewAggregatorValidator(a.agg)),
		engine.WithLogger(a.console),
	)
}
