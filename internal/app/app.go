// Package app assembles the scanner from configuration. Every command and
// the HTTP server share this wiring.
package app

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"authfuzz/internal/config"
	"authfuzz/internal/dao"
	"authfuzz/internal/database"
	"authfuzz/internal/services"
	"authfuzz/internal/utils"
	"authfuzz/pkg/attacks"
	"authfuzz/pkg/capture"
	"authfuzz/pkg/engine"
	apperrors "authfuzz/pkg/errors"
	"authfuzz/pkg/hooks"
	"authfuzz/pkg/logger"
	"authfuzz/pkg/metrics"
	"authfuzz/pkg/payloads"
	"authfuzz/pkg/report"
	"authfuzz/pkg/runner"
	"authfuzz/pkg/spray"
	"authfuzz/pkg/transport"

	"github.com/sirupsen/logrus"
)

// Options override configuration from command line flags.
type Options struct {
	Verbose     bool
	Strategies  []string
	CapturePath string
	// NoDatabase skips the scan history database even when enabled.
	NoDatabase bool
}

type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Client  *transport.Client
	Runners *runner.Registry
	Catalog attacks.Catalog
	Metrics *metrics.Collector
	Engine  *engine.Engine
	States  *services.ScanStatusManager
	Monitor *services.ScanMonitor

	Scans   services.ScanServiceMethods
	Configs services.ConfigServiceMethods
	Spray   *services.SprayService
}

func New(cfg *config.Config, opts Options) (*App, error) {
	log := newLogger(cfg, opts.Verbose)

	if opts.CapturePath != "" {
		cfg.CaptureLog = opts.CapturePath
	}
	if len(opts.Strategies) > 0 {
		cfg.Strategies = opts.Strategies
	}

	for _, dir := range []string{cfg.ReportsDir, cfg.ScanLogDir} {
		if dir == "" {
			continue
		}
		if err := utils.EnsureDirectoryExists(dir); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	tcfg := transport.DefaultConfig()
	tcfg.Proxy = cfg.Proxy
	tcfg.Timeout = cfg.Timeout
	client, err := transport.New(tcfg)
	if err != nil {
		return nil, fmt.Errorf("build http client: %w", err)
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	runners := runner.NewRegistry()
	loaded, err := runner.LoadDir(runners, cfg.TargetsDir, client, cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("load target scenarios: %w", err)
	}
	log.WithFields(logger.Fields{
		"dir":     cfg.TargetsDir,
		"targets": strings.Join(loaded, ","),
	}).Debug("Target scenarios loaded")

	catalog, err := attacks.DefaultCatalog().Select(cfg.Strategies...)
	if err != nil {
		return nil, apperrors.NewConfigError("strategies", cfg.Strategies, err.Error())
	}

	postHooks, err := buildHooks(cfg, log)
	if err != nil {
		return nil, err
	}

	var scanDao dao.ScanDAO
	if cfg.DBEnabled && !opts.NoDatabase {
		db, err := database.InitDB(cfg)
		if err != nil {
			log.WithError(err).Warn("Scan history disabled")
		} else {
			scanDao = dao.NewScanDAO(db)
		}
	}

	scanMutexes := &sync.Map{}
	states := services.NewScanStatusManager(engine.NewMemoryStateStore(), scanDao, log, scanMutexes)
	monitor := services.NewScanMonitor(scanDao, log, scanMutexes)

	eng := engine.NewEngine(
		engine.WithTransport(client),
		engine.WithCatalog(catalog),
		engine.WithRunners(runners),
		engine.WithStateStore(states),
		engine.WithReportStore(report.NewFileStore(cfg.ReportsDir)),
		engine.WithCapturePath(cfg.CaptureLog),
		engine.WithNormalizer(capture.NewNormalizer(log)),
		engine.WithHooks(postHooks...),
		engine.WithMetrics(collector),
		engine.WithCaptureWatcher(monitor),
		engine.WithScanLogDir(cfg.ScanLogDir),
		engine.WithLogger(log),
	)

	engine.InitGlobalQueue(cfg.MaxConcurrentScans)

	sprayDefaults := spray.DefaultConfig()
	sprayDefaults.LoginPath = cfg.Spray.LoginPath
	sprayDefaults.UsernameField = cfg.Spray.UsernameField
	sprayDefaults.PasswordField = cfg.Spray.PasswordField
	sprayDefaults.Username = cfg.Spray.Username
	sprayDefaults.CheckPath = cfg.Spray.CheckPath
	sprayDefaults.RatePerSecond = cfg.Spray.RatePerSecond
	sprayDefaults.Concurrency = cfg.Concurrency
	sprayDefaults.Timeout = cfg.Timeout

	return &App{
		Config:  cfg,
		Logger:  log,
		Client:  client,
		Runners: runners,
		Catalog: catalog,
		Metrics: collector,
		Engine:  eng,
		States:  states,
		Monitor: monitor,
		Scans:   services.NewScanService(eng, engine.GetGlobalQueue(), scanDao, log),
		Configs: services.NewConfigService(cfg.TargetsDir, runners, catalog),
		Spray: services.NewSprayService(client, report.NewRecorder(cfg.ResultsFile), sprayDefaults,
			payloads.Roots{SecLists: cfg.SecListsRoot, Payloads: cfg.PayloadsRoot}, collector, log),
	}, nil
}

func newLogger(cfg *config.Config, verbose bool) *logger.Logger {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	l := logger.NewLogger(level)
	if cfg.LogFile != "" {
		l.WithRotation(logger.RotateOptions{Path: cfg.LogFile})
	}
	return l
}

// buildHooks builds the configured post-scan hooks. A discord hook without
// credentials is skipped rather than failing startup.
func buildHooks(cfg *config.Config, log *logger.Logger) ([]engine.Hook, error) {
	opts := hooks.Options{ReportsDir: cfg.ReportsDir}

	var out []engine.Hook
	for _, name := range cfg.Hooks {
		built, err := hooks.Build(opts, name)
		if errors.Is(err, apperrors.ErrDiscordNotConfigured) {
			log.WithField("hook", name).Info("DISCORD_TOKEN not set - Discord notifications disabled")
			continue
		}
		if err != nil {
			return nil, apperrors.NewConfigError("hooks", name, err.Error())
		}
		out = append(out, built...)
	}
	return out, nil
}
