package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edrwatch/config"
	"edrwatch/diag"
	"edrwatch/engine"
	"edrwatch/escalation"
	"edrwatch/hasher"
	"edrwatch/logger"
	"edrwatch/monitor"
	"edrwatch/output"
	"edrwatch/state"
	"edrwatch/systeminfo"
	"edrwatch/tracing"
	"edrwatch/whitelist"

	"github.com/joho/godotenv"
)

const disableProgressEnv = "EDRWATCH_DISABLE_PROGRESS"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	if err := tracing.Start(""); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start trace: %v\n", err)
	} else {
		defer tracing.Stop()
	}

	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel)

	if cfg.TraceFlight {
		if err := tracing.StartFlightRecorder(cfg.TraceFlightMaxBytes, cfg.TraceFlightMinAge); err != nil {
			logger.Warnf("Failed to start flight recorder: %v", err)
		} else {
			defer func() {
				if err := tracing.WriteFlightRecorder(cfg.TraceFlightFile); err != nil {
					logger.Warnf("Failed to write flight recorder: %v", err)
				}
				tracing.StopFlightRecorder()
			}()
		}
	}

	if err := run(cfg); err != nil {
		logger.Errorf("Monitoring failed: %v", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete.")
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := &output.Metrics{StartTime: time.Now().UTC().Format(time.RFC3339)}
	host := systeminfo.GetHostInfo(ctx, cfg.TrustedProcesses)
	writer, err := output.New(cfg, host, metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize output: %w", err)
	}
	defer writer.Close()

	a, err := newApp(cfg, writer)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go handleSignalEvent(ctx, cancel, sigChan)

	logger.Infof("Watching %s (threshold %d, checker %s)", cfg.WatchPath, cfg.SuspicionThreshold, a.checker.Name())
	a.diag.Start(ctx)
	runErr := a.scheduler.Run(ctx)
	a.shutdown(cfg.EscalationTimeout)

	writer.SetMetrics(a.metrics(metrics.StartTime))
	return runErr
}

// app holds the wired pipeline: scheduler -> handler -> pool -> writer.
type app struct {
	checker   escalation.Checker
	pool      *escalation.Pool
	handler   *engine.Handler
	scheduler *monitor.Scheduler
	diag      *diag.Controller
}

func newApp(cfg *config.Config, sink escalation.Sink) (*app, error) {
	checker, err := newChecker(cfg)
	if err != nil {
		return nil, err
	}
	pool := escalation.NewPool(checker, escalation.NewVerdictCache(cfg.VerdictCacheTTL), sink, escalation.Options{
		Workers:   cfg.EscalationWorkers,
		QueueSize: cfg.EscalationQueueSize,
		Timeout:   cfg.EscalationTimeout,
		Enrich: escalation.EnrichOptions{
			Enabled: cfg.EnrichAlerts,
			MaxSize: cfg.MaxHashSize,
			Fuzzy:   fuzzyAlgorithm(cfg),
		},
	})

	filter := whitelist.New(whitelist.Options{
		TrustedDirs:          cfg.TrustedDirs,
		TrustedProcesses:     cfg.TrustedProcesses,
		CommonDataExtensions: cfg.CommonDataExtensions,
		CommonDataSubstrings: cfg.CommonDataSubstrings,
		ExcludePatterns:      cfg.ExcludePatterns,
	})
	stores := engine.NewStores(cfg.HistorySize, state.WithDecay(cfg.ScoreDecayPerHour))
	handler := engine.NewHandler(engineConfig(cfg), filter, stores, hasher.NewCalculator(cfg.MaxHashSize, cfg.HashAlgorithm), pool)

	scheduler := monitor.New(cfg.WatchPath, handler, monitor.Options{
		CoalesceWindow:   cfg.CoalesceWindow,
		RescanOnOverflow: cfg.RescanOnOverflow,
		ShowProgress:     os.Getenv(disableProgressEnv) == "",
	})

	var dumpFlight func(string) error
	if cfg.TraceFlight {
		dumpFlight = tracing.WriteFlightRecorder
	}
	controller := diag.NewController(diag.Options{
		StallThreshold:     cfg.DiagStallThreshold,
		Dir:                cfg.DiagDir,
		GoroutineLeak:      cfg.DiagGoroutineLeak,
		CompletedFn:        pool.Completed,
		PendingFn:          pool.Pending,
		DumpFlightRecorder: dumpFlight,
	})

	return &app{
		checker:   checker,
		pool:      pool,
		handler:   handler,
		scheduler: scheduler,
		diag:      controller,
	}, nil
}

func newChecker(cfg *config.Config) (escalation.Checker, error) {
	if cfg.ReputationAPIKey == "" {
		logger.Warnf("No reputation API key configured (set %s); alerts will carry unknown verdicts", config.APIKeyEnv)
		return escalation.NopChecker{}, nil
	}
	vt, err := escalation.NewVirusTotal(cfg.ReputationURL, cfg.ReputationAPIKey, cfg.ReputationRatePerMinute, cfg.EscalationTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reputation checker: %w", err)
	}
	return vt, nil
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Threshold:            cfg.SuspicionThreshold,
		BurstWindow:          cfg.BurstWindow,
		BurstMinPrior:        cfg.BurstMinPrior,
		RecentWindow:         cfg.RecentWindow,
		ExecutableExtensions: cfg.ExecutableExtensions,
		SensitiveTerms:       cfg.SensitiveTerms,
		PermissionModel:      cfg.ParsedPermissionModel(),
	}
}

func fuzzyAlgorithm(cfg *config.Config) string {
	if !cfg.FuzzyHash {
		return ""
	}
	return "tlsh"
}

// shutdown drains the escalation pool, giving in-flight checks up to grace
// to finish.
func (a *app) shutdown(grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := a.pool.Close(ctx); err != nil {
		logger.Warnf("Escalation queue not fully drained: %v", err)
	}
	if vt, ok := a.checker.(*escalation.VirusTotal); ok {
		vt.Close()
	}
	a.diag.Close()
}

func (a *app) metrics(startTime string) output.Metrics {
	h := a.handler.Stats()
	s := a.scheduler.Stats()
	p := a.pool.Stats()
	return output.Metrics{
		StartTime:         startTime,
		EndTime:           time.Now().UTC().Format(time.RFC3339),
		EventsHandled:     h.Events,
		EventsExempt:      h.Exempt,
		EventsSkipped:     h.Skipped,
		Suspicious:        h.Suspicious,
		Escalated:         h.Escalated,
		Deleted:           h.Deleted,
		TrackedPaths:      a.handler.Tracked(),
		WatchedDirs:       s.Watched,
		Overflows:         s.Overflows,
		ChecksCompleted:   p.Completed,
		ChecksDropped:     p.Dropped,
		ChecksFailed:      p.Failed,
		MaliciousVerdicts: p.Malicious,
	}
}

func handleSignalEvent(ctx context.Context, cancelFunc context.CancelFunc, sigChan <-chan os.Signal) {
	select {
	case <-sigChan:
		logger.Info("Interrupt signal received. Shutting down...")
		cancelFunc()
	case <-ctx.Done():
	}
}
