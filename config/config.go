package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"edrwatch/engine"
	"edrwatch/escalation"
	"edrwatch/hasher"
	"edrwatch/monitor"
	"edrwatch/scanner"
	"edrwatch/state"
	"edrwatch/version"
	"edrwatch/whitelist"

	"gopkg.in/yaml.v3"
)

// APIKeyEnv names the environment variable consulted when no reputation key
// is configured.
const APIKeyEnv = "VT_API_KEY"

type Config struct {
	WatchPath               string            `json:"watch_path" yaml:"watch_path"`
	MaxHashSize             int64             `json:"max_hash_size" yaml:"max_hash_size"`
	HashAlgorithm           string            `json:"hash_algorithm" yaml:"hash_algorithm"`
	PermissionModel         string            `json:"permission_model" yaml:"permission_model"`
	HistorySize             int               `json:"history_size" yaml:"history_size"`
	BurstWindow             time.Duration     `json:"burst_window" yaml:"burst_window"`
	BurstMinPrior           int               `json:"burst_min_prior" yaml:"burst_min_prior"`
	SuspicionThreshold      int               `json:"suspicion_threshold" yaml:"suspicion_threshold"`
	ScoreDecayPerHour       float64           `json:"score_decay_per_hour" yaml:"score_decay_per_hour"`
	RecentWindow            time.Duration     `json:"recent_window" yaml:"recent_window"`
	ExecutableExtensions    []string          `json:"executable_extensions" yaml:"executable_extensions"`
	SensitiveTerms          []string          `json:"sensitive_terms" yaml:"sensitive_terms"`
	TrustedDirs             []string          `json:"trusted_dirs" yaml:"trusted_dirs"`
	TrustedProcesses        []string          `json:"trusted_processes" yaml:"trusted_processes"`
	CommonDataExtensions    []string          `json:"common_data_extensions" yaml:"common_data_extensions"`
	CommonDataSubstrings    []string          `json:"common_data_substrings" yaml:"common_data_substrings"`
	ExcludePatterns         []string          `json:"exclude_patterns" yaml:"exclude_patterns"`
	EscalationWorkers       int               `json:"escalation_workers" yaml:"escalation_workers"`
	EscalationQueueSize     int               `json:"escalation_queue_size" yaml:"escalation_queue_size"`
	EscalationTimeout       time.Duration     `json:"escalation_timeout" yaml:"escalation_timeout"`
	ReputationURL           string            `json:"reputation_url" yaml:"reputation_url"`
	ReputationAPIKey        string            `json:"reputation_api_key" yaml:"reputation_api_key"`
	ReputationRatePerMinute int               `json:"reputation_rate_per_minute" yaml:"reputation_rate_per_minute"`
	VerdictCacheTTL         time.Duration     `json:"verdict_cache_ttl" yaml:"verdict_cache_ttl"`
	EnrichAlerts            bool              `json:"enrich_alerts" yaml:"enrich_alerts"`
	FuzzyHash               bool              `json:"fuzzy_hash" yaml:"fuzzy_hash"`
	RescanOnOverflow        bool              `json:"rescan_on_overflow" yaml:"rescan_on_overflow"`
	CoalesceWindow          time.Duration     `json:"coalesce_window" yaml:"coalesce_window"`
	OutputFileName          string            `json:"output_file_name" yaml:"output_file_name"`
	MaxOutputFileSize       int64             `json:"max_output_file_size" yaml:"max_output_file_size"`
	LogLevel                string            `json:"log_level" yaml:"log_level"`
	ConfigFile              string            `json:"config_file" yaml:"config_file"`
	DiagStallThreshold      time.Duration     `json:"diag_stall_threshold" yaml:"diag_stall_threshold"`
	DiagDir                 string            `json:"diag_dir" yaml:"diag_dir"`
	DiagGoroutineLeak       bool              `json:"diag_goroutine_leak" yaml:"diag_goroutine_leak"`
	OtelEndpoint            string            `json:"otel_endpoint" yaml:"otel_endpoint"`
	OtelFromEnv             bool              `json:"otel_from_env" yaml:"otel_from_env"`
	OtelHeaders             map[string]string `json:"otel_headers" yaml:"otel_headers"`
	OtelServiceName         string            `json:"otel_service_name" yaml:"otel_service_name"`
	OtelTimeout             time.Duration     `json:"otel_timeout" yaml:"otel_timeout"`
	OtelExportPaths         bool              `json:"otel_export_paths" yaml:"otel_export_paths"`
	TraceFlight             bool              `json:"trace_flight" yaml:"trace_flight"`
	TraceFlightFile         string            `json:"trace_flight_file" yaml:"trace_flight_file"`
	TraceFlightMaxBytes     uint64            `json:"trace_flight_max_bytes" yaml:"trace_flight_max_bytes"`
	TraceFlightMinAge       time.Duration     `json:"trace_flight_min_age" yaml:"trace_flight_min_age"`
}

func defaults() *Config {
	now := time.Now().UTC()
	timestamp := now.Format("20060102-150405")
	eng := engine.DefaultConfig()
	return &Config{
		WatchPath:               ".",
		MaxHashSize:             hasher.DefaultMaxSize,
		HashAlgorithm:           hasher.DefaultAlgorithm,
		PermissionModel:         "auto",
		HistorySize:             state.DefaultHistorySize,
		BurstWindow:             eng.BurstWindow,
		BurstMinPrior:           eng.BurstMinPrior,
		SuspicionThreshold:      eng.Threshold,
		ScoreDecayPerHour:       0,
		RecentWindow:            eng.RecentWindow,
		ExecutableExtensions:    append([]string(nil), engine.DefaultExecutableExtensions...),
		SensitiveTerms:          append([]string(nil), engine.DefaultSensitiveTerms...),
		TrustedDirs:             []string{},
		TrustedProcesses:        append([]string(nil), whitelist.DefaultTrustedProcesses...),
		CommonDataExtensions:    append([]string(nil), whitelist.DefaultCommonDataExtensions...),
		CommonDataSubstrings:    append([]string(nil), whitelist.DefaultCommonDataSubstrings...),
		ExcludePatterns:         []string{},
		EscalationWorkers:       escalation.DefaultWorkers,
		EscalationQueueSize:     escalation.DefaultQueueSize,
		EscalationTimeout:       escalation.DefaultTimeout,
		ReputationURL:           escalation.DefaultReputationURL,
		ReputationRatePerMinute: escalation.DefaultRequestsPerMinute,
		VerdictCacheTTL:         time.Hour,
		EnrichAlerts:            true,
		FuzzyHash:               true,
		RescanOnOverflow:        false,
		CoalesceWindow:          monitor.DefaultCoalesceWindow,
		OutputFileName:          fmt.Sprintf("edrwatch-alerts-%s-%d.ndjson", timestamp, now.Unix()),
		MaxOutputFileSize:       104857600,
		LogLevel:                "info",
		DiagStallThreshold:      0,
		DiagDir:                 ".",
		DiagGoroutineLeak:       false,
		OtelHeaders:             map[string]string{},
		OtelServiceName:         "edrwatch",
		OtelTimeout:             5 * time.Second,
		TraceFlightFile:         "trace-flight.out",
	}
}

func LoadConfig() (*Config, error) {
	cfg := defaults()

	watchPath := flag.String("path", cfg.WatchPath, fmt.Sprintf("Directory tree to monitor (default: %s).", cfg.WatchPath))
	maxHashSize := flag.Int64("max-hash-size", cfg.MaxHashSize, fmt.Sprintf("Files larger than this many bytes are not fingerprinted (default: %d).", cfg.MaxHashSize))
	hashAlgorithm := flag.String("hash-algorithm", cfg.HashAlgorithm, "Fingerprint algorithm: sha256, blake3, or xxhash (default: sha256).")
	permissionModel := flag.String("permission-model", cfg.PermissionModel, "Permission model: auto, posix, or readonly (default: auto).")
	historySize := flag.Int("history-size", cfg.HistorySize, fmt.Sprintf("Access events kept per path (default: %d).", cfg.HistorySize))
	burstWindow := flag.Duration("burst-window", cfg.BurstWindow, "Window in which repeated events count as a burst (default: 5s).")
	burstMinPrior := flag.Int("burst-min-prior", cfg.BurstMinPrior, fmt.Sprintf("Prior events inside the burst window needed to flag (default: %d).", cfg.BurstMinPrior))
	threshold := flag.Int("suspicion-threshold", cfg.SuspicionThreshold, fmt.Sprintf("Score above which a path is escalated (default: %d).", cfg.SuspicionThreshold))
	decay := flag.Float64("score-decay-per-hour", cfg.ScoreDecayPerHour, "Points removed from a score per idle hour (default: 0, no decay).")
	recentWindow := flag.Duration("recent-window", cfg.RecentWindow, "Age under which a file counts as recently created (default: 24h).")
	executableExtensions := flag.String("executable-extensions", strings.Join(cfg.ExecutableExtensions, ","), "Comma-separated executable extensions.")
	sensitiveTerms := flag.String("sensitive-terms", strings.Join(cfg.SensitiveTerms, ","), "Comma-separated sensitive file name terms.")
	trustedDirs := flag.String("trusted-dirs", "", "Comma-separated trusted directories (default: none).")
	trustedProcesses := flag.String("trusted-processes", strings.Join(cfg.TrustedProcesses, ","), "Comma-separated trusted program names.")
	commonExts := flag.String("common-data-extensions", strings.Join(cfg.CommonDataExtensions, ","), "Comma-separated benign data file extensions.")
	commonSubs := flag.String("common-data-substrings", strings.Join(cfg.CommonDataSubstrings, ","), "Comma-separated benign path substrings.")
	excludes := flag.String("exclude", "", "Comma-separated glob or regex exemptions (default: none).")
	workers := flag.Int("escalation-workers", cfg.EscalationWorkers, fmt.Sprintf("Concurrent reputation checks (default: %d).", cfg.EscalationWorkers))
	queueSize := flag.Int("escalation-queue-size", cfg.EscalationQueueSize, fmt.Sprintf("Pending escalations before new ones are dropped (default: %d).", cfg.EscalationQueueSize))
	escalationTimeout := flag.Duration("escalation-timeout", cfg.EscalationTimeout, "Timeout for a single reputation check (default: 30s).")
	reputationURL := flag.String("reputation-url", cfg.ReputationURL, "Reputation service base URL.")
	reputationKey := flag.String("reputation-api-key", "", fmt.Sprintf("Reputation service API key (default: $%s).", APIKeyEnv))
	reputationRate := flag.Int("reputation-rate-per-minute", cfg.ReputationRatePerMinute, fmt.Sprintf("Reputation requests allowed per minute (default: %d).", cfg.ReputationRatePerMinute))
	cacheTTL := flag.Duration("verdict-cache-ttl", cfg.VerdictCacheTTL, "How long verdicts are cached (default: 1h, 0 disables).")
	enrich := flag.Bool("enrich-alerts", cfg.EnrichAlerts, fmt.Sprintf("Add digests and MIME type to alerts (default: %t).", cfg.EnrichAlerts))
	fuzzyHash := flag.Bool("fuzzy-hash", cfg.FuzzyHash, fmt.Sprintf("Add a TLSH digest to enriched alerts (default: %t).", cfg.FuzzyHash))
	coalesce := flag.Duration("coalesce-window", cfg.CoalesceWindow, fmt.Sprintf("Quiet period before repeated notifications for one file are handled as a single event; negative disables merging (default: %s).", cfg.CoalesceWindow))
	rescan := flag.Bool("rescan-on-overflow", cfg.RescanOnOverflow, fmt.Sprintf("Re-register directories after a notification overflow (default: %t).", cfg.RescanOnOverflow))
	output := flag.String("output", cfg.OutputFileName, "Alert output file name (default: edrwatch-alerts-<timestamp>-<unix>.ndjson).")
	maxOutputFileSize := flag.Int64("max-output-file-size", cfg.MaxOutputFileSize, fmt.Sprintf("Maximum output file size before rotation in bytes (default: %d).", cfg.MaxOutputFileSize))
	logLevel := flag.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, fatal, or panic (default: %s).", cfg.LogLevel))
	configFile := flag.String("config", "", "Path to JSON or YAML configuration file (default: none).")
	diagStall := flag.Duration(
		"diag-stall-threshold",
		cfg.DiagStallThreshold,
		"If positive, emit diagnostics when pending escalations stop completing for this duration (default: 0/off).",
	)
	diagDir := flag.String("diag-dir", cfg.DiagDir, "Diagnostics output directory (default: current directory).")
	diagGoroutineLeak := flag.Bool(
		"diag-goroutine-leak",
		cfg.DiagGoroutineLeak,
		"Write goroutine leak profile on shutdown (default: false).",
	)
	otelEndpoint := flag.String("otel-endpoint", cfg.OtelEndpoint, "OTLP/HTTP logs endpoint (default: none).")
	otelFromEnv := flag.Bool("otel-from-env", cfg.OtelFromEnv, "Allow OTEL endpoint fallback from OTEL environment variables (default: false).")
	otelHeaders := flag.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := flag.String("otel-service-name", cfg.OtelServiceName, "OTEL service name for export (default: edrwatch).")
	otelTimeout := flag.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	otelExportPaths := flag.Bool("otel-export-paths", cfg.OtelExportPaths, "Include raw file paths in OTEL payloads (default: false).")
	traceFlight := flag.Bool("trace-flight", cfg.TraceFlight, fmt.Sprintf("Enable flight recorder tracing (default: %t).", cfg.TraceFlight))
	traceFlightFile := flag.String("trace-flight-file", cfg.TraceFlightFile, fmt.Sprintf("Flight recorder output file (default: %s).", cfg.TraceFlightFile))
	traceFlightMaxBytes := flag.Uint64("trace-flight-max-bytes", cfg.TraceFlightMaxBytes, "Max bytes for flight recorder buffer (default: 0 for runtime default).")
	traceFlightMinAge := flag.Duration("trace-flight-min-age", cfg.TraceFlightMinAge, "Minimum age of trace events to retain (default: 0).")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = displayHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("edrwatch version %s\n", version.Version)
		os.Exit(0)
	}

	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "path":
			cfg.WatchPath = strings.TrimSpace(*watchPath)
		case "max-hash-size":
			cfg.MaxHashSize = *maxHashSize
		case "hash-algorithm":
			cfg.HashAlgorithm = *hashAlgorithm
		case "permission-model":
			cfg.PermissionModel = *permissionModel
		case "history-size":
			cfg.HistorySize = *historySize
		case "burst-window":
			cfg.BurstWindow = *burstWindow
		case "burst-min-prior":
			cfg.BurstMinPrior = *burstMinPrior
		case "suspicion-threshold":
			cfg.SuspicionThreshold = *threshold
		case "score-decay-per-hour":
			cfg.ScoreDecayPerHour = *decay
		case "recent-window":
			cfg.RecentWindow = *recentWindow
		case "executable-extensions":
			cfg.ExecutableExtensions = parseCommaSeparated(*executableExtensions)
		case "sensitive-terms":
			cfg.SensitiveTerms = parseCommaSeparated(*sensitiveTerms)
		case "trusted-dirs":
			cfg.TrustedDirs = parseCommaSeparated(*trustedDirs)
		case "trusted-processes":
			cfg.TrustedProcesses = parseCommaSeparated(*trustedProcesses)
		case "common-data-extensions":
			cfg.CommonDataExtensions = parseCommaSeparated(*commonExts)
		case "common-data-substrings":
			cfg.CommonDataSubstrings = parseCommaSeparated(*commonSubs)
		case "exclude":
			cfg.ExcludePatterns = parseCommaSeparated(*excludes)
		case "escalation-workers":
			cfg.EscalationWorkers = *workers
		case "escalation-queue-size":
			cfg.EscalationQueueSize = *queueSize
		case "escalation-timeout":
			cfg.EscalationTimeout = *escalationTimeout
		case "reputation-url":
			cfg.ReputationURL = strings.TrimSpace(*reputationURL)
		case "reputation-api-key":
			cfg.ReputationAPIKey = strings.TrimSpace(*reputationKey)
		case "reputation-rate-per-minute":
			cfg.ReputationRatePerMinute = *reputationRate
		case "verdict-cache-ttl":
			cfg.VerdictCacheTTL = *cacheTTL
		case "enrich-alerts":
			cfg.EnrichAlerts = *enrich
		case "fuzzy-hash":
			cfg.FuzzyHash = *fuzzyHash
		case "rescan-on-overflow":
			cfg.RescanOnOverflow = *rescan
		case "coalesce-window":
			cfg.CoalesceWindow = *coalesce
		case "output":
			cfg.OutputFileName = *output
		case "max-output-file-size":
			cfg.MaxOutputFileSize = *maxOutputFileSize
		case "log-level":
			cfg.LogLevel = *logLevel
		case "diag-stall-threshold":
			cfg.DiagStallThreshold = *diagStall
		case "diag-dir":
			cfg.DiagDir = strings.TrimSpace(*diagDir)
		case "diag-goroutine-leak":
			cfg.DiagGoroutineLeak = *diagGoroutineLeak
		case "otel-endpoint":
			cfg.OtelEndpoint = strings.TrimSpace(*otelEndpoint)
		case "otel-from-env":
			cfg.OtelFromEnv = *otelFromEnv
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = strings.TrimSpace(*otelServiceName)
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		case "otel-export-paths":
			cfg.OtelExportPaths = *otelExportPaths
		case "trace-flight":
			cfg.TraceFlight = *traceFlight
		case "trace-flight-file":
			cfg.TraceFlightFile = *traceFlightFile
		case "trace-flight-max-bytes":
			cfg.TraceFlightMaxBytes = *traceFlightMaxBytes
		case "trace-flight-min-age":
			cfg.TraceFlightMinAge = *traceFlightMinAge
		}
	})

	if cfg.ReputationAPIKey == "" {
		cfg.ReputationAPIKey = strings.TrimSpace(os.Getenv(APIKeyEnv))
	}
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func displayHelp() {
	fmt.Println("edrwatch - Behavioral file activity monitor")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  edrwatch [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  edrwatch --path \"$HOME/Downloads\"")
	fmt.Println("  edrwatch --path /srv --trusted-dirs /srv/cache --suspicion-threshold 40")
	fmt.Println("  VT_API_KEY=... edrwatch --path /tmp --config edrwatch.yaml")
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid config file format: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid config file format: %w", err)
		}
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.HashAlgorithm = strings.ToLower(strings.TrimSpace(cfg.HashAlgorithm))
	cfg.PermissionModel = strings.ToLower(strings.TrimSpace(cfg.PermissionModel))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.HashAlgorithm == "" {
		cfg.HashAlgorithm = hasher.DefaultAlgorithm
	}
	if cfg.PermissionModel == "" {
		cfg.PermissionModel = "auto"
	}
	if strings.TrimSpace(cfg.DiagDir) == "" {
		cfg.DiagDir = "."
	}
	if cfg.TraceFlight && cfg.TraceFlightFile == "" {
		cfg.TraceFlightFile = "trace-flight.out"
	}
	if cfg.OtelServiceName == "" {
		cfg.OtelServiceName = "edrwatch"
	}
}

// ParsedPermissionModel returns the configured model, resolving "auto" for
// the running platform.
func (cfg *Config) ParsedPermissionModel() scanner.PermissionModel {
	model, err := scanner.ParsePermissionModel(cfg.PermissionModel)
	if err != nil {
		return scanner.DetectPermissionModel()
	}
	return model
}

func (cfg *Config) validate() error {
	if strings.TrimSpace(cfg.WatchPath) == "" {
		return fmt.Errorf("a watch path must be specified")
	}
	if !hasher.Supported(cfg.HashAlgorithm) {
		return fmt.Errorf("invalid hash algorithm: %s", cfg.HashAlgorithm)
	}
	if _, err := scanner.ParsePermissionModel(cfg.PermissionModel); err != nil {
		return err
	}
	if cfg.MaxHashSize <= 0 {
		return fmt.Errorf("max-hash-size must be positive")
	}
	if cfg.HistorySize <= 0 {
		return fmt.Errorf("history-size must be positive")
	}
	if cfg.BurstWindow <= 0 {
		return fmt.Errorf("burst-window must be positive")
	}
	if cfg.BurstMinPrior <= 0 {
		return fmt.Errorf("burst-min-prior must be positive")
	}
	if cfg.CoalesceWindow >= cfg.BurstWindow {
		return fmt.Errorf("coalesce-window must be shorter than burst-window")
	}
	if cfg.BurstMinPrior >= cfg.HistorySize {
		return fmt.Errorf("burst-min-prior must be smaller than history-size")
	}
	if cfg.SuspicionThreshold < state.MinScore || cfg.SuspicionThreshold >= state.MaxScore {
		return fmt.Errorf("suspicion-threshold must be between %d and %d", state.MinScore, state.MaxScore-1)
	}
	if cfg.ScoreDecayPerHour < 0 {
		return fmt.Errorf("score-decay-per-hour must be zero or positive")
	}
	if cfg.RecentWindow < 0 {
		return fmt.Errorf("recent-window must be zero or positive")
	}
	if cfg.EscalationWorkers <= 0 {
		return fmt.Errorf("escalation-workers must be positive")
	}
	if cfg.EscalationQueueSize <= 0 {
		return fmt.Errorf("escalation-queue-size must be positive")
	}
	if cfg.EscalationTimeout <= 0 {
		return fmt.Errorf("escalation-timeout must be positive")
	}
	if cfg.ReputationRatePerMinute < 0 {
		return fmt.Errorf("reputation-rate-per-minute must be zero or positive")
	}
	if cfg.VerdictCacheTTL < 0 {
		return fmt.Errorf("verdict-cache-ttl must be zero or positive")
	}
	if cfg.ReputationURL != "" {
		if !strings.HasPrefix(cfg.ReputationURL, "http://") && !strings.HasPrefix(cfg.ReputationURL, "https://") {
			return fmt.Errorf("reputation-url must include scheme (http or https)")
		}
	}
	if cfg.MaxOutputFileSize < 0 {
		return fmt.Errorf("max-output-file-size must be zero or positive")
	}
	if cfg.DiagStallThreshold < 0 {
		return fmt.Errorf("diag-stall-threshold must be zero or positive")
	}
	if cfg.TraceFlightMinAge < 0 {
		return fmt.Errorf("trace-flight-min-age must be zero or positive")
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	return nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	out := items[:0]
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	items := strings.Split(input, ",")
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		headers[key] = value
	}
	return headers
}
