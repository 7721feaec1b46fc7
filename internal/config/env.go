// Package config handles environment-based configuration loading.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"
	"golang.org/x/net/http/httpguts"
)

// Targets holds the base address of every downstream domain.
type Targets struct {
	Auth    string `json:"auth"`
	Flags   string `json:"feature_flags"`
	Plots   string `json:"plots"`
	Reports string `json:"reports"`
}

// EnvConfig holds all environment-variable-driven settings.
// It is built once at startup and never mutated afterwards.
type EnvConfig struct {
	// Network
	ListenAddress   string
	Port            int
	APIMaxBodyBytes int

	// Downstream
	TargetsFile    string
	Targets        Targets
	ModeTimeout    time.Duration
	HealthTimeout  time.Duration
	RequestTimeout time.Duration
	ForwardHeaders []string

	// Self status
	ServiceAvailable bool
	SerialNumber     string
	SensorID         string

	// Health watcher
	HealthWatchSchedule string
	HealthCacheTTL      time.Duration

	// Call log
	CallLogQueueSize      int
	CallLogFlushBatchSize int
	CallLogFlushInterval  time.Duration
	CallLogRetainRows     int

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// When DASHGATE_TARGETS_FILE is set, its values replace the built-in defaults
// and environment variables still override them.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	defaults := defaultTargetsFile()
	cfg.TargetsFile = strings.TrimSpace(envStr("DASHGATE_TARGETS_FILE", ""))
	if cfg.TargetsFile != "" {
		file, err := LoadTargetsFile(cfg.TargetsFile)
		if err != nil {
			errs = append(errs, fmt.Sprintf("DASHGATE_TARGETS_FILE: %v", err))
		} else {
			defaults = defaults.merge(file)
		}
	}

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("DASHGATE_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("DASHGATE_PORT", 5000, &errs)
	cfg.APIMaxBodyBytes = envInt("DASHGATE_API_MAX_BODY_BYTES", 1<<20, &errs)

	// --- Downstream ---
	cfg.Targets = Targets{
		Auth:    normalizeBaseURL(envStr("DASHGATE_AUTH_URL", defaults.Targets.Auth)),
		Flags:   normalizeBaseURL(envStr("DASHGATE_FLAGS_URL", defaults.Targets.Flags)),
		Plots:   normalizeBaseURL(envStr("DASHGATE_PLOTS_URL", defaults.Targets.Plots)),
		Reports: normalizeBaseURL(envStr("DASHGATE_REPORTS_URL", defaults.Targets.Reports)),
	}
	cfg.ModeTimeout = envDuration("DASHGATE_MODE_TIMEOUT", defaults.Timeouts.Mode.Std(), &errs)
	cfg.HealthTimeout = envDuration("DASHGATE_HEALTH_TIMEOUT", defaults.Timeouts.Health.Std(), &errs)
	cfg.RequestTimeout = envDuration("DASHGATE_REQUEST_TIMEOUT", defaults.Timeouts.Request.Std(), &errs)
	cfg.ForwardHeaders = envStringSlice("DASHGATE_FORWARD_HEADERS", []string{"X-Request-ID"}, &errs)

	// --- Self status ---
	cfg.ServiceAvailable = envBool("DASHGATE_SERVICE_AVAILABLE", true, &errs)
	cfg.SerialNumber = envStr("DASHGATE_SERIAL_NUMBER", "S/N: 1234567890")
	cfg.SensorID = strings.TrimSpace(envStr("DASHGATE_SENSOR_ID", "01"))

	// --- Health watcher ---
	cfg.HealthWatchSchedule = strings.TrimSpace(envStr("DASHGATE_HEALTH_WATCH_SCHEDULE", "@every 30s"))
	cfg.HealthCacheTTL = envDuration("DASHGATE_HEALTH_CACHE_TTL", 5*time.Second, &errs)

	// --- Call log ---
	cfg.CallLogQueueSize = envInt("DASHGATE_CALL_LOG_QUEUE_SIZE", 4096, &errs)
	cfg.CallLogFlushBatchSize = envInt("DASHGATE_CALL_LOG_FLUSH_BATCH_SIZE", 256, &errs)
	cfg.CallLogFlushInterval = envDuration("DASHGATE_CALL_LOG_FLUSH_INTERVAL", 2*time.Second, &errs)
	cfg.CallLogRetainRows = envInt("DASHGATE_CALL_LOG_RETAIN_ROWS", 10000, &errs)

	// --- Logging ---
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(envStr("DASHGATE_LOG_LEVEL", "info")))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(envStr("DASHGATE_LOG_FORMAT", "json")))

	// --- Validation ---
	if cfg.ListenAddress == "" {
		errs = append(errs, "DASHGATE_LISTEN_ADDRESS must not be empty")
	}
	validatePort("DASHGATE_PORT", cfg.Port, &errs)
	validatePositive("DASHGATE_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)

	validateBaseURL("DASHGATE_AUTH_URL", cfg.Targets.Auth, &errs)
	validateBaseURL("DASHGATE_FLAGS_URL", cfg.Targets.Flags, &errs)
	validateBaseURL("DASHGATE_PLOTS_URL", cfg.Targets.Plots, &errs)
	validateBaseURL("DASHGATE_REPORTS_URL", cfg.Targets.Reports, &errs)
	validatePositiveDuration("DASHGATE_MODE_TIMEOUT", cfg.ModeTimeout, &errs)
	validatePositiveDuration("DASHGATE_HEALTH_TIMEOUT", cfg.HealthTimeout, &errs)
	validatePositiveDuration("DASHGATE_REQUEST_TIMEOUT", cfg.RequestTimeout, &errs)
	for _, h := range cfg.ForwardHeaders {
		if !httpguts.ValidHeaderFieldName(h) {
			errs = append(errs, fmt.Sprintf("DASHGATE_FORWARD_HEADERS: invalid header name %q", h))
		}
		if strings.EqualFold(h, "Authorization") {
			errs = append(errs, "DASHGATE_FORWARD_HEADERS: Authorization is forwarded per operation and must not be listed")
		}
	}

	if cfg.SensorID == "" {
		errs = append(errs, "DASHGATE_SENSOR_ID must not be empty")
	}

	if _, err := cron.ParseStandard(cfg.HealthWatchSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("DASHGATE_HEALTH_WATCH_SCHEDULE: invalid cron expression %q: %v", cfg.HealthWatchSchedule, err))
	}
	validatePositiveDuration("DASHGATE_HEALTH_CACHE_TTL", cfg.HealthCacheTTL, &errs)

	validatePositive("DASHGATE_CALL_LOG_QUEUE_SIZE", cfg.CallLogQueueSize, &errs)
	validatePositive("DASHGATE_CALL_LOG_FLUSH_BATCH_SIZE", cfg.CallLogFlushBatchSize, &errs)
	validatePositiveDuration("DASHGATE_CALL_LOG_FLUSH_INTERVAL", cfg.CallLogFlushInterval, &errs)
	validatePositive("DASHGATE_CALL_LOG_RETAIN_ROWS", cfg.CallLogRetainRows, &errs)
	if cfg.CallLogQueueSize < 2*cfg.CallLogFlushBatchSize {
		errs = append(errs, "DASHGATE_CALL_LOG_QUEUE_SIZE must be at least 2x DASHGATE_CALL_LOG_FLUSH_BATCH_SIZE")
	}

	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("DASHGATE_LOG_LEVEL: invalid level %q", cfg.LogLevel))
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		errs = append(errs, fmt.Sprintf("DASHGATE_LOG_FORMAT: invalid value %q (allowed: json, console)", cfg.LogFormat))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func envStringSlice(key string, defaultVal []string, errs *[]string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid JSON string array %q", key, v))
		return defaultVal
	}
	if out == nil {
		return []string{}
	}
	return out
}

func normalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func validateBaseURL(name, raw string, errs *[]string) {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		*errs = append(*errs, fmt.Sprintf("%s: invalid URL %q", name, raw))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		*errs = append(*errs, fmt.Sprintf("%s: scheme must be http or https, got %q", name, raw))
		return
	}
	if u.Host == "" {
		*errs = append(*errs, fmt.Sprintf("%s: host must not be empty, got %q", name, raw))
	}
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}

func validatePositiveDuration(name string, value time.Duration, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be positive", name))
	}
}
