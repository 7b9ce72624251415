package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrInvalidPolicy         = errors.New("invalid policy configuration")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v1.0.0"

// CurrentCommonVersion is the current version of common.toml.
const CurrentCommonVersion = 1

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
}

// CommonConfig contains configuration shared by the server, worker and tools.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Telemetry  Telemetry  `koanf:"telemetry"`
	API        API        `koanf:"api"`
	Policy     Policy     `koanf:"policy"`
	Consent    Consent    `koanf:"consent"`
	Worker     Worker     `koanf:"worker"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
	// Serve pprof on localhost.
	EnablePprof bool `koanf:"enable_pprof"`
	// Port of the pprof server.
	PprofPort int `koanf:"pprof_port"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname. Leave empty to keep grace flags in process memory.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Telemetry contains tracing configuration.
type Telemetry struct {
	// Uptrace DSN. Tracing is disabled when empty.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Service name reported to the tracing backend.
	ServiceName string `koanf:"service_name"`
	// Deployment environment label.
	Environment string `koanf:"environment"`
}

// API contains HTTP server configuration.
type API struct {
	// Address to bind.
	Host string `koanf:"host"`
	// Port to listen on.
	Port int `koanf:"port"`
	// Read timeout in seconds.
	ReadTimeout int `koanf:"read_timeout"`
	// Write timeout in seconds.
	WriteTimeout int `koanf:"write_timeout"`
	// Support contact shown alongside blocking errors.
	SupportContact string `koanf:"support_contact"`
	// Shared secret required on admin routes.
	AdminToken string `koanf:"admin_token"`
	// Per-IP throttling of evidence-writing routes.
	RateLimit RateLimit `koanf:"rate_limit"`
}

// RateLimit contains per-client rate limiting configuration.
type RateLimit struct {
	// Sustained requests per second. Zero disables rate limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	// Requests allowed in a burst.
	BurstSize int `koanf:"burst_size"`
	// Consecutive refused requests before a client is blocked.
	StrikeLimit int `koanf:"strike_limit"`
	// Block duration in seconds.
	BlockDuration int `koanf:"block_duration"`
}

// Policy contains the age and exposure rules applied to users.
type Policy struct {
	// Users younger than this are refused outright.
	MinimumAge int `koanf:"minimum_age"`
	// Users younger than this (and at least MinimumAge) need parental consent.
	ParentalConsentAge int `koanf:"parental_consent_age"`
	// Users younger than this are recorded as minors.
	AdultAge int `koanf:"adult_age"`
	// Days between compliance re-verifications for adults. Zero disables it.
	ReverificationIntervalDays int `koanf:"reverification_interval_days"`
	// Minimum scroll depth (percent) before a clickwrap acceptance is allowed.
	MinScrollDepthPercent int `koanf:"min_scroll_depth_percent"`
	// Minimum seconds spent on the documents before a clickwrap acceptance is allowed.
	MinSecondsOnDocument int `koanf:"min_seconds_on_document"`
}

// Consent contains consent ledger tuning.
type Consent struct {
	// Window in seconds in which identical submissions collapse into one record.
	DedupWindow int `koanf:"dedup_window"`
	// Lifetime in seconds of the post-submission grace flag.
	GraceWindow int `koanf:"grace_window"`
}

// Worker contains reverification worker configuration.
type Worker struct {
	// Records fetched per sweep.
	BatchSize int `koanf:"batch_size"`
	// Maximum records marked concurrently.
	Concurrency int `koanf:"concurrency"`
	// Seconds between sweeps.
	Interval int `koanf:"interval"`
}

// DedupWindowDuration returns the dedup window as a duration.
func (c Consent) DedupWindowDuration() time.Duration {
	return time.Duration(c.DedupWindow) * time.Second
}

// GraceWindowDuration returns the grace window as a duration.
func (c Consent) GraceWindowDuration() time.Duration {
	return time.Duration(c.GraceWindow) * time.Second
}

// Validate checks that the age thresholds are ordered sensibly.
func (p Policy) Validate() error {
	if p.MinimumAge <= 0 {
		return fmt.Errorf("%w: minimum_age must be positive", ErrInvalidPolicy)
	}

	if p.ParentalConsentAge < p.MinimumAge {
		return fmt.Errorf("%w: parental_consent_age (%d) is below minimum_age (%d)",
			ErrInvalidPolicy, p.ParentalConsentAge, p.MinimumAge)
	}

	if p.AdultAge < p.ParentalConsentAge {
		return fmt.Errorf("%w: adult_age (%d) is below parental_consent_age (%d)",
			ErrInvalidPolicy, p.AdultAge, p.ParentalConsentAge)
	}

	if p.MinScrollDepthPercent < 0 || p.MinScrollDepthPercent > 100 {
		return fmt.Errorf("%w: min_scroll_depth_percent must be within 0-100", ErrInvalidPolicy)
	}

	return nil
}

// Defaults returns the built-in configuration used as a base before files are loaded.
func Defaults() map[string]any {
	return map[string]any{
		"debug.log_level":                    "info",
		"debug.max_logs_to_keep":             10,
		"debug.max_log_lines":                10000,
		"debug.pprof_port":                   6060,
		"postgresql.host":                    "localhost",
		"postgresql.port":                    5432,
		"postgresql.max_open_conns":          20,
		"postgresql.max_idle_conns":          10,
		"postgresql.max_lifetime":            30,
		"postgresql.max_idle_time":           5,
		"telemetry.service_name":             "legalgate",
		"api.host":                           "0.0.0.0",
		"api.port":                           8080,
		"api.read_timeout":                   10,
		"api.write_timeout":                  10,
		"api.rate_limit.requests_per_second": 5.0,
		"api.rate_limit.burst_size":          20,
		"api.rate_limit.strike_limit":        10,
		"api.rate_limit.block_duration":      300,
		"policy.minimum_age":                 13,
		"policy.parental_consent_age":        18,
		"policy.adult_age":                   18,
		"policy.min_scroll_depth_percent":    90,
		"policy.min_seconds_on_document":     10,
		"consent.dedup_window":               30,
		"consent.grace_window":               5,
		"worker.batch_size":                  200,
		"worker.concurrency":                 8,
		"worker.interval":                    300,
	}
}

// LoadConfig loads the configuration from the first common.toml found in the search paths.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return LoadConfigFrom([]string{
		".legalgate",
		homeDir + "/.legalgate/config",
		"/etc/legalgate/config",
		"/app/config",
		"config",
		".",
	})
}

// LoadConfigFrom loads common.toml from the first matching path in configPaths.
func LoadConfigFrom(configPaths []string) (*Config, string, error) {
	k := koanf.New(".")

	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := path + "/common.toml"
		if _, err := os.Stat(configPath); err != nil {
			continue
		}

		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, "", fmt.Errorf("failed to parse %s: %w", configPath, err)
		}

		usedConfigPath = path

		break
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: common.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config.Common); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := config.Common.Policy.Validate(); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/robalyx/legalgate/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
