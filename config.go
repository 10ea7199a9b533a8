package fluxgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/fluxgate/policy"
	"github.com/viant/fluxgate/service/audit/sql"
	"github.com/viant/fluxgate/service/impact"
	"github.com/viant/fluxgate/service/messaging"
	"github.com/viant/fluxgate/service/meta"
	"github.com/viant/fluxgate/service/processor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Audit sink drivers.
const (
	DriverMemory   = "memory"
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFs       = "fs"
	DriverRedis    = "redis"
)

// Config is a serialisable representation of the engine configuration. It can
// be populated from YAML or JSON; LoadConfig overlays a file on top of
// DefaultConfig so omitted settings keep their defaults.
type Config struct {
	Approval ApprovalConfig `json:"approval" yaml:"approval"`
	Impact   ImpactConfig   `json:"impact" yaml:"impact"`
	Policy   *policy.Config `json:"policy,omitempty" yaml:"policy,omitempty"`
	Audit    AuditConfig    `json:"audit" yaml:"audit"`
	Runtime  RuntimeConfig  `json:"runtime" yaml:"runtime"`
	Events   EventsConfig   `json:"events" yaml:"events"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

type ApprovalConfig struct {
	// Window is a Go duration; "0" disables approval timeouts.
	Window string `json:"window" yaml:"window"`
}

type ImpactConfig struct {
	ProductionEnvironments []string                 `json:"productionEnvironments,omitempty" yaml:"productionEnvironments,omitempty"`
	Escalations            []*impact.EscalationRule `json:"escalations,omitempty" yaml:"escalations,omitempty"`
}

// SinkConfig selects an audit sink implementation.
type SinkConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	// DSN is used by the sqlite and postgres drivers.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// URL is a storage URL for the fs driver or a redis:// URL.
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

type AuditConfig struct {
	SinkConfig `yaml:",inline"`
	// Forward, when set, receives every decision through an outbox queue
	// after the primary sink accepted it.
	Forward *SinkConfig `json:"forward,omitempty" yaml:"forward,omitempty"`
}

type RuntimeConfig struct {
	AutoAdvance bool `json:"autoAdvance" yaml:"autoAdvance"`
	// StoreURL persists run snapshots on afs storage; empty keeps them in memory.
	StoreURL string `json:"storeURL,omitempty" yaml:"storeURL,omitempty"`
	// Executor tunes the workers running step operations.
	Executor ExecutorConfig `json:"executor" yaml:"executor"`
}

type ExecutorConfig struct {
	Workers    int `json:"workers,omitempty" yaml:"workers,omitempty"`
	MaxRetries int `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	// RetryDelay and MaxDelay are Go durations.
	RetryDelay string  `json:"retryDelay,omitempty" yaml:"retryDelay,omitempty"`
	MaxDelay   string  `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
	Backoff    string  `json:"backoff,omitempty" yaml:"backoff,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// ProcessorConfig converts the section into a processor configuration.
func (c *ExecutorConfig) ProcessorConfig() (processor.Config, error) {
	ret := processor.DefaultConfig()
	if c.Workers < 0 || c.MaxRetries < 0 {
		return ret, fmt.Errorf("runtime.executor: workers and maxRetries must not be negative")
	}
	if c.Workers > 0 {
		ret.WorkerCount = c.Workers
	}
	ret.MaxRetries = c.MaxRetries
	ret.Multiplier = c.Multiplier
	var err error
	if c.RetryDelay != "" {
		if ret.RetryDelay, err = time.ParseDuration(c.RetryDelay); err != nil {
			return ret, fmt.Errorf("runtime.executor.retryDelay: %w", err)
		}
	}
	if c.MaxDelay != "" {
		if ret.MaxDelay, err = time.ParseDuration(c.MaxDelay); err != nil {
			return ret, fmt.Errorf("runtime.executor.maxDelay: %w", err)
		}
	}
	switch backoff := strings.ToLower(c.Backoff); backoff {
	case "":
	case processor.BackoffNone, processor.BackoffFixed, processor.BackoffExponential:
		ret.Backoff = backoff
	default:
		return ret, fmt.Errorf("runtime.executor.backoff %q is not supported", c.Backoff)
	}
	return ret, nil
}

type EventsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Vendor  string `json:"vendor" yaml:"vendor"`
	// BaseURL roots fs queues.
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
}

type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

type LogConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development,omitempty" yaml:"development,omitempty"`
}

// DefaultConfig returns the engine defaults. Callers may modify the returned
// struct before passing it to NewFromConfig.
func DefaultConfig() *Config {
	return &Config{
		Approval: ApprovalConfig{Window: "1h"},
		Audit:    AuditConfig{SinkConfig: SinkConfig{Driver: DriverMemory}},
		Runtime:  RuntimeConfig{AutoAdvance: true},
		Events:   EventsConfig{Vendor: string(messaging.VendorMemory)},
		Metrics:  MetricsConfig{Namespace: "fluxgate"},
		Log:      LogConfig{Level: "info"},
	}
}

// ApprovalWindow returns the parsed approval window.
func (c *Config) ApprovalWindow() (time.Duration, error) {
	if c == nil || c.Approval.Window == "" {
		return 0, nil
	}
	window, err := time.ParseDuration(c.Approval.Window)
	if err != nil {
		return 0, fmt.Errorf("approval.window: %w", err)
	}
	if window < 0 {
		return 0, fmt.Errorf("approval.window must not be negative")
	}
	return window, nil
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if _, err := c.ApprovalWindow(); err != nil {
		errs = append(errs, err)
	}
	if _, err := policy.FromConfig(c.Policy); err != nil {
		errs = append(errs, err)
	}
	if _, err := impact.NewEscalations(c.Impact.Escalations...); err != nil {
		errs = append(errs, fmt.Errorf("impact.escalations: %w", err))
	}
	if err := c.Audit.SinkConfig.validate("audit"); err != nil {
		errs = append(errs, err)
	}
	if c.Audit.Forward != nil {
		if err := c.Audit.Forward.validate("audit.forward"); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := c.Runtime.Executor.ProcessorConfig(); err != nil {
		errs = append(errs, err)
	}
	if c.Events.Enabled {
		switch messaging.Vendor(c.Events.Vendor) {
		case messaging.VendorMemory:
		case messaging.VendorFs:
			if c.Events.BaseURL == "" {
				errs = append(errs, fmt.Errorf("events.baseURL is required for the fs vendor"))
			}
		default:
			errs = append(errs, fmt.Errorf("events.vendor %q is not supported", c.Events.Vendor))
		}
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

func (c *SinkConfig) validate(section string) error {
	switch strings.ToLower(c.Driver) {
	case "", DriverMemory:
	case DriverSqlite, DriverPostgres, "sqlite3", "postgresql", "pq":
		if _, err := sql.ParseDialect(c.Driver); err != nil {
			return fmt.Errorf("%s.driver: %w", section, err)
		}
		if c.DSN == "" {
			return fmt.Errorf("%s.dsn is required for the %s driver", section, c.Driver)
		}
	case DriverFs, DriverRedis:
		if c.URL == "" {
			return fmt.Errorf("%s.url is required for the %s driver", section, c.Driver)
		}
	default:
		return fmt.Errorf("%s.driver %q is not supported", section, c.Driver)
	}
	return nil
}

// NewLogger builds the zap logger described by the log section.
func (c *LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if c.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// LoadConfig reads a YAML or JSON config from any afs URL and overlays it on
// DefaultConfig. ${env.KEY} references are expanded before decoding.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal([]byte(meta.ExpandEnv(string(data))), ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return ret, nil
}
