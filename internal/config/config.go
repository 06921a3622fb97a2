package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "ZUBRIDGE_"

// SchedulerConfig configures the thunk task scheduler.
type SchedulerConfig struct {
	// MaxQueueSize bounds the pending task queue.
	MaxQueueSize int `toml:"max_queue_size"`
}

// ProcessorConfig configures the action processor.
type ProcessorConfig struct {
	// ActionTimeoutMS is the per-action completion safety timeout in
	// milliseconds.
	ActionTimeoutMS int `toml:"action_timeout_ms"`
}

// BatcherConfig configures the renderer-bound action batcher.
type BatcherConfig struct {
	// WindowMS is the coalescing window in milliseconds.
	WindowMS int `toml:"window_ms"`

	// MaxBatchSize caps actions per transmitted batch.
	MaxBatchSize int `toml:"max_batch_size"`

	// PriorityFlushThreshold is the priority at or above which the
	// buffer flushes immediately.
	PriorityFlushThreshold int `toml:"priority_flush_threshold"`

	// MaxQueueSize bounds the pre-flush buffer.
	MaxQueueSize int `toml:"max_queue_size"`
}

// LoggingConfig configures the bridge logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
}

// Config is the full bridge configuration.
type Config struct {
	Scheduler SchedulerConfig `toml:"scheduler"`
	Processor ProcessorConfig `toml:"processor"`
	Batcher   BatcherConfig   `toml:"batcher"`
	Logging   LoggingConfig   `toml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Scheduler: SchedulerConfig{
			MaxQueueSize: 100,
		},
		Processor: ProcessorConfig{
			ActionTimeoutMS: 30000,
		},
		Batcher: BatcherConfig{
			WindowMS:               16,
			MaxBatchSize:           25,
			PriorityFlushThreshold: 7,
			MaxQueueSize:           100,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given TOML file, layered over the
// defaults and under any ZUBRIDGE_* environment overrides. A missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return Config{}, err
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, &ParseError{Path: path, Err: err}
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays ZUBRIDGE_* environment variables onto cfg. Unset or
// malformed values leave the field alone.
func applyEnv(cfg *Config) {
	envInt(EnvPrefix+"MAX_QUEUE_SIZE", &cfg.Scheduler.MaxQueueSize)
	envInt(EnvPrefix+"ACTION_TIMEOUT_MS", &cfg.Processor.ActionTimeoutMS)
	envInt(EnvPrefix+"BATCH_WINDOW_MS", &cfg.Batcher.WindowMS)
	envInt(EnvPrefix+"MAX_BATCH_SIZE", &cfg.Batcher.MaxBatchSize)
	envInt(EnvPrefix+"PRIORITY_FLUSH_THRESHOLD", &cfg.Batcher.PriorityFlushThreshold)
	envInt(EnvPrefix+"BATCH_QUEUE_SIZE", &cfg.Batcher.MaxQueueSize)

	if v, ok := os.LookupEnv(EnvPrefix + "LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = v
	}
}

func envInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

// Validate checks all values are in range.
func (c Config) Validate() error {
	if c.Scheduler.MaxQueueSize <= 0 {
		return &ValidationError{Field: "scheduler.max_queue_size", Message: "must be positive"}
	}
	if c.Processor.ActionTimeoutMS <= 0 {
		return &ValidationError{Field: "processor.action_timeout_ms", Message: "must be positive"}
	}
	if c.Batcher.WindowMS <= 0 {
		return &ValidationError{Field: "batcher.window_ms", Message: "must be positive"}
	}
	if c.Batcher.MaxBatchSize <= 0 {
		return &ValidationError{Field: "batcher.max_batch_size", Message: "must be positive"}
	}
	if c.Batcher.MaxQueueSize <= 0 {
		return &ValidationError{Field: "batcher.max_queue_size", Message: "must be positive"}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Field: "logging.level", Message: "must be debug, info, warn, or error"}
	}
	return nil
}

// ActionTimeout returns the processor safety timeout as a duration.
func (c Config) ActionTimeout() time.Duration {
	return time.Duration(c.Processor.ActionTimeoutMS) * time.Millisecond
}

// BatchWindow returns the batcher coalescing window as a duration.
func (c Config) BatchWindow() time.Duration {
	return time.Duration(c.Batcher.WindowMS) * time.Millisecond
}
