package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.ActionTimeout() != 30*time.Second {
		t.Errorf("expected 30s action timeout, got %v", cfg.ActionTimeout())
	}
	if cfg.BatchWindow() != 16*time.Millisecond {
		t.Errorf("expected 16ms batch window, got %v", cfg.BatchWindow())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zubridge.toml")
	data := `
[scheduler]
max_queue_size = 50

[batcher]
window_ms = 8
priority_flush_threshold = 3

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.MaxQueueSize != 50 {
		t.Errorf("expected 50, got %d", cfg.Scheduler.MaxQueueSize)
	}
	if cfg.Batcher.WindowMS != 8 || cfg.Batcher.PriorityFlushThreshold != 3 {
		t.Errorf("unexpected batcher config: %+v", cfg.Batcher)
	}
	// Unmentioned fields keep their defaults.
	if cfg.Batcher.MaxBatchSize != 25 {
		t.Errorf("expected default max batch size, got %d", cfg.Batcher.MaxBatchSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[scheduler\nmax_queue_size ="), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Path != path {
		t.Errorf("expected path %s, got %s", path, pe.Path)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvPrefix+"MAX_QUEUE_SIZE", "7")
	t.Setenv(EnvPrefix+"LOG_LEVEL", "error")
	t.Setenv(EnvPrefix+"ACTION_TIMEOUT_MS", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.MaxQueueSize != 7 {
		t.Errorf("expected env override 7, got %d", cfg.Scheduler.MaxQueueSize)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("expected env override error, got %s", cfg.Logging.Level)
	}
	// Malformed numeric values are ignored.
	if cfg.Processor.ActionTimeoutMS != 30000 {
		t.Errorf("expected default timeout, got %d", cfg.Processor.ActionTimeoutMS)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero queue", func(c *Config) { c.Scheduler.MaxQueueSize = 0 }, "scheduler.max_queue_size"},
		{"negative timeout", func(c *Config) { c.Processor.ActionTimeoutMS = -1 }, "processor.action_timeout_ms"},
		{"zero window", func(c *Config) { c.Batcher.WindowMS = 0 }, "batcher.window_ms"},
		{"zero batch size", func(c *Config) { c.Batcher.MaxBatchSize = 0 }, "batcher.max_batch_size"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zubridge.toml")
	if err := os.WriteFile(path, []byte("[scheduler]\nmax_queue_size = 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got []Config
	reloaded := make(chan struct{}, 4)

	w, err := NewWatcher(path, func(cfg Config) {
		mu.Lock()
		got = append(got, cfg)
		mu.Unlock()
		reloaded <- struct{}{}
	}, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[scheduler]\nmax_queue_size = 42\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("reload never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 || got[len(got)-1].Scheduler.MaxQueueSize != 42 {
		t.Errorf("expected reloaded queue size 42, got %+v", got)
	}
}

func TestWatcherIgnoresInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zubridge.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	called := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(Config) {
		called <- struct{}{}
	}, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// A file that fails validation must not reach the callback.
	if err := os.WriteFile(path, []byte("[scheduler]\nmax_queue_size = -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-called:
		t.Fatal("invalid config must not trigger reload callback")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zubridge.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close must be a no-op, got %v", err)
	}
}
