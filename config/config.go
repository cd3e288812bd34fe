// Package config holds the YAML configuration of the clips command and
// of hosts that embed an environment the same way.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
)

// Backends.
const (
	BackendSim  = "sim"
	BackendCgo  = "cgo"
	BackendWasm = "wasm"
)

// ValidBackends lists the engine backends a configuration may name.
var ValidBackends = []string{BackendSim, BackendCgo, BackendWasm}

// ValidLogFormats lists the accepted logging formats.
var ValidLogFormats = []string{"console", "json"}

// Config holds the settings of one engine environment and its host.
type Config struct {
	// Engine backend: sim, cgo or wasm.
	Backend string     `yaml:"backend"`
	Wasm    WasmConfig `yaml:"wasm"`

	// Construct files loaded, then batch files evaluated, at startup.
	Preload []PreloadFile `yaml:"preload"`
	Batch   []string      `yaml:"batch"`

	Run     RunConfig     `yaml:"run"`
	Routers RouterConfig  `yaml:"routers"`
	Logging LoggingConfig `yaml:"logging"`
	Store   StoreConfig   `yaml:"store"`
	Watch   WatchConfig   `yaml:"watch"`
}

// WasmConfig configures the WebAssembly backend.
type WasmConfig struct {
	Module string `yaml:"module"`
	// Linear memory cap in 64 KiB pages; 0 leaves the runtime default.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
}

// PreloadFile is a construct file loaded before anything else.
type PreloadFile struct {
	Path   string `yaml:"path"`
	Binary bool   `yaml:"binary"`
}

// RunConfig bounds agenda execution.
type RunConfig struct {
	// Maximum activations per run; -1 runs to completion.
	Limit int64 `yaml:"limit"`
	// Conflict resolution strategy and salience evaluation mode, by
	// engine name. Empty keeps the engine default.
	Strategy           string `yaml:"strategy,omitempty"`
	SalienceEvaluation string `yaml:"salience_evaluation,omitempty"`
}

// RouterConfig configures the routers installed in every environment.
type RouterConfig struct {
	ErrorPriority int  `yaml:"error_priority"`
	LoggingRouter bool `yaml:"logging_router"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// StoreConfig configures fact snapshot persistence. An empty path
// disables the store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// WatchConfig configures reloading of preload files on change.
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Debounce string `yaml:"debounce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendSim,
		Run: RunConfig{
			Limit: -1,
		},
		Routers: RouterConfig{
			ErrorPriority: 40,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
		Watch: WatchConfig{
			Debounce: "200ms",
		},
	}
}

// Load reads a YAML file over the defaults. A missing file yields the
// defaults. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindIO, err, "read config")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse config")
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindIO, err, "create config directory")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "marshal config")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindIO, err, "write config")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CLIPS_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("CLIPS_WASM_MODULE"); v != "" {
		c.Wasm.Module = v
	}
	if v := os.Getenv("CLIPS_STORE"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("CLIPS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CLIPS_RUN_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Run.Limit = n
		}
	}
}

// LogLevel returns the configured zap level, warn when unparsable.
func (c *Config) LogLevel() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return zapcore.WarnLevel
	}
	return lvl
}

// WatchDebounce returns the watch debounce as a duration.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 200 * time.Millisecond
	}
	return d
}

// Validate checks the configuration for values no backend can use.
func (c *Config) Validate() error {
	if !slices.Contains(ValidBackends, c.Backend) {
		return errors.InvalidInput(errors.PhaseConfig, "invalid backend "+strconv.Quote(c.Backend))
	}
	if c.Backend == BackendWasm && c.Wasm.Module == "" {
		return errors.InvalidInput(errors.PhaseConfig, "wasm backend needs wasm.module")
	}
	for i, p := range c.Preload {
		if p.Path == "" {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path("preload", strconv.Itoa(i)).
				Detail("empty path").
				Build()
		}
	}
	for i, p := range c.Batch {
		if p == "" {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path("batch", strconv.Itoa(i)).
				Detail("empty path").
				Build()
		}
	}
	if c.Run.Limit < -1 {
		return errors.InvalidInput(errors.PhaseConfig, "run.limit must be -1 or more")
	}
	if _, ok := engine.ParseStrategy(c.Run.Strategy); c.Run.Strategy != "" && !ok {
		return errors.InvalidInput(errors.PhaseConfig, "invalid run.strategy "+strconv.Quote(c.Run.Strategy))
	}
	if _, ok := engine.ParseSalienceEvaluation(c.Run.SalienceEvaluation); c.Run.SalienceEvaluation != "" && !ok {
		return errors.InvalidInput(errors.PhaseConfig, "invalid run.salience_evaluation "+strconv.Quote(c.Run.SalienceEvaluation))
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "logging.level")
	}
	if !slices.Contains(ValidLogFormats, c.Logging.Format) {
		return errors.InvalidInput(errors.PhaseConfig, "invalid logging format "+strconv.Quote(c.Logging.Format))
	}
	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "watch.debounce")
		}
	}
	return nil
}

// Paths lists every file the configuration loads, preload files first.
func (c *Config) Paths() []string {
	out := make([]string, 0, len(c.Preload)+len(c.Batch))
	for _, p := range c.Preload {
		out = append(out, p.Path)
	}
	return append(out, c.Batch...)
}
