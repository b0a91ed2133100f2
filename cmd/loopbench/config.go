package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joeycumines/logiface"
)

const (
	// ModeRun requests each iteration with RunIteration, then waits for it.
	ModeRun = "run"
	// ModeRestart requests iterations back to back, with RestartIteration.
	ModeRestart = "restart"
)

// envPrefix is prepended to the env tag of every Config field.
const envPrefix = "LOOPBENCH_"

// Config is the loopbench configuration, decoded from an optional TOML file,
// then overridden by the environment, then by flags.
type Config struct {
	Controllers  int           `toml:"controllers" env:"CONTROLLERS"`
	Iterations   int           `toml:"iterations" env:"ITERATIONS"`
	Mode         string        `toml:"mode" env:"MODE"`
	Work         time.Duration `toml:"work" env:"WORK"`             // simulated duration of each iteration
	FailEvery    int           `toml:"fail_every" env:"FAIL_EVERY"` // every Nth iteration fails; 0 = never
	FailFast     bool          `toml:"fail_fast" env:"FAIL_FAST"`
	LockOSThread bool          `toml:"lock_os_thread" env:"LOCK_OS_THREAD"`
	LogLevel     string        `toml:"log_level" env:"LOG_LEVEL"`
	ProgressRate int           `toml:"progress_rate" env:"PROGRESS_RATE"` // progress logs per controller per second; 0 = unlimited
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Controllers:  4,
		Iterations:   1000,
		Mode:         ModeRestart,
		LogLevel:     "info",
		ProgressRate: 1,
	}
}

// Load builds the Config from defaults, the TOML file at path (skipped if
// empty), then the LOOPBENCH_* environment. Unknown keys in the file are an
// error. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	return &cfg, nil
}

// Validate returns all issues with the configuration, joined together.
func (c *Config) Validate() error {
	var errs []error

	if c.Controllers < 1 {
		errs = append(errs, errors.New("controllers must be >= 1"))
	}
	if c.Iterations < 0 {
		errs = append(errs, errors.New("iterations must be >= 0"))
	}
	if c.Mode != ModeRun && c.Mode != ModeRestart {
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeRun, ModeRestart, c.Mode))
	}
	if c.Work < 0 {
		errs = append(errs, errors.New("work must be >= 0"))
	}
	if c.FailEvery < 0 {
		errs = append(errs, errors.New("fail_every must be >= 0 (0 = never)"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.ProgressRate < 0 {
		errs = append(errs, errors.New("progress_rate must be >= 0 (0 = unlimited)"))
	}

	return errors.Join(errs...)
}

// parseLevel accepts the short syslog keywords used by logiface.Level.String.
func parseLevel(s string) (logiface.Level, error) {
	for _, level := range [...]logiface.Level{
		logiface.LevelDisabled,
		logiface.LevelEmergency,
		logiface.LevelAlert,
		logiface.LevelCritical,
		logiface.LevelError,
		logiface.LevelWarning,
		logiface.LevelNotice,
		logiface.LevelInformational,
		logiface.LevelDebug,
		logiface.LevelTrace,
	} {
		if strings.EqualFold(s, level.String()) {
			return level, nil
		}
	}
	switch strings.ToLower(s) {
	case "error":
		return logiface.LevelError, nil
	case "warn":
		return logiface.LevelWarning, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("log_level: unknown level %q", s)
}
