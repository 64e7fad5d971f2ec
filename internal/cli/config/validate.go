package config

import (
	"errors"
	"fmt"
	"log/slog"
)

var logLevels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

var outputFormats = map[string]bool{
	"auto":     true,
	"text":     true,
	"markdown": true,
	"json":     true,
}

// Validate checks settings that would otherwise fail deep inside a
// run.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := logLevels[c.LogLevel]; !ok {
		errs = append(errs, fmt.Errorf("unknown log_level %q (want debug, info, warning or error)", c.LogLevel))
	}
	if !outputFormats[c.OutputFormat] {
		errs = append(errs, fmt.Errorf("unknown output format %q", c.OutputFormat))
	}
	if c.MaxParallelTasks < 1 {
		errs = append(errs, fmt.Errorf("max_parallel_tasks must be at least 1, got %d", c.MaxParallelTasks))
	}
	switch c.Batch.Backend {
	case "", "slurm", "pbs":
	default:
		errs = append(errs, fmt.Errorf("unknown batch backend %q (want slurm or pbs)", c.Batch.Backend))
	}
	return errors.Join(errs...)
}

// SlogLevel translates the configured log level.
func (c *Config) SlogLevel() slog.Level {
	if level, ok := logLevels[c.LogLevel]; ok {
		return level
	}
	return slog.LevelInfo
}
