// Package config loads the user configuration for the esmvaltool CLI:
// archive rootpaths, DRS layouts, output directories, and execution
// settings, layered from defaults, the config-user file, environment
// variables, and command-line flags.
package config

import (
	"github.com/evalstack/esmvaltool/internal/datafinder"
)

// Config holds all user configuration options.
type Config struct {
	// OutputDir is the base directory for run outputs. Each run gets
	// a unique subdirectory beneath it.
	OutputDir string `koanf:"output_dir"`

	// Rootpath maps project names to archive root directories; the
	// "default" entry is the fallback. Values accept a single path or
	// a list of paths.
	Rootpath map[string][]string `koanf:"-"`

	// DRS maps project names to archive layout templates, overriding
	// the built-in layouts.
	DRS map[string]datafinder.DRS `koanf:"drs"`

	// DiagScripts lists the directories searched for relative
	// diagnostic script paths.
	DiagScripts []string `koanf:"diag_scripts"`

	// AuxiliaryDataDir holds supplementary data used by diagnostics
	// (shapefiles, lookup tables).
	AuxiliaryDataDir string `koanf:"auxiliary_data_dir"`

	MaxParallelTasks int    `koanf:"max_parallel_tasks"`
	LogLevel         string `koanf:"log_level"`
	SkipNonexistent  bool   `koanf:"skip_nonexistent"`
	OutputFormat     string `koanf:"output"`
	// RemovePreprocDir deletes the preprocessing products of a run
	// after it succeeds; they are usually the bulk of the output.
	RemovePreprocDir bool `koanf:"remove_preproc_dir"`

	// Batch configures job-submission script generation.
	Batch BatchConfig `koanf:"batch"`
}

// BatchConfig holds batch-queue submission settings.
type BatchConfig struct {
	Backend     string `koanf:"backend"`
	Queue       string `koanf:"queue"`
	Cores       int    `koanf:"cores"`
	Memory      string `koanf:"memory"`
	WallTime    string `koanf:"wall_time"`
	Environment string `koanf:"environment"`
	LogDir      string `koanf:"log_dir"`
}

// Default configuration values.
const (
	DefaultOutputDir        = "esmvaltool_output"
	DefaultMaxParallelTasks = 1
	DefaultLogLevel         = "info"
	DefaultOutputFormat     = "auto"
	DefaultBatchBackend     = "slurm"
	DefaultBatchEnvironment = "esmvaltool"
)
