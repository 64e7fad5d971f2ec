// Package engine executes recipes: it resolves input files for every
// dataset, plans preprocessing pipelines, and invokes diagnostic
// scripts in dependency order with bounded parallelism.
package engine

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evalstack/esmvaltool/internal/dag"
	"github.com/evalstack/esmvaltool/internal/datafinder"
	"github.com/evalstack/esmvaltool/internal/recipe"
)

// Config holds engine configuration.
type Config struct {
	// OutputDir is the base directory; each run creates a unique
	// subdirectory beneath it.
	OutputDir string
	// DiagScripts lists the roots searched for relative script paths.
	DiagScripts []string
	// AuxiliaryDataDir is passed through to diagnostic scripts.
	AuxiliaryDataDir string
	// Rootpath and DRS configure input file resolution.
	Rootpath map[string][]string
	DRS      map[string]datafinder.DRS

	MaxParallelTasks int
	// LogLevel is passed through to diagnostic scripts in their
	// settings file.
	LogLevel string
	// SkipNonexistent drops datasets whose files cannot be found
	// instead of failing the run.
	SkipNonexistent bool
	// Logger is the structured logger (discard if nil).
	Logger *slog.Logger
}

// Engine plans and executes recipe runs.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	finder *datafinder.Finder
}

// New creates an engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MaxParallelTasks < 1 {
		cfg.MaxParallelTasks = 1
	}
	return &Engine{
		cfg:    cfg,
		logger: logger,
		finder: datafinder.New(cfg.Rootpath, cfg.DRS, logger),
	}
}

// Run is one planned recipe execution.
type Run struct {
	ID     string
	Recipe *recipe.Recipe
	Dirs   RunDirs
	Graph  *dag.Graph
	Tasks  map[string]Task
}

// RunDirs is the output directory layout of a run.
type RunDirs struct {
	Base    string // <output>/<recipe>_<timestamp>_<id>
	Run     string // logs and resolved settings
	Work    string // diagnostic working data
	Plots   string // figures
	Preproc string // preprocessing results
}

// newRunID builds a unique, sortable run directory name.
func newRunID(recipePath string) string {
	name := strings.TrimSuffix(filepath.Base(recipePath), filepath.Ext(recipePath))
	if name == "" || name == "." {
		name = "recipe"
	}
	stamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s", name, stamp, uuid.NewString()[:8])
}

// createRunDirs lays out the run directory tree.
func createRunDirs(outputDir, runID string) (RunDirs, error) {
	base := filepath.Join(outputDir, runID)
	dirs := RunDirs{
		Base:    base,
		Run:     filepath.Join(base, "run"),
		Work:    filepath.Join(base, "work"),
		Plots:   filepath.Join(base, "plots"),
		Preproc: filepath.Join(base, "preproc"),
	}
	for _, dir := range []string{dirs.Run, dirs.Work, dirs.Plots, dirs.Preproc} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return RunDirs{}, fmt.Errorf("failed to create run directory: %w", err)
		}
	}
	return dirs, nil
}
