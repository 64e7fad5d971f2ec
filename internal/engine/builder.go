package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evalstack/esmvaltool/internal/dag"
	"github.com/evalstack/esmvaltool/internal/datafinder"
	"github.com/evalstack/esmvaltool/internal/recipe"
)

// Plan validates the recipe and builds the run: output directories,
// one preprocessing task per (diagnostic, variable, dataset), one
// script task per diagnostic script, and the dependency graph between
// them.
func (e *Engine) Plan(r *recipe.Recipe) (*Run, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recipe: %w", err)
	}

	runID := newRunID(r.Path)
	dirs, err := createRunDirs(e.cfg.OutputDir, runID)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:     runID,
		Recipe: r,
		Dirs:   dirs,
		Graph:  dag.New(),
		Tasks:  make(map[string]Task),
	}

	for _, diagName := range r.DiagnosticNames() {
		diag := r.Diagnostics[diagName]
		preprocIDs, inputDirs, err := e.planPreprocTasks(run, diag)
		if err != nil {
			return nil, err
		}
		if err := e.planScriptTasks(run, diag, preprocIDs, inputDirs); err != nil {
			return nil, err
		}
	}

	if cycle := run.Graph.Cycle(); cycle != nil {
		return nil, fmt.Errorf("recipe produces a task cycle: %v", cycle)
	}

	e.logger.Info("planned run",
		"run", runID,
		"tasks", len(run.Tasks),
		"output", dirs.Base)
	return run, nil
}

// planPreprocTasks creates the preprocessing tasks of one diagnostic
// and returns their ids plus the product directories scripts will
// read.
func (e *Engine) planPreprocTasks(run *Run, diag *recipe.Diagnostic) ([]string, []string, error) {
	var taskIDs []string
	var inputDirs []string

	for _, short := range diag.VariableNames() {
		v := diag.Variables[short]
		pipeline, _ := run.Recipe.Pipeline(v.PipelineName())

		varDir := filepath.Join(run.Dirs.Preproc, diag.Name, short)
		inputDirs = append(inputDirs, varDir)

		found := 0
		for _, ds := range run.Recipe.DatasetsFor(diag, v) {
			files, err := e.finder.Find(ds, short)
			if err != nil {
				if e.cfg.SkipNonexistent && errors.Is(err, datafinder.ErrNoFiles) {
					e.logger.Warn("skipping dataset, no input files",
						"diagnostic", diag.Name, "variable", short,
						"dataset", ds.Dataset, "project", ds.Project)
					continue
				}
				return nil, nil, fmt.Errorf("diagnostic %q variable %q: %w", diag.Name, short, err)
			}
			found++

			stem := datasetStem(ds, short)
			task := &PreprocTask{
				Diagnostic:   diag.Name,
				Variable:     v,
				Dataset:      ds,
				Pipeline:     pipeline,
				Files:        files,
				OutputFile:   filepath.Join(varDir, stem+".nc"),
				SettingsFile: filepath.Join(varDir, stem+"_settings.yml"),
			}
			run.Tasks[task.ID()] = task
			run.Graph.AddNode(task.ID(), task)
			taskIDs = append(taskIDs, task.ID())
		}

		if found == 0 && len(run.Recipe.DatasetsFor(diag, v)) > 0 {
			e.logger.Warn("variable has no datasets left after skipping",
				"diagnostic", diag.Name, "variable", short)
		}
	}

	return taskIDs, inputDirs, nil
}

// planScriptTasks creates the script tasks of one diagnostic, wiring
// them after the diagnostic's preprocessing tasks and after any
// declared ancestor scripts.
func (e *Engine) planScriptTasks(run *Run, diag *recipe.Diagnostic, preprocIDs, inputDirs []string) error {
	for _, sname := range diag.ScriptNames() {
		s := diag.Scripts[sname]
		scriptPath, err := resolveScript(s.Path, e.cfg.DiagScripts)
		if err != nil {
			return fmt.Errorf("diagnostic %q script %q: %w", diag.Name, sname, err)
		}

		taskRunDir := filepath.Join(run.Dirs.Run, diag.Name, sname)
		task := &ScriptTask{
			Diagnostic:       diag.Name,
			Script:           s,
			ScriptPath:       scriptPath,
			InputDirs:        inputDirs,
			SettingsFile:     filepath.Join(taskRunDir, "settings.yml"),
			WorkDir:          filepath.Join(run.Dirs.Work, diag.Name, sname),
			PlotDir:          filepath.Join(run.Dirs.Plots, diag.Name, sname),
			RunDir:           taskRunDir,
			LogFile:          filepath.Join(taskRunDir, "log.txt"),
			AuxiliaryDataDir: e.cfg.AuxiliaryDataDir,
			LogLevel:         e.cfg.LogLevel,
		}
		run.Tasks[task.ID()] = task
		run.Graph.AddNode(task.ID(), task)

		for _, pid := range preprocIDs {
			if err := run.Graph.AddEdge(pid, task.ID()); err != nil {
				return err
			}
		}
	}

	// Ancestor edges need every script node in place first.
	for _, sname := range diag.ScriptNames() {
		s := diag.Scripts[sname]
		dependent := diag.Name + "/" + sname
		for _, ancestor := range s.Ancestors {
			if err := run.Graph.AddEdge(diag.Name+"/"+ancestor, dependent); err != nil {
				return fmt.Errorf("diagnostic %q script %q: %w", diag.Name, sname, err)
			}
		}
	}

	return nil
}

// datasetStem builds the filename stem identifying one dataset's
// preprocessing product.
func datasetStem(ds recipe.Dataset, short string) string {
	parts := []string{ds.Project, ds.Dataset, ds.Exp, ds.Ensemble, ds.Mip, short}
	if ds.StartYear != 0 || ds.EndYear != 0 {
		parts = append(parts, fmt.Sprintf("%d-%d", ds.StartYear, ds.EndYear))
	}
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "_")
}
