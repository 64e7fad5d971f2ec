package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/evalstack/esmvaltool/internal/cli/output"
	"github.com/evalstack/esmvaltool/internal/engine"
	"github.com/evalstack/esmvaltool/internal/recipe"
)

// RunRecipe executes a recipe end to end: load, validate, plan, run.
// It is invoked by the root command for the canonical
// `esmvaltool -c <config> <recipe>` form.
func RunRecipe(cmd *cobra.Command, recipePath string) error {
	cmdCtx := FromCommand(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	rec, err := recipe.Load(recipePath)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Config{
		OutputDir:        cfg.OutputDir,
		DiagScripts:      cfg.DiagScripts,
		AuxiliaryDataDir: cfg.AuxiliaryDataDir,
		Rootpath:         cfg.Rootpath,
		DRS:              cfg.DRS,
		MaxParallelTasks: cfg.MaxParallelTasks,
		LogLevel:         cfg.LogLevel,
		SkipNonexistent:  cfg.SkipNonexistent,
		Logger:           cmdCtx.Logger,
	})

	run, err := eng.Plan(rec)
	if err != nil {
		return err
	}

	start := time.Now()
	result, execErr := eng.Execute(cmd.Context(), run)
	if result == nil {
		return execErr
	}

	if execErr == nil && cfg.RemovePreprocDir {
		if err := os.RemoveAll(run.Dirs.Preproc); err != nil {
			cmdCtx.Logger.Warn("failed to remove preproc dir", "dir", run.Dirs.Preproc, "error", err)
		}
	}

	succeeded, failed, skipped := result.Counts()
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(runReport(run, result)); err != nil {
			return err
		}
	} else {
		r.Printf("Run %s finished in %s\n", run.ID, time.Since(start).Round(time.Millisecond))
		r.KeyValue("Output", run.Dirs.Base)
		r.KeyValue("Tasks", fmt.Sprintf("%d succeeded, %d failed, %d skipped", succeeded, failed, skipped))
	}

	return execErr
}

// taskReport is the JSON shape of one task outcome.
type taskReport struct {
	Task     string `json:"task"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// report is the JSON shape of a run summary.
type report struct {
	Run       string       `json:"run"`
	OutputDir string       `json:"output_dir"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Tasks     []taskReport `json:"tasks"`
}

func runReport(run *engine.Run, result *engine.Result) report {
	succeeded, failed, skipped := result.Counts()
	rep := report{
		Run:       run.ID,
		OutputDir: run.Dirs.Base,
		Succeeded: succeeded,
		Failed:    failed,
		Skipped:   skipped,
	}
	for _, node := range run.Graph.Nodes() {
		tr := result.Results[node.ID]
		item := taskReport{Task: node.ID, Status: string(tr.Status)}
		if tr.Err != nil {
			item.Error = tr.Err.Error()
		}
		if tr.Duration > 0 {
			item.Duration = tr.Duration.Round(time.Millisecond).String()
		}
		rep.Tasks = append(rep.Tasks, item)
	}
	return rep
}
