package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/evalstack/esmvaltool/internal/datafinder"
	"github.com/evalstack/esmvaltool/internal/recipe"
	"github.com/evalstack/esmvaltool/internal/testutil"
)

// writeArchive lays out a fake CMIP5 archive for the given variables.
func writeArchive(t *testing.T, shorts ...string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "CMIP5", "CanESM2", "historical")
	require.NoError(t, os.MkdirAll(dir, 0750))
	for _, short := range shorts {
		name := short + "_Amon_CanESM2_historical_r1i1p1_199001-200912.nc"
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("netcdf"), 0640))
	}
	return root
}

// writeScript drops an executable diagnostic script into a fresh
// scripts root and returns the root.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(body), 0750))
	return root
}

const testRecipe = `
datasets:
  - {dataset: CanESM2, project: CMIP5, exp: historical, ensemble: r1i1p1}

preprocessors:
  annual_mean:
    regrid:
      target_grid: 1x1
      scheme: linear
    climate_statistics:
      operator: mean

diagnostics:
  map:
    description: Climatology maps.
    variables:
      tas: &var
        mip: Amon
        start_year: 1995
        end_year: 2005
        preprocessor: annual_mean
      pr: *var
    scripts:
      script1:
        script: diag_map.sh
        plot_type: pcolormesh
`

func testEngine(t *testing.T, archive, scripts string, skip bool) *Engine {
	t.Helper()
	return New(Config{
		OutputDir:        t.TempDir(),
		DiagScripts:      []string{scripts},
		Rootpath:         map[string][]string{"default": {archive}},
		MaxParallelTasks: 2,
		LogLevel:         "debug",
		SkipNonexistent:  skip,
		Logger:           testutil.NewTestLogger(t),
	})
}

func parseRecipe(t *testing.T, doc string) *recipe.Recipe {
	t.Helper()
	r, err := recipe.Parse([]byte(doc))
	require.NoError(t, err)
	r.Path = "recipe_test.yml"
	return r
}

func TestPlanBuildsTasks(t *testing.T) {
	archive := writeArchive(t, "tas", "pr")
	scripts := writeScript(t, "diag_map.sh", "#!/bin/sh\nexit 0\n")
	e := testEngine(t, archive, scripts, false)

	run, err := e.Plan(parseRecipe(t, testRecipe))
	require.NoError(t, err)

	// Two preprocessing tasks (tas, pr) plus one script task.
	assert.Equal(t, 3, len(run.Tasks))
	assert.Equal(t, 3, run.Graph.Len())

	scriptID := "map/script1"
	_, ok := run.Tasks[scriptID]
	require.True(t, ok)
	assert.Len(t, run.Graph.Parents(scriptID), 2)

	assert.DirExists(t, run.Dirs.Run)
	assert.DirExists(t, run.Dirs.Work)
	assert.DirExists(t, run.Dirs.Plots)
	assert.DirExists(t, run.Dirs.Preproc)
	assert.Contains(t, run.ID, "recipe_test")
}

func TestPlanMissingFilesFailsWithoutSkip(t *testing.T) {
	archive := writeArchive(t, "tas") // no pr files
	scripts := writeScript(t, "diag_map.sh", "#!/bin/sh\nexit 0\n")
	e := testEngine(t, archive, scripts, false)

	_, err := e.Plan(parseRecipe(t, testRecipe))
	require.Error(t, err)
	assert.True(t, errors.Is(err, datafinder.ErrNoFiles))
}

func TestPlanSkipNonexistentDropsDataset(t *testing.T) {
	archive := writeArchive(t, "tas")
	scripts := writeScript(t, "diag_map.sh", "#!/bin/sh\nexit 0\n")
	e := testEngine(t, archive, scripts, true)

	run, err := e.Plan(parseRecipe(t, testRecipe))
	require.NoError(t, err)

	// The pr preprocessing task is gone; the script only depends on
	// tas.
	assert.Equal(t, 2, len(run.Tasks))
	assert.Len(t, run.Graph.Parents("map/script1"), 1)
}

func TestPlanUnresolvableScript(t *testing.T) {
	archive := writeArchive(t, "tas", "pr")
	e := testEngine(t, archive, t.TempDir(), false)

	_, err := e.Plan(parseRecipe(t, testRecipe))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestExecuteRun(t *testing.T) {
	archive := writeArchive(t, "tas", "pr")
	// The script copies its settings file into the work dir so the
	// test can check both the invocation and the environment.
	scripts := writeScript(t, "diag_map.sh",
		"#!/bin/sh\ncp \"$1\" \"$ESMVALTOOL_WORK_DIR/settings-copy.yml\"\n")
	e := testEngine(t, archive, scripts, false)

	run, err := e.Plan(parseRecipe(t, testRecipe))
	require.NoError(t, err)

	result, err := e.Execute(context.Background(), run)
	require.NoError(t, err)
	succeeded, failed, skipped := result.Counts()
	assert.Equal(t, 3, succeeded)
	assert.Zero(t, failed)
	assert.Zero(t, skipped)

	// Preprocessing plans are on disk with operations in order.
	var preprocTask *PreprocTask
	for _, task := range run.Tasks {
		if pt, ok := task.(*PreprocTask); ok && pt.Variable.ShortName == "tas" {
			preprocTask = pt
		}
	}
	require.NotNil(t, preprocTask)

	data, err := os.ReadFile(preprocTask.SettingsFile)
	require.NoError(t, err)
	var plan struct {
		Variable   string `yaml:"variable"`
		InputFiles []string
		Steps      []struct {
			Operation string `yaml:"operation"`
		} `yaml:"steps"`
	}
	require.NoError(t, yaml.Unmarshal(data, &plan))
	assert.Equal(t, "tas", plan.Variable)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "regrid", plan.Steps[0].Operation)
	assert.Equal(t, "climate_statistics", plan.Steps[1].Operation)

	// The diagnostic script ran and saw its settings file.
	scriptTask := run.Tasks["map/script1"].(*ScriptTask)
	assert.FileExists(t, filepath.Join(scriptTask.WorkDir, "settings-copy.yml"))
	assert.FileExists(t, scriptTask.SettingsFile)
	assert.FileExists(t, scriptTask.LogFile)

	// The settings carry the configured log level so scripts can
	// match the driver's verbosity.
	settingsData, err := os.ReadFile(scriptTask.SettingsFile)
	require.NoError(t, err)
	var settings struct {
		WorkDir  string `yaml:"work_dir"`
		LogLevel string `yaml:"log_level"`
	}
	require.NoError(t, yaml.Unmarshal(settingsData, &settings))
	assert.Equal(t, scriptTask.WorkDir, settings.WorkDir)
	assert.Equal(t, "debug", settings.LogLevel)
}

const failingRecipe = `
datasets:
  - {dataset: CanESM2, project: CMIP5, exp: historical, ensemble: r1i1p1}

diagnostics:
  broken:
    variables:
      tas: {mip: Amon, start_year: 1995, end_year: 2005}
    scripts:
      plot:
        script: diag_fail.sh
      report:
        script: diag_ok.sh
        ancestors: [plot]

  healthy:
    variables:
      tas: {mip: Amon, start_year: 1995, end_year: 2005}
    scripts:
      plot:
        script: diag_ok.sh
`

func TestExecuteFailureSkipsDependents(t *testing.T) {
	archive := writeArchive(t, "tas")
	scripts := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "diag_fail.sh"),
		[]byte("#!/bin/sh\necho boom >&2\nexit 3\n"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "diag_ok.sh"),
		[]byte("#!/bin/sh\nexit 0\n"), 0750))

	e := testEngine(t, archive, scripts, false)
	run, err := e.Plan(parseRecipe(t, failingRecipe))
	require.NoError(t, err)

	result, err := e.Execute(context.Background(), run)
	require.Error(t, err)
	require.NotNil(t, result)

	assert.Equal(t, StatusFailed, result.Results["broken/plot"].Status)
	assert.Contains(t, result.Results["broken/plot"].Err.Error(), "boom")
	assert.Equal(t, StatusSkipped, result.Results["broken/report"].Status)

	// The healthy diagnostic still ran to completion.
	assert.Equal(t, StatusSuccess, result.Results["healthy/plot"].Status)
	assert.True(t, result.Failed())
}

func TestExecuteContextCancellation(t *testing.T) {
	archive := writeArchive(t, "tas")
	scripts := writeScript(t, "diag_map.sh", "#!/bin/sh\nexit 0\n")
	e := testEngine(t, archive, scripts, false)

	doc := `
datasets:
  - {dataset: CanESM2, project: CMIP5, exp: historical, ensemble: r1i1p1}
diagnostics:
  map:
    variables:
      tas: {mip: Amon, start_year: 1995, end_year: 2005}
    scripts:
      script1: {script: diag_map.sh}
`
	run, err := e.Plan(parseRecipe(t, doc))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Execute(ctx, run)
	require.Error(t, err)
}

func TestResolveScript(t *testing.T) {
	root := writeScript(t, "diag.py", "print('ok')\n")

	got, err := resolveScript("diag.py", []string{t.TempDir(), root})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "diag.py"), got)

	abs := filepath.Join(root, "diag.py")
	got, err = resolveScript(abs, nil)
	require.NoError(t, err)
	assert.Equal(t, abs, got)

	_, err = resolveScript("missing.py", []string{root})
	require.Error(t, err)

	_, err = resolveScript(filepath.Join(root, "missing.py"), nil)
	require.Error(t, err)
}

func TestScriptTaskCommand(t *testing.T) {
	tests := []struct {
		script string
		want   string
	}{
		{script: "/d/diag.py", want: "python"},
		{script: "/d/diag.R", want: "Rscript"},
		{script: "/d/diag.ncl", want: "ncl"},
		{script: "/d/diag.jl", want: "julia"},
		{script: "/d/diag.sh", want: "bash"},
	}
	for _, tt := range tests {
		task := &ScriptTask{ScriptPath: tt.script, SettingsFile: "/r/settings.yml", Script: &recipe.Script{}}
		argv := task.Command()
		assert.Equal(t, tt.want, argv[0])
		assert.Equal(t, []string{tt.script, "/r/settings.yml"}, argv[1:])
	}

	// No extension mapping: execute the script directly.
	task := &ScriptTask{ScriptPath: "/d/diag", SettingsFile: "/r/settings.yml", Script: &recipe.Script{}}
	assert.Equal(t, []string{"/d/diag", "/r/settings.yml"}, task.Command())
}
