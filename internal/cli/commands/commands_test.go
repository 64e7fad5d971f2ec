package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

const validRecipe = `documentation:
  description: Minimal map recipe.
  authors:
    - andela_bouwe

datasets:
  - {dataset: CanESM2, project: CMIP5, exp: historical, ensemble: r1i1p1}

preprocessors:
  annual_mean:
    climate_statistics:
      operator: mean

diagnostics:
  map:
    description: Climatology map.
    variables:
      tas:
        mip: Amon
        start_year: 2000
        end_year: 2005
        preprocessor: annual_mean
    scripts:
      plot:
        script: examples/diagnostic.py
`

const invalidRecipe = `documentation:
  description: Broken recipe.

preprocessors:
  annual_mean:
    climate_statistics:
      operator: mean

diagnostics:
  map:
    variables:
      tas:
        mip: Amon
        preprocessor: does_not_exist
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yml", validRecipe)
	bad := writeFile(t, dir, "bad.yml", invalidRecipe)

	t.Run("valid recipe passes", func(t *testing.T) {
		out, err := execute(t, NewValidateCommand(), good)
		if err != nil {
			t.Errorf("validate error = %v", err)
		}
		if !strings.Contains(out, "OK") {
			t.Errorf("output should contain OK, got: %s", out)
		}
	})

	t.Run("invalid recipe fails", func(t *testing.T) {
		out, err := execute(t, NewValidateCommand(), bad)
		if err == nil {
			t.Error("expected error for invalid recipe")
		}
		if !strings.Contains(out, "FAIL") {
			t.Errorf("output should contain FAIL, got: %s", out)
		}
		if !strings.Contains(out, "does_not_exist") {
			t.Errorf("output should name the dangling preprocessor, got: %s", out)
		}
	})

	t.Run("mixed batch reports both", func(t *testing.T) {
		out, err := execute(t, NewValidateCommand(), good, bad)
		if err == nil {
			t.Error("expected error when any recipe is invalid")
		}
		if !strings.Contains(err.Error(), "1 of 2") {
			t.Errorf("error should count invalid recipes, got: %v", err)
		}
		if !strings.Contains(out, "OK") || !strings.Contains(out, "FAIL") {
			t.Errorf("output should contain both OK and FAIL, got: %s", out)
		}
	})
}

func TestListCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "recipe_map.yml", validRecipe)
	writeFile(t, dir, "broken.yml", "diagnostics: [not, a, mapping]")
	writeFile(t, dir, "notes.txt", "not a recipe")

	out, err := execute(t, NewListCommand(), dir)
	if err != nil {
		t.Fatalf("list error = %v", err)
	}

	if !strings.Contains(out, "recipe_map.yml") {
		t.Errorf("output should list recipe_map.yml, got: %s", out)
	}
	if !strings.Contains(out, "broken.yml") || !strings.Contains(out, "error") {
		t.Errorf("output should list broken.yml with its error, got: %s", out)
	}
	if strings.Contains(out, "notes.txt") {
		t.Errorf("output should not list non-YAML files, got: %s", out)
	}
}

func TestListCommandEmptyDirectory(t *testing.T) {
	out, err := execute(t, NewListCommand(), t.TempDir())
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(out, "no recipes found") {
		t.Errorf("output should report no recipes, got: %s", out)
	}
}

const cmorTable = `attributes:
  dataset_id: ERA-Interim
  project_id: OBS
  tier: 3
  version: '1'
  modeling_realm: reanaly

variables:
  tas:
    mip: Amon
    raw: t2m
    file: 't2m_*.nc'
`

func TestCmorizeCommandDryRun(t *testing.T) {
	dir := t.TempDir()
	table := writeFile(t, dir, "era_interim.yml", cmorTable)
	rawDir := filepath.Join(dir, "raw")
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, rawDir, "t2m_1990.nc", "data")

	out, err := execute(t, NewCmorizeCommand(),
		"--raw-dir", rawDir, "--out-dir", filepath.Join(dir, "obs"), "--dry-run", table)
	if err != nil {
		t.Fatalf("cmorize error = %v", err)
	}
	if !strings.Contains(out, "tas") || !strings.Contains(out, "t2m_1990.nc") {
		t.Errorf("dry-run should list the match, got: %s", out)
	}
}

func TestCmorizeCommandWritesFiles(t *testing.T) {
	dir := t.TempDir()
	table := writeFile(t, dir, "era_interim.yml", cmorTable)
	rawDir := filepath.Join(dir, "raw")
	outDir := filepath.Join(dir, "obs")
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, rawDir, "t2m_1990.nc", "data")

	if _, err := execute(t, NewCmorizeCommand(),
		"--raw-dir", rawDir, "--out-dir", outDir, table); err != nil {
		t.Fatalf("cmorize error = %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(outDir, "Tier3", "ERA-Interim", "*.nc"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Errorf("expected 1 cmorized file, got %v", matches)
	}
}

func TestCmorizeCommandStrictMissingVariable(t *testing.T) {
	dir := t.TempDir()
	table := writeFile(t, dir, "era_interim.yml", cmorTable)
	rawDir := filepath.Join(dir, "raw")
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, NewCmorizeCommand(),
		"--raw-dir", rawDir, "--out-dir", filepath.Join(dir, "obs"), table); err == nil {
		t.Error("expected error when a variable matches no files")
	}

	if _, err := execute(t, NewCmorizeCommand(),
		"--raw-dir", rawDir, "--out-dir", filepath.Join(dir, "obs"), "--lenient", table); err != nil {
		t.Errorf("lenient mode should tolerate missing variables, got: %v", err)
	}
}

const condaManifest = `name: esmvaltool
channels:
  - conda-forge
dependencies:
  - python=3.11
  - iris=3.7.0
  - xarray
  - pip:
    - esmvalcore==2.10.0
`

func TestEnvCheckCommand(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "environment.yml", condaManifest)

	t.Run("valid manifest passes", func(t *testing.T) {
		out, err := execute(t, NewEnvCommand(), "check", manifest)
		if err != nil {
			t.Errorf("env check error = %v", err)
		}
		if !strings.Contains(out, "OK") {
			t.Errorf("output should contain OK, got: %s", out)
		}
	})

	t.Run("require-pins flags unpinned packages", func(t *testing.T) {
		_, err := execute(t, NewEnvCommand(), "check", "--require-pins", manifest)
		if err == nil {
			t.Error("expected error: xarray is unpinned")
		}
	})

	t.Run("duplicate dependency fails", func(t *testing.T) {
		dup := writeFile(t, dir, "dup.yml", "name: x\ndependencies:\n  - python=3.11\n  - python=3.12\n")
		out, err := execute(t, NewEnvCommand(), "check", dup)
		if err == nil {
			t.Error("expected error for duplicate dependency")
		}
		if !strings.Contains(out, "FAIL") {
			t.Errorf("output should contain FAIL, got: %s", out)
		}
	})
}

func TestEnvShowCommand(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "environment.yml", condaManifest)

	out, err := execute(t, NewEnvCommand(), "show", manifest)
	if err != nil {
		t.Fatalf("env show error = %v", err)
	}
	for _, want := range []string{"esmvaltool", "python", "3.11", "esmvalcore", "pip"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q, got: %s", want, out)
		}
	}
}

func TestJobName(t *testing.T) {
	if got := jobName("/work/recipes/recipe_python.yml"); got != "recipe_python" {
		t.Errorf("jobName = %q, want %q", got, "recipe_python")
	}
}
