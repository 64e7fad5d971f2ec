package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/evalstack/esmvaltool/internal/preproc"
	"github.com/evalstack/esmvaltool/internal/recipe"
)

// Task is one unit of work in a run.
type Task interface {
	// ID uniquely identifies the task within the run.
	ID() string
	// Run executes the task. Output files land under the run's
	// directory tree.
	Run(ctx context.Context) error
}

// PreprocTask plans the preprocessing of one variable of one dataset.
// It records the resolved input files and the ordered operations in a
// settings document the preprocessing worker consumes.
type PreprocTask struct {
	Diagnostic string
	Variable   *recipe.Variable
	Dataset    recipe.Dataset
	Pipeline   preproc.Pipeline
	Files      []string

	// OutputFile is the planned preprocessing product.
	OutputFile string
	// SettingsFile is where the task writes its plan.
	SettingsFile string
}

// ID implements Task.
func (t *PreprocTask) ID() string {
	return fmt.Sprintf("%s/%s/%s", t.Diagnostic, t.Variable.ShortName, datasetStem(t.Dataset, t.Variable.ShortName))
}

// preprocStepDoc keeps operation order in the serialized plan; a
// mapping would shuffle it.
type preprocStepDoc struct {
	Operation string         `yaml:"operation"`
	Args      map[string]any `yaml:"args,omitempty"`
}

type preprocSettingsDoc struct {
	Diagnostic string           `yaml:"diagnostic"`
	Variable   string           `yaml:"variable"`
	Mip        string           `yaml:"mip"`
	Dataset    string           `yaml:"dataset"`
	Project    string           `yaml:"project"`
	StartYear  int              `yaml:"start_year"`
	EndYear    int              `yaml:"end_year"`
	InputFiles []string         `yaml:"input_files"`
	Steps      []preprocStepDoc `yaml:"steps"`
	OutputFile string           `yaml:"output_file"`
}

// Run writes the preprocessing plan.
func (t *PreprocTask) Run(_ context.Context) error {
	doc := preprocSettingsDoc{
		Diagnostic: t.Diagnostic,
		Variable:   t.Variable.ShortName,
		Mip:        t.Dataset.Mip,
		Dataset:    t.Dataset.Dataset,
		Project:    t.Dataset.Project,
		StartYear:  t.Dataset.StartYear,
		EndYear:    t.Dataset.EndYear,
		InputFiles: t.Files,
		OutputFile: t.OutputFile,
	}
	for _, step := range t.Pipeline.Steps {
		doc.Steps = append(doc.Steps, preprocStepDoc{Operation: step.Name, Args: step.Args})
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize preprocessing plan: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(t.SettingsFile), 0750); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}
	if err := os.WriteFile(t.SettingsFile, data, 0640); err != nil {
		return fmt.Errorf("failed to write preprocessing plan: %w", err)
	}
	return nil
}

// ScriptTask invokes one diagnostic script with a settings file.
type ScriptTask struct {
	Diagnostic string
	Script     *recipe.Script

	// ScriptPath is the resolved executable script.
	ScriptPath string
	// InputDirs lists the preprocessing product directories the
	// script reads.
	InputDirs []string

	SettingsFile string
	WorkDir      string
	PlotDir      string
	RunDir       string
	LogFile      string

	AuxiliaryDataDir string
	LogLevel         string
}

// ID implements Task.
func (t *ScriptTask) ID() string {
	return fmt.Sprintf("%s/%s", t.Diagnostic, t.Script.Name)
}

type scriptSettingsDoc struct {
	Diagnostic       string         `yaml:"diagnostic"`
	Script           string         `yaml:"script"`
	InputDirs        []string       `yaml:"input_dirs"`
	WorkDir          string         `yaml:"work_dir"`
	PlotDir          string         `yaml:"plot_dir"`
	RunDir           string         `yaml:"run_dir"`
	AuxiliaryDataDir string         `yaml:"auxiliary_data_dir,omitempty"`
	LogLevel         string         `yaml:"log_level,omitempty"`
	Settings         map[string]any `yaml:"settings,omitempty"`
}

// interpreters maps script extensions to their runtimes.
var interpreters = map[string]string{
	".py":  "python",
	".r":   "Rscript",
	".ncl": "ncl",
	".jl":  "julia",
	".sh":  "bash",
}

// Command builds the script invocation: interpreter (by extension),
// script path, settings file path.
func (t *ScriptTask) Command() []string {
	ext := strings.ToLower(filepath.Ext(t.ScriptPath))
	if interp, ok := interpreters[ext]; ok {
		return []string{interp, t.ScriptPath, t.SettingsFile}
	}
	return []string{t.ScriptPath, t.SettingsFile}
}

// Run writes the settings file and executes the script, teeing its
// output to the task log.
func (t *ScriptTask) Run(ctx context.Context) error {
	for _, dir := range []string{t.WorkDir, t.PlotDir, t.RunDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create task directory: %w", err)
		}
	}

	doc := scriptSettingsDoc{
		Diagnostic:       t.Diagnostic,
		Script:           t.Script.Name,
		InputDirs:        t.InputDirs,
		WorkDir:          t.WorkDir,
		PlotDir:          t.PlotDir,
		RunDir:           t.RunDir,
		AuxiliaryDataDir: t.AuxiliaryDataDir,
		LogLevel:         t.LogLevel,
		Settings:         t.Script.Settings,
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize script settings: %w", err)
	}
	if err := os.WriteFile(t.SettingsFile, data, 0640); err != nil {
		return fmt.Errorf("failed to write script settings: %w", err)
	}

	logFile, err := os.Create(t.LogFile)
	if err != nil {
		return fmt.Errorf("failed to create task log: %w", err)
	}
	defer logFile.Close()

	argv := t.Command()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = t.RunDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(),
		"ESMVALTOOL_SETTINGS="+t.SettingsFile,
		"ESMVALTOOL_WORK_DIR="+t.WorkDir,
		"ESMVALTOOL_PLOT_DIR="+t.PlotDir,
	)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("script %s failed: %w%s", filepath.Base(t.ScriptPath), err, logTail(t.LogFile))
	}
	return nil
}

// logTail returns the last part of a task log for error messages.
func logTail(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	const tailSize = 2048
	if info, err := f.Stat(); err == nil && info.Size() > tailSize {
		if _, err := f.Seek(-tailSize, io.SeekEnd); err != nil {
			return ""
		}
	}
	data, err := io.ReadAll(f)
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return ""
	}
	return "\n" + strings.TrimSpace(string(data))
}

// resolveScript finds a script on disk: absolute paths must exist,
// relative paths are searched under the configured script roots.
func resolveScript(path string, roots []string) (string, error) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("script %s not found: %w", path, err)
		}
		return path, nil
	}
	for _, root := range roots {
		candidate := filepath.Join(root, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("script %s not found in %v", path, roots)
}
