// Package batch renders cluster job-submission scripts for recipe
// runs and hands them to the queue's submit command. A script reserves
// resources through scheduler directives, activates the runtime
// environment, and invokes the driver once.
package batch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Backend identifies the batch-queue dialect.
type Backend string

const (
	// Slurm renders #SBATCH directives, submitted via sbatch.
	Slurm Backend = "slurm"
	// PBS renders #PBS directives, submitted via qsub.
	PBS Backend = "pbs"
)

// Resources is the static reservation requested from the scheduler.
type Resources struct {
	JobName  string
	Queue    string
	Cores    int
	Memory   string // e.g. "64G"
	WallTime string // e.g. "08:00:00"
	LogDir   string
}

// Job describes one driver invocation to schedule.
type Job struct {
	Backend     Backend
	Resources   Resources
	Environment string // conda environment to activate
	Config      string // driver configuration file path
	Recipe      string // recipe file path
}

// CommandLine returns the driver invocation for a config and recipe
// pair. This is the final line of every rendered script.
func CommandLine(config, recipe string) string {
	return fmt.Sprintf("esmvaltool -c %q %q --skip-nonexistent", config, recipe)
}

// Render produces the submission script for the job.
func (j Job) Render() (string, error) {
	if j.Config == "" {
		return "", fmt.Errorf("job has no config file")
	}
	if j.Recipe == "" {
		return "", fmt.Errorf("job has no recipe file")
	}

	var buf bytes.Buffer
	buf.WriteString("#!/bin/bash -l\n")

	switch j.Backend {
	case Slurm, "":
		j.writeSlurmDirectives(&buf)
	case PBS:
		j.writePBSDirectives(&buf)
	default:
		return "", fmt.Errorf("unknown batch backend %q", j.Backend)
	}

	buf.WriteString("\nset -eo pipefail\n")
	if j.Environment != "" {
		fmt.Fprintf(&buf, "conda activate %s\n", j.Environment)
	}
	buf.WriteString("\n")
	buf.WriteString(CommandLine(j.Config, j.Recipe))
	buf.WriteString("\n")
	return buf.String(), nil
}

func (j Job) writeSlurmDirectives(buf *bytes.Buffer) {
	r := j.Resources
	if r.JobName != "" {
		fmt.Fprintf(buf, "#SBATCH --job-name=%s\n", r.JobName)
	}
	if r.Queue != "" {
		fmt.Fprintf(buf, "#SBATCH --partition=%s\n", r.Queue)
	}
	if r.Cores > 0 {
		fmt.Fprintf(buf, "#SBATCH --ntasks=%d\n", r.Cores)
	}
	if r.Memory != "" {
		fmt.Fprintf(buf, "#SBATCH --mem=%s\n", r.Memory)
	}
	if r.WallTime != "" {
		fmt.Fprintf(buf, "#SBATCH --time=%s\n", r.WallTime)
	}
	if r.LogDir != "" {
		fmt.Fprintf(buf, "#SBATCH --output=%s/%%x.%%j.out\n", r.LogDir)
		fmt.Fprintf(buf, "#SBATCH --error=%s/%%x.%%j.err\n", r.LogDir)
	}
}

func (j Job) writePBSDirectives(buf *bytes.Buffer) {
	r := j.Resources
	if r.JobName != "" {
		fmt.Fprintf(buf, "#PBS -N %s\n", r.JobName)
	}
	if r.Queue != "" {
		fmt.Fprintf(buf, "#PBS -q %s\n", r.Queue)
	}
	if r.Cores > 0 {
		fmt.Fprintf(buf, "#PBS -l nodes=1:ppn=%d\n", r.Cores)
	}
	if r.Memory != "" {
		fmt.Fprintf(buf, "#PBS -l mem=%s\n", r.Memory)
	}
	if r.WallTime != "" {
		fmt.Fprintf(buf, "#PBS -l walltime=%s\n", r.WallTime)
	}
	if r.LogDir != "" {
		fmt.Fprintf(buf, "#PBS -o %s\n", r.LogDir)
		fmt.Fprintf(buf, "#PBS -e %s\n", r.LogDir)
	}
}

// RenderTemplate substitutes the {config} and {recipe} placeholders
// into a user-supplied script template. Both placeholders must be
// consumed; a template without them would submit a job that ignores
// its arguments.
func RenderTemplate(template, config, recipe string) (string, error) {
	if !strings.Contains(template, "{config}") {
		return "", fmt.Errorf("template has no {config} placeholder")
	}
	if !strings.Contains(template, "{recipe}") {
		return "", fmt.Errorf("template has no {recipe} placeholder")
	}
	out := strings.ReplaceAll(template, "{config}", config)
	out = strings.ReplaceAll(out, "{recipe}", recipe)
	return out, nil
}

// submitCommands maps backends to their queue submit command.
var submitCommands = map[Backend]string{
	Slurm: "sbatch",
	"":    "sbatch",
	PBS:   "qsub",
}

// Submit pipes the rendered script to the backend's submit command and
// returns the scheduler's response (typically the job id line).
func Submit(ctx context.Context, backend Backend, script string) (string, error) {
	name, ok := submitCommands[backend]
	if !ok {
		return "", fmt.Errorf("unknown batch backend %q", backend)
	}

	cmd := exec.CommandContext(ctx, name)
	cmd.Stdin = strings.NewReader(script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}
