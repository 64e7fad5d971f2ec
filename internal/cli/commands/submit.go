package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/evalstack/esmvaltool/internal/batch"
	"github.com/evalstack/esmvaltool/internal/cli/config"
)

// SubmitOptions holds options for the submit command.
type SubmitOptions struct {
	Template string
	Out      string
	Submit   bool
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand() *cobra.Command {
	opts := &SubmitOptions{}

	cmd := &cobra.Command{
		Use:   "submit <recipe>",
		Short: "Generate a batch submission script for a recipe",
		Long: `Render a Slurm or PBS submission script whose final line invokes
the driver on the given recipe. Scheduler resources come from the
"batch" section of the user configuration.

A custom script template can be supplied with --template; it must
contain {config} and {recipe} placeholders. By default the script is
printed to stdout; --out writes it to a file and --submit hands it to
sbatch or qsub.`,
		Example: `  esmvaltool -c config-user.yml submit recipe_python.yml
  esmvaltool -c config-user.yml submit --out job.sh recipe_python.yml
  esmvaltool -c config-user.yml submit --submit recipe_python.yml
  esmvaltool -c config-user.yml submit --template job.tmpl recipe_python.yml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitRecipe(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Template, "template", "", "Script template file with {config} and {recipe} placeholders")
	cmd.Flags().StringVar(&opts.Out, "out", "", "Write the script to this file instead of stdout")
	cmd.Flags().BoolVar(&opts.Submit, "submit", false, "Submit the script to the scheduler")
	return cmd
}

func submitRecipe(cmd *cobra.Command, recipePath string, opts *SubmitOptions) error {
	cmdCtx := FromCommand(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	recipeAbs, err := filepath.Abs(recipePath)
	if err != nil {
		return err
	}
	cfgFile := config.GetConfigFileUsed()
	if cfgFile == "" {
		return fmt.Errorf("submit requires a config file (pass one with -c)")
	}

	script, backend, err := renderScript(cfg, cfgFile, recipeAbs, opts.Template)
	if err != nil {
		return err
	}

	switch {
	case opts.Submit:
		jobID, err := batch.Submit(cmd.Context(), backend, script)
		if err != nil {
			return err
		}
		r.Printf("submitted job %s\n", jobID)
	case opts.Out != "":
		if err := os.WriteFile(opts.Out, []byte(script), 0o755); err != nil {
			return fmt.Errorf("failed to write script: %w", err)
		}
		r.Printf("wrote %s\n", opts.Out)
	default:
		r.Printf("%s", script)
	}
	return nil
}

func renderScript(cfg *config.Config, cfgFile, recipe, templatePath string) (string, batch.Backend, error) {
	backend := batch.Backend(cfg.Batch.Backend)

	if templatePath != "" {
		tmpl, err := os.ReadFile(templatePath)
		if err != nil {
			return "", backend, fmt.Errorf("failed to read template: %w", err)
		}
		script, err := batch.RenderTemplate(string(tmpl), cfgFile, recipe)
		return script, backend, err
	}

	job := batch.Job{
		Backend: backend,
		Resources: batch.Resources{
			JobName:  jobName(recipe),
			Queue:    cfg.Batch.Queue,
			Cores:    cfg.Batch.Cores,
			Memory:   cfg.Batch.Memory,
			WallTime: cfg.Batch.WallTime,
			LogDir:   cfg.Batch.LogDir,
		},
		Environment: cfg.Batch.Environment,
		Config:      cfgFile,
		Recipe:      recipe,
	}
	script, err := job.Render()
	return script, backend, err
}

func jobName(recipe string) string {
	base := filepath.Base(recipe)
	return base[:len(base)-len(filepath.Ext(base))]
}
