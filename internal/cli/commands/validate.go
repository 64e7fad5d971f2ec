package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/evalstack/esmvaltool/internal/recipe"
)

// ValidateOptions holds options for the validate command.
type ValidateOptions struct {
	Watch bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <recipe>...",
		Short: "Check recipe files for configuration errors",
		Long: `Parse recipe files and report configuration errors: unknown
preprocessor operations, dangling preprocessor references, malformed
dataset selectors, missing script paths.

With --watch, the command stays running and re-validates a recipe
whenever its file changes, which is convenient while authoring.`,
		Example: `  # Validate one recipe
  esmvaltool validate recipe_python.yml

  # Validate every recipe in a directory
  esmvaltool validate recipes/*.yml

  # Re-validate on save while editing
  esmvaltool validate --watch recipe_python.yml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Watch {
				return watchRecipes(cmd, args)
			}
			return validateRecipes(cmd, args)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-validate when recipe files change")
	return cmd
}

// validateRecipes checks each recipe and reports per-file results.
// The command fails if any recipe is invalid.
func validateRecipes(cmd *cobra.Command, paths []string) error {
	r := FromCommand(cmd).Renderer

	invalid := 0
	for _, path := range paths {
		if err := validateOne(path); err != nil {
			invalid++
			r.Printf("FAIL %s\n", path)
			for _, line := range strings.Split(err.Error(), "\n") {
				r.Printf("     %s\n", line)
			}
			continue
		}
		r.Printf("OK   %s\n", path)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d recipe(s) invalid", invalid, len(paths))
	}
	return nil
}

func validateOne(path string) error {
	rec, err := recipe.Load(path)
	if err != nil {
		return err
	}
	return rec.Validate()
}

// watchRecipes re-validates recipes whenever their files change.
func watchRecipes(cmd *cobra.Command, paths []string) error {
	r := FromCommand(cmd).Renderer
	logger := FromCommand(cmd).Logger

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the parent directories: editors replace files on save,
	// which drops watches registered on the file itself.
	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	// Initial pass; in watch mode failures are reported, not fatal.
	_ = validateRecipes(cmd, paths)
	r.Printf("watching %d recipe(s)...\n", len(paths))

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !watched[abs] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := validateOne(abs); err != nil {
				r.Printf("FAIL %s\n", abs)
				for _, line := range strings.Split(err.Error(), "\n") {
					r.Printf("     %s\n", line)
				}
			} else {
				r.Printf("OK   %s\n", abs)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		}
	}
}
