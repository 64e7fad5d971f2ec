package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evalstack/esmvaltool/internal/environment"
)

// NewEnvCommand creates the env command group.
func NewEnvCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Inspect conda environment manifests",
	}
	cmd.AddCommand(newEnvCheckCommand())
	cmd.AddCommand(newEnvShowCommand())
	return cmd
}

func newEnvCheckCommand() *cobra.Command {
	var requirePins bool

	cmd := &cobra.Command{
		Use:   "check <environment.yml>...",
		Short: "Validate environment manifests",
		Long: `Parse conda environment manifests and report malformed or
duplicate package constraints. With --require-pins, packages without
an explicit version are also reported, which keeps production
manifests reproducible.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := FromCommand(cmd).Renderer

			invalid := 0
			for _, path := range args {
				if err := checkManifest(path, requirePins); err != nil {
					invalid++
					r.Printf("FAIL %s: %v\n", path, err)
					continue
				}
				r.Printf("OK   %s\n", path)
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d manifest(s) invalid", invalid, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&requirePins, "require-pins", false, "Fail on dependencies without a pinned version")
	return cmd
}

func checkManifest(path string, requirePins bool) error {
	m, err := environment.Load(path)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if requirePins {
		var unpinned []string
		for _, c := range m.Dependencies {
			if !c.Pinned() {
				unpinned = append(unpinned, c.Name)
			}
		}
		for _, c := range m.Pip {
			if !c.Pinned() {
				unpinned = append(unpinned, c.Name)
			}
		}
		if len(unpinned) > 0 {
			return fmt.Errorf("unpinned dependencies: %v", unpinned)
		}
	}
	return nil
}

func newEnvShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <environment.yml>",
		Short: "Print a manifest's resolved package table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := FromCommand(cmd).Renderer

			m, err := environment.Load(args[0])
			if err != nil {
				return err
			}

			r.KeyValue("Environment", m.Name)
			r.KeyValue("Channels", fmt.Sprintf("%v", m.Channels))

			var rows [][]string
			for _, c := range m.Dependencies {
				rows = append(rows, []string{c.Name, orDash(c.Version), orDash(c.Build), "conda"})
			}
			for _, c := range m.Pip {
				rows = append(rows, []string{c.Name, orDash(c.Version), "-", "pip"})
			}
			r.Table([]string{"Package", "Version", "Build", "Source"}, rows)
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
