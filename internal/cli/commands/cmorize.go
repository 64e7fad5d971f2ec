package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/evalstack/esmvaltool/internal/cmor"
)

// CmorizeOptions holds options for the cmorize command.
type CmorizeOptions struct {
	RawDir  string
	OutDir  string
	Link    bool
	Lenient bool
	DryRun  bool
}

// NewCmorizeCommand creates the cmorize command.
func NewCmorizeCommand() *cobra.Command {
	opts := &CmorizeOptions{}

	cmd := &cobra.Command{
		Use:   "cmorize <table>",
		Short: "Rename raw observational files per a CMOR table",
		Long: `Read a CMORization table, match its file globs against a raw data
directory, and materialize the matches under standard names in a
tiered output layout. Files are copied by default; --link creates
symlinks instead.

By default every table variable must resolve to at least one raw
file; --lenient downgrades missing variables to warnings.`,
		Example: `  esmvaltool cmorize --raw-dir /raw/ERA-Interim --out-dir /obs cmor/era_interim.yml
  esmvaltool cmorize --raw-dir /raw/ERA-Interim --out-dir /obs --link --dry-run cmor/era_interim.yml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmorize(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.RawDir, "raw-dir", "", "Directory holding the raw source files (required)")
	cmd.Flags().StringVar(&opts.OutDir, "out-dir", "", "Directory to write cmorized output under (required)")
	cmd.Flags().BoolVar(&opts.Link, "link", false, "Symlink instead of copying")
	cmd.Flags().BoolVar(&opts.Lenient, "lenient", false, "Warn instead of failing on variables with no matching files")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report matches without writing anything")
	_ = cmd.MarkFlagRequired("raw-dir")
	_ = cmd.MarkFlagRequired("out-dir")
	return cmd
}

func cmorize(cmd *cobra.Command, tablePath string, opts *CmorizeOptions) error {
	cmdCtx := FromCommand(cmd)
	r := cmdCtx.Renderer
	logger := cmdCtx.Logger

	tbl, err := cmor.Load(tablePath)
	if err != nil {
		return err
	}
	if err := tbl.Validate(); err != nil {
		return fmt.Errorf("CMOR table %s: %w", tablePath, err)
	}

	strict := !opts.Lenient

	if opts.DryRun {
		matches, err := tbl.Resolve(opts.RawDir, strict)
		if err != nil {
			return err
		}
		var rows [][]string
		for _, m := range matches {
			for _, file := range m.Files {
				rows = append(rows, []string{m.ShortName, m.Entry.Raw, filepath.Base(file)})
			}
		}
		r.Table([]string{"Variable", "Raw", "File"}, rows)
		return nil
	}

	written, err := tbl.Cmorize(opts.RawDir, opts.OutDir, strict, opts.Link)
	if err != nil {
		return err
	}

	logger.Info("cmorization finished",
		"dataset", tbl.Attributes.DatasetID,
		"tier", tbl.Attributes.Tier,
		"files", len(written))
	r.Printf("cmorized %d file(s) into %s\n", len(written), opts.OutDir)
	return nil
}
