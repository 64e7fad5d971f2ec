package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evalstack/esmvaltool/internal/recipe"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [directory]",
		Short: "List recipes in a directory",
		Long: `Scan a directory for recipe files (*.yml, *.yaml) and print a
summary table with each recipe's diagnostics and variables. Recipes
that fail to parse are listed with the parse error instead.

Defaults to the current directory when no argument is given.`,
		Example: `  esmvaltool list
  esmvaltool list recipes/`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return listRecipes(cmd, dir)
		},
	}
}

type recipeRow struct {
	Name        string
	Description string
	Diagnostics int
	Variables   int
	Err         error
}

func listRecipes(cmd *cobra.Command, dir string) error {
	r := FromCommand(cmd).Renderer

	rows, err := scanRecipes(dir)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		r.Printf("no recipes found in %s\n", dir)
		return nil
	}

	table := [][]string{}
	for _, row := range rows {
		if row.Err != nil {
			table = append(table, []string{row.Name, "error: " + firstLine(row.Err.Error()), "-", "-"})
			continue
		}
		table = append(table, []string{
			row.Name,
			row.Description,
			fmt.Sprintf("%d", row.Diagnostics),
			fmt.Sprintf("%d", row.Variables),
		})
	}
	r.Table([]string{"Recipe", "Description", "Diagnostics", "Variables"}, table)
	return nil
}

// scanRecipes parses every YAML file in dir that looks like a recipe.
func scanRecipes(dir string) ([]recipeRow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var rows []recipeRow
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		rec, err := recipe.Load(path)
		if err != nil {
			rows = append(rows, recipeRow{Name: entry.Name(), Err: err})
			continue
		}

		variables := 0
		for _, name := range rec.DiagnosticNames() {
			variables += len(rec.Diagnostics[name].Variables)
		}
		rows = append(rows, recipeRow{
			Name:        entry.Name(),
			Description: firstLine(strings.TrimSpace(rec.Documentation.Description)),
			Diagnostics: len(rec.Diagnostics),
			Variables:   variables,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
