// Package datafinder locates the input files for a dataset selector.
// Projects lay out their archives differently, so each project carries
// a DRS: directory and filename templates with bracketed facet
// placeholders that are substituted from the selector before globbing.
package datafinder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/evalstack/esmvaltool/internal/recipe"
)

// ErrNoFiles reports a selector for which no input files were found.
var ErrNoFiles = errors.New("no input files found")

// DRS holds the path templates for one project's archive layout.
type DRS struct {
	InputDir  string `koanf:"input_dir" yaml:"input_dir"`
	InputFile string `koanf:"input_file" yaml:"input_file"`
}

// DefaultDRS returns the built-in layouts. The OBS filename layout
// mirrors what cmorization produces, so cmorized archives resolve
// without extra configuration.
func DefaultDRS() map[string]DRS {
	return map[string]DRS{
		"default": {
			InputDir:  "[project]/[dataset]",
			InputFile: "[short_name]_[mip]_[dataset]_[exp]_[ensemble]*.nc",
		},
		"CMIP5": {
			InputDir:  "[project]/[dataset]/[exp]",
			InputFile: "[short_name]_[mip]_[dataset]_[exp]_[ensemble]*.nc",
		},
		"OBS": {
			InputDir:  "Tier[tier]/[dataset]",
			InputFile: "[project]_[dataset]_[type]_[version]_[mip]_[short_name]*.nc",
		},
	}
}

// Finder resolves dataset selectors to files on disk.
type Finder struct {
	rootpaths map[string][]string
	drs       map[string]DRS
	logger    *slog.Logger
}

// New creates a Finder. rootpaths maps project names to archive roots,
// with a "default" entry as fallback; drs entries missing for a
// project fall back to the built-in layouts.
func New(rootpaths map[string][]string, drs map[string]DRS, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	merged := DefaultDRS()
	for project, d := range drs {
		merged[project] = d
	}
	return &Finder{rootpaths: rootpaths, drs: merged, logger: logger}
}

// facetPattern matches a bracketed placeholder like [short_name].
var facetPattern = regexp.MustCompile(`\[([a-z_]+)\]`)

// Facets builds the substitution map for a selector and variable name.
func Facets(d recipe.Dataset, short string) map[string]string {
	facets := map[string]string{
		"dataset":    d.Dataset,
		"project":    d.Project,
		"exp":        d.Exp,
		"ensemble":   d.Ensemble,
		"mip":        d.Mip,
		"grid":       d.Grid,
		"type":       d.Type,
		"version":    string(d.Version),
		"short_name": short,
	}
	if d.Tier != 0 {
		facets["tier"] = strconv.Itoa(d.Tier)
	}
	return facets
}

// Substitute replaces every bracketed facet in the template. All
// placeholders must resolve: a leftover bracket would leak into the
// glob and silently match nothing.
func Substitute(template string, facets map[string]string) (string, error) {
	var missing []string
	out := facetPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if v := facets[name]; v != "" {
			return v
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved facets %v in template %q", missing, template)
	}
	return out, nil
}

// Find returns the input files for a selector and variable, restricted
// to the files whose filename period intersects the selector's year
// range. Searches every configured root for the project, first match
// wins.
func (f *Finder) Find(d recipe.Dataset, short string) ([]string, error) {
	drs, ok := f.drs[d.Project]
	if !ok {
		drs = f.drs["default"]
	}
	facets := Facets(d, short)

	dir, err := Substitute(drs.InputDir, facets)
	if err != nil {
		return nil, err
	}
	file, err := Substitute(drs.InputFile, facets)
	if err != nil {
		return nil, err
	}

	for _, root := range f.roots(d.Project) {
		pattern := filepath.Join(root, dir, file)
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad glob %q: %w", pattern, err)
		}
		if len(files) == 0 {
			continue
		}
		sort.Strings(files)
		selected := selectPeriod(files, d.StartYear, d.EndYear)
		if len(selected) == 0 {
			f.logger.Debug("files found but none intersect requested years",
				"dataset", d.Dataset, "variable", short,
				"start_year", d.StartYear, "end_year", d.EndYear)
			continue
		}
		return selected, nil
	}

	return nil, fmt.Errorf("%w for %s/%s variable %s (years %d-%d)",
		ErrNoFiles, d.Project, d.Dataset, short, d.StartYear, d.EndYear)
}

func (f *Finder) roots(project string) []string {
	if roots, ok := f.rootpaths[project]; ok && len(roots) > 0 {
		return roots
	}
	return f.rootpaths["default"]
}

// periodPattern matches the date-range segment of an input filename,
// e.g. 185001-200512, 1960_1969 or 197901-199912.
var periodPattern = regexp.MustCompile(`(\d{4})(\d{2})?(\d{2})?[-_](\d{4})(\d{2})?(\d{2})?(?:\.nc)?$`)

// filePeriod extracts the start and end year of a file's period
// segment. Files without a recognizable period are assumed to cover
// everything.
func filePeriod(path string) (int, int, bool) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m := periodPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[4])
	return start, end, true
}

// selectPeriod keeps the files whose period intersects [start, end].
// A zero start or end disables the corresponding bound.
func selectPeriod(files []string, start, end int) []string {
	var out []string
	for _, path := range files {
		fStart, fEnd, ok := filePeriod(path)
		if !ok {
			out = append(out, path)
			continue
		}
		if start != 0 && fEnd < start {
			continue
		}
		if end != 0 && fStart > end {
			continue
		}
		out = append(out, path)
	}
	return out
}
