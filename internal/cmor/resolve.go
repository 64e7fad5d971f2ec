package cmor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// ErrNoMatch reports a variable whose file glob matched nothing.
var ErrNoMatch = errors.New("no files match")

// Match is the result of resolving one table entry against a raw data
// directory.
type Match struct {
	ShortName string
	Entry     Entry
	Files     []string
}

// VariableNames returns the standard variable names, sorted.
func (t *Table) VariableNames() []string {
	names := make([]string, 0, len(t.Variables))
	for name := range t.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve expands every entry's glob against rawDir, mapping raw files
// into the standard variable namespace. With strict set, a variable
// matching no files is an error; otherwise it is skipped.
func (t *Table) Resolve(rawDir string, strict bool) ([]Match, error) {
	var matches []Match
	var errs []error
	for _, short := range t.VariableNames() {
		entry := t.Variables[short]
		files, err := filepath.Glob(filepath.Join(rawDir, entry.File))
		if err != nil {
			errs = append(errs, fmt.Errorf("variable %q: bad glob %q: %w", short, entry.File, err))
			continue
		}
		if len(files) == 0 {
			if strict {
				errs = append(errs, fmt.Errorf("variable %q: %w glob %q in %s", short, ErrNoMatch, entry.File, rawDir))
			}
			continue
		}
		sort.Strings(files)
		matches = append(matches, Match{ShortName: short, Entry: entry, Files: files})
	}
	return matches, joinErrors(errs)
}

// ResolveOne resolves a single variable expecting exactly one file.
// More than one match is ambiguous and reported as an error.
func (t *Table) ResolveOne(rawDir, short string) (string, error) {
	entry, ok := t.Variables[short]
	if !ok {
		return "", fmt.Errorf("variable %q not in table", short)
	}
	files, err := filepath.Glob(filepath.Join(rawDir, entry.File))
	if err != nil {
		return "", fmt.Errorf("variable %q: bad glob %q: %w", short, entry.File, err)
	}
	switch len(files) {
	case 0:
		return "", fmt.Errorf("variable %q: %w glob %q in %s", short, ErrNoMatch, entry.File, rawDir)
	case 1:
		return files[0], nil
	}
	sort.Strings(files)
	return "", fmt.Errorf("variable %q: ambiguous glob %q matches %d files", short, entry.File, len(files))
}

// periodPattern extracts a date or date-range segment from a raw
// filename, e.g. 197901, 1979-2019 or 197901_201912.
var periodPattern = regexp.MustCompile(`\d{4,8}[-_]\d{4,8}|\d{6,8}`)

// Cmorize materializes the standard layout for the table under outDir:
// Tier<t>/<dataset>/<project>_<dataset>_<realm>_<version>_<mip>_<short>[_<period>].nc,
// one link per matched raw file. With link set files are symlinked,
// otherwise copied.
func (t *Table) Cmorize(rawDir, outDir string, strict, link bool) ([]string, error) {
	matches, err := t.Resolve(rawDir, strict)
	if err != nil {
		return nil, err
	}

	destDir := filepath.Join(outDir, fmt.Sprintf("Tier%d", t.Attributes.Tier), t.Attributes.DatasetID)
	if err := os.MkdirAll(destDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written []string
	for _, m := range matches {
		for i, src := range m.Files {
			dest := filepath.Join(destDir, t.standardName(m, src, i, len(m.Files)))
			if err := materialize(src, dest, link); err != nil {
				return written, fmt.Errorf("variable %q: %w", m.ShortName, err)
			}
			written = append(written, dest)
		}
	}
	return written, nil
}

// standardName builds the standardized filename for one raw file,
// keeping the source file's date segment when one is present so
// multi-chunk variables stay distinguishable.
func (t *Table) standardName(m Match, src string, index, total int) string {
	base := fmt.Sprintf("%s_%s_%s_%s_%s_%s",
		t.Attributes.ProjectID, t.Attributes.DatasetID, t.Attributes.ModelingRealm,
		t.Attributes.Version, m.Entry.Mip, m.ShortName)
	if period := periodPattern.FindString(filepath.Base(src)); period != "" {
		return base + "_" + period + ".nc"
	}
	if total > 1 {
		return fmt.Sprintf("%s_%d.nc", base, index+1)
	}
	return base + ".nc"
}

func materialize(src, dest string, link bool) error {
	if _, err := os.Lstat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return fmt.Errorf("failed to replace %s: %w", dest, err)
		}
	}
	if link {
		abs, err := filepath.Abs(src)
		if err != nil {
			return err
		}
		if err := os.Symlink(abs, dest); err != nil {
			return fmt.Errorf("failed to link %s: %w", dest, err)
		}
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := os.WriteFile(dest, data, 0640); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
