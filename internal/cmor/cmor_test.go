package cmor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTable(t *testing.T) *Table {
	t.Helper()
	table, err := Load(filepath.Join("testdata", "era_interim.yml"))
	require.NoError(t, err)
	return table
}

func TestLoadTable(t *testing.T) {
	table := loadTable(t)

	assert.Equal(t, "ERA-Interim", table.Attributes.DatasetID)
	assert.Equal(t, "OBS6", table.Attributes.ProjectID)
	assert.Equal(t, 3, table.Attributes.Tier)
	assert.Equal(t, "reanaly", table.Attributes.ModelingRealm)

	require.Contains(t, table.Variables, "tas")
	assert.Equal(t, "t2m", table.Variables["tas"].Raw)
	assert.Equal(t, "Amon", table.Variables["tas"].Mip)
	assert.Equal(t, []string{"pr", "psl", "tas"}, table.VariableNames())

	require.NoError(t, table.Validate())
}

func TestParseRejectsDuplicateVariables(t *testing.T) {
	doc := `
attributes:
  dataset_id: X
  tier: 2
variables:
  tas:
    mip: Amon
    file: 'a_*.nc'
  tas:
    mip: Amon
    file: 'b_*.nc'
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate variable "tas"`)
}

func TestRawDefaultsToShortName(t *testing.T) {
	doc := `
attributes:
  dataset_id: X
  tier: 2
variables:
  tas:
    mip: Amon
    file: 'tas_*.nc'
`
	table, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "tas", table.Variables["tas"].Raw)
}

func TestValidateCollectsErrors(t *testing.T) {
	table := &Table{
		Variables: map[string]Entry{
			"tas": {Mip: "Amon", File: ""},
			"pr":  {File: "pr_*.nc"},
		},
	}
	err := table.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "missing dataset_id")
	assert.Contains(t, msg, "missing tier")
	assert.Contains(t, msg, `variable "tas": empty file glob`)
	assert.Contains(t, msg, `variable "pr": missing mip`)
}

func writeRawFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("netcdf"), 0640))
	}
	return dir
}

func TestResolve(t *testing.T) {
	table := loadTable(t)
	rawDir := writeRawFiles(t,
		"ERA-Interim_t2m_monthly_197901-198912.nc",
		"ERA-Interim_t2m_monthly_199001-199912.nc",
		"ERA-Interim_tp_monthly_197901-199912.nc",
	)

	matches, err := table.Resolve(rawDir, false)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	byShort := map[string]Match{}
	for _, m := range matches {
		byShort[m.ShortName] = m
	}
	assert.Len(t, byShort["tas"].Files, 2)
	assert.Len(t, byShort["pr"].Files, 1)

	// psl has no files; strict resolution reports it.
	_, err = table.Resolve(rawDir, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMatch))
	assert.Contains(t, err.Error(), `variable "psl"`)
}

func TestResolveOne(t *testing.T) {
	table := loadTable(t)
	rawDir := writeRawFiles(t,
		"ERA-Interim_tp_monthly_197901-199912.nc",
		"ERA-Interim_t2m_monthly_197901-198912.nc",
		"ERA-Interim_t2m_monthly_199001-199912.nc",
	)

	file, err := table.ResolveOne(rawDir, "pr")
	require.NoError(t, err)
	assert.Contains(t, file, "ERA-Interim_tp_monthly")

	_, err = table.ResolveOne(rawDir, "tas")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous glob")

	_, err = table.ResolveOne(rawDir, "psl")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMatch))

	_, err = table.ResolveOne(rawDir, "tos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in table")
}

func TestCmorize(t *testing.T) {
	table := loadTable(t)
	rawDir := writeRawFiles(t,
		"ERA-Interim_t2m_monthly_197901-198912.nc",
		"ERA-Interim_t2m_monthly_199001-199912.nc",
		"ERA-Interim_tp_monthly_197901-199912.nc",
	)
	outDir := t.TempDir()

	written, err := table.Cmorize(rawDir, outDir, false, false)
	require.NoError(t, err)
	require.Len(t, written, 3)

	destDir := filepath.Join(outDir, "Tier3", "ERA-Interim")
	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.FileExists(t, filepath.Join(destDir, "OBS6_ERA-Interim_reanaly_1_Amon_tas_197901-198912.nc"))
	assert.FileExists(t, filepath.Join(destDir, "OBS6_ERA-Interim_reanaly_1_Amon_tas_199001-199912.nc"))
	assert.FileExists(t, filepath.Join(destDir, "OBS6_ERA-Interim_reanaly_1_Amon_pr_197901-199912.nc"))
}

func TestCmorizeSymlink(t *testing.T) {
	table := loadTable(t)
	rawDir := writeRawFiles(t, "ERA-Interim_tp_monthly_197901-199912.nc")
	outDir := t.TempDir()

	written, err := table.Cmorize(rawDir, outDir, false, true)
	require.NoError(t, err)
	require.Len(t, written, 1)

	info, err := os.Lstat(written[0])
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
}
