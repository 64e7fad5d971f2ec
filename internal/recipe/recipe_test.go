package recipe

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/evalstack/esmvaltool/internal/preproc"
)

func loadExample(t *testing.T) *Recipe {
	t.Helper()
	r, err := Load(filepath.Join("testdata", "recipe_example.yml"))
	require.NoError(t, err)
	return r
}

func TestLoadExampleRecipe(t *testing.T) {
	r := loadExample(t)

	assert.Contains(t, r.Documentation.Description, "air temperature")
	assert.Equal(t, []string{"andela_bouwe", "righi_mattia"}, r.Documentation.Authors)
	require.Len(t, r.Datasets, 3)

	obs := r.Datasets[2]
	assert.Equal(t, "ERA-Interim", obs.Dataset)
	assert.Equal(t, "OBS", obs.Project)
	assert.Equal(t, 3, obs.Tier)
	assert.Equal(t, FlexScalar("1"), obs.Version)

	require.Contains(t, r.Diagnostics, "map")
	diag := r.Diagnostics["map"]
	assert.Equal(t, "map", diag.Name)
	assert.Equal(t, []string{"pr", "tas"}, diag.VariableNames())

	script := diag.Scripts["script1"]
	require.NotNil(t, script)
	assert.Equal(t, "examples/diagnostic_map.py", script.Path)
	assert.Equal(t, map[string]any{"quickplot": map[string]any{"plot_type": "pcolormesh"}}, script.Settings)
}

func TestAliasedVariableEqualsAnchor(t *testing.T) {
	r := loadExample(t)

	diag := r.Diagnostics["map"]
	tas := diag.Variables["tas"]
	pr := diag.Variables["pr"]
	require.NotNil(t, tas)
	require.NotNil(t, pr)

	// The pr spec is declared as an alias of the tas anchor; after
	// resolution both must match field for field.
	assert.Equal(t, tas.Mip, pr.Mip)
	assert.Equal(t, tas.StartYear, pr.StartYear)
	assert.Equal(t, tas.EndYear, pr.EndYear)
	assert.Equal(t, tas.Preprocessor, pr.Preprocessor)

	assert.Equal(t, "tas", tas.ShortName)
	assert.Equal(t, "pr", pr.ShortName)
}

func TestPreprocessorOrderRoundTrip(t *testing.T) {
	r := loadExample(t)

	annual := r.Preprocessors["annual_mean_map"]
	require.Equal(t, []string{"regrid", "mask_landsea", "climate_statistics"}, annual.Names())

	out, err := yaml.Marshal(r.Preprocessors)
	require.NoError(t, err)

	var back preproc.Pipelines
	require.NoError(t, yaml.Unmarshal(out, &back))
	for name, p := range r.Preprocessors {
		assert.Equal(t, p.Names(), back[name].Names(), "pipeline %s", name)
	}
}

func TestParseRejectsUnknownSection(t *testing.T) {
	_, err := Parse([]byte("diagnostic:\n  foo: {}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown top-level section")
}

func TestScriptAncestors(t *testing.T) {
	r := loadExample(t)

	report := r.Diagnostics["timeseries"].Scripts["report"]
	require.NotNil(t, report)
	assert.Equal(t, []string{"plot"}, report.Ancestors)
	assert.Empty(t, report.Settings)
}

func TestDatasetsForMergesAndFills(t *testing.T) {
	r := loadExample(t)

	diag := r.Diagnostics["map"]
	v := diag.Variables["tas"]
	datasets := r.DatasetsFor(diag, v)
	require.Len(t, datasets, 3)
	for _, d := range datasets {
		assert.Equal(t, "Amon", d.Mip)
		assert.Equal(t, 2000, d.StartYear)
		assert.Equal(t, 2002, d.EndYear)
	}
	// Source selectors stay untouched.
	assert.Empty(t, r.Datasets[0].Mip)
}

func TestPipelineLookup(t *testing.T) {
	r := loadExample(t)

	_, ok := r.Pipeline("annual_mean_map")
	assert.True(t, ok)

	p, ok := r.Pipeline(preproc.DefaultPipeline)
	assert.True(t, ok)
	assert.Empty(t, p.Steps)

	_, ok = r.Pipeline("nope")
	assert.False(t, ok)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read recipe")
}

func TestScriptUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "non-string script path",
			doc:     "script: 42\n",
			wantErr: "script path must be a string",
		},
		{
			name:    "non-list ancestors",
			doc:     "script: a.py\nancestors: plot\n",
			wantErr: "ancestors must be a list",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Script
			err := yaml.Unmarshal([]byte(tt.doc), &s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
