package coverage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/campaign-cli/internal/model"
)

const sampleTableYAML = `
region: Los Angeles, CA
units:
  - unit_id: "90012"
    neighborhood: Downtown LA
    density: very_high
    expected_businesses: 450
    lat: 34.0614
    lon: -118.2385
  - unit_id: "90732"
    neighborhood: San Pedro
    density: low
    expected_businesses: 150
`

func TestParseTable(t *testing.T) {
	t.Parallel()

	table, err := ParseTable([]byte(sampleTableYAML))
	require.NoError(t, err)

	assert.Equal(t, "Los Angeles, CA", table.Region)
	require.Len(t, table.Units, 2)

	e, ok := table.Find("90012")
	require.True(t, ok)
	assert.Equal(t, "Downtown LA", e.Neighborhood)
	assert.Equal(t, model.DensityVeryHigh, e.Density)
	assert.Equal(t, 450, e.ExpectedBusinesses)
	assert.InDelta(t, 34.0614, e.Lat, 0.0001)

	_, ok = table.Find("99999")
	assert.False(t, ok)
}

func TestParseTableRejectsBadEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{"missing unit_id", "units:\n  - neighborhood: Nowhere\n"},
		{"duplicate unit", "units:\n  - unit_id: \"90012\"\n  - unit_id: \"90012\"\n"},
		{"bad density", "units:\n  - unit_id: \"90012\"\n    density: extreme\n"},
		{"not yaml", "{{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseTable([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadTable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "la.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTableYAML), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)
	assert.Len(t, table.Units, 2)

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMergeCurated(t *testing.T) {
	t.Parallel()

	imported := &Table{
		Region: "Los Angeles, CA",
		Units: []Entry{
			{UnitID: "90012", Density: model.DensityUnknown, Lat: 34.06, Lon: -118.24},
			{UnitID: "90013", Density: model.DensityUnknown, Lat: 34.05, Lon: -118.24},
		},
	}
	curated := &Table{
		Region: "Los Angeles, CA",
		Units: []Entry{
			{UnitID: "90012", Neighborhood: "Downtown LA", Density: model.DensityVeryHigh, ExpectedBusinesses: 450},
			{UnitID: "90732", Neighborhood: "San Pedro", Density: model.DensityLow, ExpectedBusinesses: 150, Lat: 33.73, Lon: -118.29},
		},
	}

	merged := MergeCurated(imported, curated)
	require.Len(t, merged.Units, 3)

	e, ok := merged.Find("90012")
	require.True(t, ok)
	assert.Equal(t, model.DensityVeryHigh, e.Density)
	// Imported centroid survives when the curated entry has none.
	assert.InDelta(t, 34.06, e.Lat, 0.001)

	e, ok = merged.Find("90013")
	require.True(t, ok)
	assert.Equal(t, model.DensityUnknown, e.Density)

	_, ok = merged.Find("90732")
	assert.True(t, ok)

	assert.Same(t, imported, MergeCurated(imported, nil))
	assert.Same(t, curated, MergeCurated(nil, curated))
}
