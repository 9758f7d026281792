package coverage

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/campaign-cli/internal/model"
)

// Entry is one postal-code unit in a density table.
type Entry struct {
	UnitID             string             `yaml:"unit_id"`
	Neighborhood       string             `yaml:"neighborhood"`
	Density            model.DensityClass `yaml:"density"`
	ExpectedBusinesses int                `yaml:"expected_businesses"`
	Lat                float64            `yaml:"lat"`
	Lon                float64            `yaml:"lon"`
}

// Table maps a region to its classified postal-code units. Tables are
// curated YAML files checked in alongside the binary or supplied per
// deployment.
type Table struct {
	Region string  `yaml:"region"`
	Units  []Entry `yaml:"units"`
}

// LoadTable reads and validates a density table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "coverage: read density table %s", path)
	}
	return ParseTable(data)
}

// ParseTable parses a density table from YAML bytes.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "coverage: parse density table")
	}

	seen := make(map[string]bool, len(t.Units))
	for i, e := range t.Units {
		if e.UnitID == "" {
			return nil, eris.Errorf("coverage: density table entry %d has no unit_id", i)
		}
		if seen[e.UnitID] {
			return nil, eris.Errorf("coverage: duplicate unit %s in density table", e.UnitID)
		}
		seen[e.UnitID] = true
		switch e.Density {
		case model.DensityVeryHigh, model.DensityHigh, model.DensityMedium, model.DensityLow, model.DensityUnknown, "":
		default:
			return nil, eris.Errorf("coverage: unit %s has unknown density class %q", e.UnitID, e.Density)
		}
	}

	return &t, nil
}

// SaveTable writes a density table as YAML.
func SaveTable(path string, t *Table) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "coverage: marshal density table")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "coverage: write density table %s", path)
	}
	return nil
}

// Find returns the entry for a unit ID.
func (t *Table) Find(unitID string) (Entry, bool) {
	for _, e := range t.Units {
		if e.UnitID == unitID {
			return e, true
		}
	}
	return Entry{}, false
}
