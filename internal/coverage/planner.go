// Package coverage plans the geographic units a campaign will work through.
// A plan ranks postal-code units by expected business yield so the highest
// value areas are scraped first, and can be resumed after a checkpoint.
package coverage

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/campaign-cli/internal/model"
)

// ErrInvalidRegion is returned when the density table has no entries for the
// requested region. Callers should fall back to FallbackPlan rather than abort.
var ErrInvalidRegion = eris.New("coverage: region has no density entries")

// defaultExpected maps density classes to an expected business count used
// when a table entry carries no estimate.
var defaultExpected = map[model.DensityClass]int{
	model.DensityVeryHigh: 400,
	model.DensityHigh:     300,
	model.DensityMedium:   200,
	model.DensityLow:      100,
	model.DensityUnknown:  250,
}

// DefaultExpected returns the fallback business-count estimate for a density class.
func DefaultExpected(d model.DensityClass) int {
	if n, ok := defaultExpected[d]; ok {
		return n
	}
	return defaultExpected[model.DensityUnknown]
}

// Plan is an ordered, resumable sequence of coverage units for one campaign.
// Ordering is deterministic: expected businesses descending, unit ID
// ascending on ties.
type Plan struct {
	region   string
	keywords []string
	units    []model.CoverageUnit
	pos      int
}

// NewPlan ranks the region's density-table entries into a coverage plan.
// It is a pure function of the table: no network or database access.
func NewPlan(region string, keywords []string, table *Table) (*Plan, error) {
	if table == nil || len(table.Units) == 0 {
		return nil, ErrInvalidRegion
	}

	units := make([]model.CoverageUnit, 0, len(table.Units))
	for _, e := range table.Units {
		u := model.CoverageUnit{
			UnitID:             e.UnitID,
			Neighborhood:       e.Neighborhood,
			Density:            e.Density,
			ExpectedBusinesses: e.ExpectedBusinesses,
			Lat:                e.Lat,
			Lon:                e.Lon,
		}
		if u.Density == "" {
			u.Density = model.DensityUnknown
		}
		if u.ExpectedBusinesses <= 0 {
			u.ExpectedBusinesses = DefaultExpected(u.Density)
		}
		units = append(units, u)
	}

	sort.SliceStable(units, func(i, j int) bool {
		if units[i].ExpectedBusinesses != units[j].ExpectedBusinesses {
			return units[i].ExpectedBusinesses > units[j].ExpectedBusinesses
		}
		return units[i].UnitID < units[j].UnitID
	})
	for i := range units {
		units[i].Rank = i + 1
	}

	return &Plan{region: region, keywords: keywords, units: units}, nil
}

// FallbackPlan returns a single-unit plan of unknown density for regions
// absent from the density table.
func FallbackPlan(region string, keywords []string) *Plan {
	return &Plan{
		region:   region,
		keywords: keywords,
		units: []model.CoverageUnit{{
			UnitID:             region,
			Density:            model.DensityUnknown,
			ExpectedBusinesses: DefaultExpected(model.DensityUnknown),
			Rank:               1,
		}},
	}
}

// Region returns the plan's target region.
func (p *Plan) Region() string { return p.region }

// Keywords returns the campaign keywords the plan was built for.
func (p *Plan) Keywords() []string { return p.keywords }

// Units returns the full ranked unit sequence.
func (p *Plan) Units() []model.CoverageUnit { return p.units }

// Len returns the total number of planned units.
func (p *Plan) Len() int { return len(p.units) }

// Remaining returns the number of units not yet yielded.
func (p *Plan) Remaining() int { return len(p.units) - p.pos }

// Next yields the next coverage unit in rank order. The second return is
// false once the plan is exhausted.
func (p *Plan) Next() (model.CoverageUnit, bool) {
	if p.pos >= len(p.units) {
		return model.CoverageUnit{}, false
	}
	u := p.units[p.pos]
	p.pos++
	return u, true
}

// Resume positions the plan just after the given unit, so Next returns the
// unit that follows it. An empty or unknown unit ID restarts from the top.
func (p *Plan) Resume(afterUnitID string) {
	p.pos = 0
	if afterUnitID == "" {
		return
	}
	for i, u := range p.units {
		if u.UnitID == afterUnitID {
			p.pos = i + 1
			return
		}
	}
}

// ExpectedTotal sums the expected business counts over the whole plan.
func (p *Plan) ExpectedTotal() int {
	total := 0
	for _, u := range p.units {
		total += u.ExpectedBusinesses
	}
	return total
}
