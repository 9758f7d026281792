package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/campaign-cli/internal/model"
)

func TestNewPlanOrdersByExpectedBusinesses(t *testing.T) {
	t.Parallel()

	table := &Table{
		Region: "Los Angeles, CA",
		Units: []Entry{
			{UnitID: "B", Density: model.DensityLow, ExpectedBusinesses: 150},
			{UnitID: "A", Density: model.DensityVeryHigh, ExpectedBusinesses: 450},
		},
	}

	plan, err := NewPlan("Los Angeles, CA", []string{"plumber"}, table)
	require.NoError(t, err)

	units := plan.Units()
	require.Len(t, units, 2)
	assert.Equal(t, "A", units[0].UnitID)
	assert.Equal(t, "B", units[1].UnitID)
	assert.Equal(t, 1, units[0].Rank)
	assert.Equal(t, 2, units[1].Rank)
}

func TestNewPlanBreaksTiesByUnitID(t *testing.T) {
	t.Parallel()

	table := &Table{
		Units: []Entry{
			{UnitID: "90210", Density: model.DensityHigh, ExpectedBusinesses: 300},
			{UnitID: "90012", Density: model.DensityHigh, ExpectedBusinesses: 300},
			{UnitID: "90401", Density: model.DensityHigh, ExpectedBusinesses: 300},
		},
	}

	plan, err := NewPlan("Los Angeles, CA", nil, table)
	require.NoError(t, err)

	var ids []string
	for _, u := range plan.Units() {
		ids = append(ids, u.UnitID)
	}
	assert.Equal(t, []string{"90012", "90210", "90401"}, ids)
}

func TestNewPlanIsDeterministic(t *testing.T) {
	t.Parallel()

	table := &Table{
		Units: []Entry{
			{UnitID: "90012", Density: model.DensityVeryHigh, ExpectedBusinesses: 450},
			{UnitID: "90046", Density: model.DensityHigh, ExpectedBusinesses: 320},
			{UnitID: "90732", Density: model.DensityLow, ExpectedBusinesses: 150},
			{UnitID: "90272", Density: model.DensityMedium},
		},
	}

	first, err := NewPlan("Los Angeles, CA", nil, table)
	require.NoError(t, err)
	second, err := NewPlan("Los Angeles, CA", nil, table)
	require.NoError(t, err)

	assert.Equal(t, first.Units(), second.Units())
}

func TestNewPlanFillsDefaults(t *testing.T) {
	t.Parallel()

	table := &Table{
		Units: []Entry{
			{UnitID: "90272", Density: model.DensityMedium},
			{UnitID: "90011"},
		},
	}

	plan, err := NewPlan("Los Angeles, CA", nil, table)
	require.NoError(t, err)

	byID := make(map[string]model.CoverageUnit)
	for _, u := range plan.Units() {
		byID[u.UnitID] = u
	}
	assert.Equal(t, DefaultExpected(model.DensityMedium), byID["90272"].ExpectedBusinesses)
	assert.Equal(t, model.DensityUnknown, byID["90011"].Density)
	assert.Equal(t, DefaultExpected(model.DensityUnknown), byID["90011"].ExpectedBusinesses)
}

func TestNewPlanEmptyTable(t *testing.T) {
	t.Parallel()

	_, err := NewPlan("Nowhere, KS", nil, &Table{})
	require.ErrorIs(t, err, ErrInvalidRegion)

	_, err = NewPlan("Nowhere, KS", nil, nil)
	require.ErrorIs(t, err, ErrInvalidRegion)
}

func TestFallbackPlan(t *testing.T) {
	t.Parallel()

	plan := FallbackPlan("Fresno, CA", []string{"roofer"})

	require.Equal(t, 1, plan.Len())
	u, ok := plan.Next()
	require.True(t, ok)
	assert.Equal(t, "Fresno, CA", u.UnitID)
	assert.Equal(t, model.DensityUnknown, u.Density)

	_, ok = plan.Next()
	assert.False(t, ok)
}

func TestPlanNextAndResume(t *testing.T) {
	t.Parallel()

	table := &Table{
		Units: []Entry{
			{UnitID: "A", ExpectedBusinesses: 300},
			{UnitID: "B", ExpectedBusinesses: 200},
			{UnitID: "C", ExpectedBusinesses: 100},
		},
	}
	plan, err := NewPlan("r", nil, table)
	require.NoError(t, err)

	u, ok := plan.Next()
	require.True(t, ok)
	assert.Equal(t, "A", u.UnitID)
	assert.Equal(t, 2, plan.Remaining())

	plan.Resume("B")
	u, ok = plan.Next()
	require.True(t, ok)
	assert.Equal(t, "C", u.UnitID)

	_, ok = plan.Next()
	assert.False(t, ok)

	// Unknown unit restarts from the top.
	plan.Resume("missing")
	u, ok = plan.Next()
	require.True(t, ok)
	assert.Equal(t, "A", u.UnitID)
}

func TestThinBySpacingDropsCloseUnits(t *testing.T) {
	t.Parallel()

	// Two downtown units ~0.5km apart, one ~20km away.
	table := &Table{
		Units: []Entry{
			{UnitID: "90012", Density: model.DensityVeryHigh, ExpectedBusinesses: 450, Lat: 34.0614, Lon: -118.2385},
			{UnitID: "90013", Density: model.DensityVeryHigh, ExpectedBusinesses: 400, Lat: 34.0575, Lon: -118.2420},
			{UnitID: "90401", Density: model.DensityVeryHigh, ExpectedBusinesses: 350, Lat: 34.0144, Lon: -118.4920},
		},
	}
	plan, err := NewPlan("Los Angeles, CA", nil, table)
	require.NoError(t, err)

	plan.ThinBySpacing(0)

	var ids []string
	for _, u := range plan.Units() {
		ids = append(ids, u.UnitID)
	}
	assert.Equal(t, []string{"90012", "90401"}, ids)
	assert.Equal(t, 1, plan.Units()[0].Rank)
	assert.Equal(t, 2, plan.Units()[1].Rank)
}

func TestThinBySpacingKeepsUnitsWithoutCoordinates(t *testing.T) {
	t.Parallel()

	table := &Table{
		Units: []Entry{
			{UnitID: "A", ExpectedBusinesses: 300},
			{UnitID: "B", ExpectedBusinesses: 200},
		},
	}
	plan, err := NewPlan("r", nil, table)
	require.NoError(t, err)

	plan.ThinBySpacing(50)
	assert.Equal(t, 2, plan.Len())
}

func TestSpacingFor(t *testing.T) {
	t.Parallel()

	assert.Less(t, SpacingFor(model.DensityVeryHigh), SpacingFor(model.DensityLow))
	assert.Equal(t, SpacingFor(model.DensityUnknown), SpacingFor("bogus"))
}

func TestDistanceKM(t *testing.T) {
	t.Parallel()

	// Downtown LA to Santa Monica is roughly 23km.
	a := model.CoverageUnit{Lat: 34.0614, Lon: -118.2385}
	b := model.CoverageUnit{Lat: 34.0144, Lon: -118.4920}
	d := distanceKM(a, b)
	assert.InDelta(t, 23.9, d, 1.5)

	assert.Zero(t, distanceKM(a, a))
}

func TestExpectedTotal(t *testing.T) {
	t.Parallel()

	table := &Table{
		Units: []Entry{
			{UnitID: "A", ExpectedBusinesses: 450},
			{UnitID: "B", ExpectedBusinesses: 150},
		},
	}
	plan, err := NewPlan("r", nil, table)
	require.NoError(t, err)

	assert.Equal(t, 600, plan.ExpectedTotal())
}
