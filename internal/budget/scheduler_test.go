package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/campaign-cli/internal/config"
)

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recordedCost
	err     error
}

type recordedCost struct {
	campaignID string
	capability string
	calls      int
	costUSD    float64
}

func (f *fakeRecorder) RecordCost(_ context.Context, campaignID, capability string, calls int, costUSD float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, recordedCost{campaignID, capability, calls, costUSD})
	return f.err
}

func fastLimits() map[string]config.CapabilityLimit {
	return map[string]config.CapabilityLimit{
		"discovery": {MinIntervalMS: 1, MaxInFlight: 1},
		"research":  {MinIntervalMS: 1, MaxInFlight: 3},
	}
}

func TestAcquireDeniesBeforeExceedingCeiling(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	s := NewScheduler("c1", 10, 0, fastLimits(), rec)
	ctx := context.Background()

	// Ceiling 10 with per-cycle cost 3 admits exactly three cycles.
	for i := 0; i < 3; i++ {
		g, err := s.Acquire(ctx, "discovery", 3)
		require.NoError(t, err, "cycle %d", i)
		s.Release(ctx, g, 3)
	}

	_, err := s.Acquire(ctx, "discovery", 3)
	require.ErrorIs(t, err, ErrBudgetExceeded)
	assert.InDelta(t, 9, s.Spent(), 0.001)
}

func TestAcquireDenialIsImmediate(t *testing.T) {
	t.Parallel()

	s := NewScheduler("c1", 1, 0.99, map[string]config.CapabilityLimit{
		"discovery": {MinIntervalMS: 60_000, MaxInFlight: 1},
	}, nil)

	start := time.Now()
	_, err := s.Acquire(context.Background(), "discovery", 3)
	require.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAcquireCountsReservedCost(t *testing.T) {
	t.Parallel()

	s := NewScheduler("c1", 5, 0, fastLimits(), nil)
	ctx := context.Background()

	g, err := s.Acquire(ctx, "research", 3)
	require.NoError(t, err)

	// 3 reserved + 3 estimated would exceed the ceiling of 5.
	_, err = s.Acquire(ctx, "research", 3)
	require.ErrorIs(t, err, ErrBudgetExceeded)

	// Settling below the estimate frees headroom.
	s.Release(ctx, g, 1)
	g2, err := s.Acquire(ctx, "research", 3)
	require.NoError(t, err)
	s.Release(ctx, g2, 3)
}

func TestZeroCeilingIsUnlimited(t *testing.T) {
	t.Parallel()

	s := NewScheduler("c1", 0, 0, fastLimits(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		g, err := s.Acquire(ctx, "discovery", 100)
		require.NoError(t, err)
		s.Release(ctx, g, 100)
	}
	assert.InDelta(t, 500, s.Spent(), 0.001)
	assert.InDelta(t, -1, s.Remaining(), 0.001)
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	s := NewScheduler("c1", 10, 0, fastLimits(), rec)
	ctx := context.Background()

	g, err := s.Acquire(ctx, "discovery", 2)
	require.NoError(t, err)

	s.Release(ctx, g, 2)
	s.Release(ctx, g, 2)
	s.Release(ctx, nil, 2)

	assert.InDelta(t, 2, s.Spent(), 0.001)
	require.Len(t, rec.entries, 1)
	assert.Equal(t, "c1", rec.entries[0].campaignID)
	assert.Equal(t, "discovery", rec.entries[0].capability)
	assert.InDelta(t, 2, rec.entries[0].costUSD, 0.001)
}

func TestAcquireUnknownCapability(t *testing.T) {
	t.Parallel()

	s := NewScheduler("c1", 10, 0, fastLimits(), nil)
	_, err := s.Acquire(context.Background(), "teleport", 1)
	require.Error(t, err)
}

func TestAcquireRespectsMaxInFlight(t *testing.T) {
	t.Parallel()

	s := NewScheduler("c1", 0, 0, fastLimits(), nil)
	ctx := context.Background()

	// discovery has max_in_flight 1; a second acquire must block until release.
	g1, err := s.Acquire(ctx, "discovery", 0)
	require.NoError(t, err)

	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(blocked, "discovery", 0)
	require.Error(t, err)

	s.Release(ctx, g1, 0)
	g2, err := s.Acquire(ctx, "discovery", 0)
	require.NoError(t, err)
	s.Release(ctx, g2, 0)
}

func TestAcquireCancelledContextReleasesReservation(t *testing.T) {
	t.Parallel()

	s := NewScheduler("c1", 10, 0, fastLimits(), nil)
	ctx := context.Background()

	g1, err := s.Acquire(ctx, "discovery", 4)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Acquire(cancelled, "discovery", 4)
	require.Error(t, err)

	s.Release(ctx, g1, 4)

	// The failed acquire must not leave 4 USD reserved.
	g2, err := s.Acquire(ctx, "discovery", 4)
	require.NoError(t, err)
	s.Release(ctx, g2, 4)
}

func TestThrottleAndRecover(t *testing.T) {
	t.Parallel()

	s := NewScheduler("c1", 0, 0, map[string]config.CapabilityLimit{
		"research": {MinIntervalMS: 100, MaxInFlight: 1},
	}, nil)

	cs := s.caps["research"]
	initial := cs.current

	s.Throttle("research")
	assert.InDelta(t, float64(initial)/2, float64(cs.current), 0.0001)

	// Floor at a quarter of the configured rate.
	for i := 0; i < 10; i++ {
		s.Throttle("research")
	}
	assert.InDelta(t, float64(initial)/4, float64(cs.current), 0.0001)

	for i := 0; i < 50; i++ {
		s.Recover("research")
	}
	assert.InDelta(t, float64(initial), float64(cs.current), 0.0001)

	// Unknown capabilities are ignored.
	s.Throttle("bogus")
	s.Recover("bogus")
}

func TestPriorSpendSeedsCeiling(t *testing.T) {
	t.Parallel()

	s := NewScheduler("c1", 10, 9, fastLimits(), nil)

	_, err := s.Acquire(context.Background(), "discovery", 3)
	require.ErrorIs(t, err, ErrBudgetExceeded)
	assert.InDelta(t, 1, s.Remaining(), 0.001)
}
