// Package budget admits provider calls under per-capability rate limits and
// a campaign-wide cost ceiling. Every paid operation acquires a grant before
// calling out and releases it with the actual cost afterwards.
package budget

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/campaign-cli/internal/config"
)

// ErrBudgetExceeded is returned by Acquire when admitting the call would
// push the campaign past its cost ceiling. It is returned immediately, never
// after blocking.
var ErrBudgetExceeded = eris.New("budget: campaign cost ceiling reached")

// CostRecorder persists per-capability spend. The scheduler records every
// released grant so the ledger survives restarts.
type CostRecorder interface {
	RecordCost(ctx context.Context, campaignID, capability string, calls int, costUSD float64) error
}

// Grant is an admitted call slot. Exactly one Release per grant; extra
// releases are no-ops.
type Grant struct {
	capability string
	estCost    float64
	acquiredAt time.Time

	once sync.Once
}

// Capability returns the capability the grant was issued for.
func (g *Grant) Capability() string { return g.capability }

type capState struct {
	limiter *rate.Limiter
	sem     chan struct{}
	initial rate.Limit
	current rate.Limit
}

// Scheduler admits calls for one campaign. Per-capability pacing uses a
// token bucket plus an in-flight semaphore; the cost ceiling is shared
// across all capabilities.
type Scheduler struct {
	campaignID string
	ceiling    float64 // 0 means unlimited
	recorder   CostRecorder
	log        *zap.Logger

	mu       sync.Mutex
	spent    float64
	reserved float64
	caps     map[string]*capState
}

// NewScheduler builds a scheduler from per-capability limits. priorSpend
// seeds the spent counter when resuming a campaign.
func NewScheduler(campaignID string, ceilingUSD, priorSpendUSD float64, limits map[string]config.CapabilityLimit, recorder CostRecorder) *Scheduler {
	caps := make(map[string]*capState, len(limits))
	for name, lim := range limits {
		interval := lim.MinInterval()
		if interval <= 0 {
			interval = time.Millisecond
		}
		inFlight := lim.MaxInFlight
		if inFlight <= 0 {
			inFlight = 1
		}
		r := rate.Every(interval)
		caps[name] = &capState{
			limiter: rate.NewLimiter(r, 1),
			sem:     make(chan struct{}, inFlight),
			initial: r,
			current: r,
		}
	}

	return &Scheduler{
		campaignID: campaignID,
		ceiling:    ceilingUSD,
		recorder:   recorder,
		log:        zap.L().With(zap.String("component", "budget.scheduler"), zap.String("campaign_id", campaignID)),
		spent:      priorSpendUSD,
		caps:       caps,
	}
}

// Acquire blocks until the capability's pacing admits a call, then returns a
// grant. The cost check happens before any blocking: if the estimated cost
// cannot fit under the ceiling the call is denied right away with
// ErrBudgetExceeded so the campaign can finish cleanly.
func (s *Scheduler) Acquire(ctx context.Context, capability string, estCost float64) (*Grant, error) {
	s.mu.Lock()
	cs, ok := s.caps[capability]
	if !ok {
		s.mu.Unlock()
		return nil, eris.Errorf("budget: unknown capability %q", capability)
	}
	if s.ceiling > 0 && s.spent+s.reserved+estCost > s.ceiling {
		s.mu.Unlock()
		return nil, ErrBudgetExceeded
	}
	s.reserved += estCost
	s.mu.Unlock()

	select {
	case cs.sem <- struct{}{}:
	case <-ctx.Done():
		s.unreserve(estCost)
		return nil, eris.Wrap(ctx.Err(), "budget: acquire slot")
	}

	if err := cs.limiter.Wait(ctx); err != nil {
		<-cs.sem
		s.unreserve(estCost)
		return nil, eris.Wrap(err, "budget: wait for rate")
	}

	return &Grant{capability: capability, estCost: estCost, acquiredAt: time.Now().UTC()}, nil
}

// Release settles a grant with the actual cost of the call, frees its
// in-flight slot, and records the spend in the ledger. Safe to call more
// than once; only the first call takes effect.
func (s *Scheduler) Release(ctx context.Context, g *Grant, actualCost float64) {
	if g == nil {
		return
	}
	g.once.Do(func() {
		s.mu.Lock()
		s.reserved -= g.estCost
		if s.reserved < 0 {
			s.reserved = 0
		}
		s.spent += actualCost
		s.mu.Unlock()

		<-s.caps[g.capability].sem

		if s.recorder != nil && actualCost != 0 {
			if err := s.recorder.RecordCost(ctx, s.campaignID, g.capability, 1, actualCost); err != nil {
				s.log.Warn("failed to record cost",
					zap.String("capability", g.capability),
					zap.Error(err),
				)
			}
		}
	})
}

// Throttle halves the capability's admission rate after a provider 429.
// The rate never drops below a quarter of its configured value.
func (s *Scheduler) Throttle(capability string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.caps[capability]
	if !ok {
		return
	}
	next := cs.current / 2
	if next < cs.initial/4 {
		next = cs.initial / 4
	}
	if next != cs.current {
		cs.current = next
		cs.limiter.SetLimit(next)
		s.log.Warn("throttling capability",
			zap.String("capability", capability),
			zap.Float64("rate_per_sec", float64(next)),
		)
	}
}

// Recover nudges the capability's admission rate back up after a success,
// capped at the configured rate.
func (s *Scheduler) Recover(capability string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.caps[capability]
	if !ok || cs.current >= cs.initial {
		return
	}
	next := cs.current * 1.2
	if next > cs.initial {
		next = cs.initial
	}
	cs.current = next
	cs.limiter.SetLimit(next)
}

// Spent returns the settled spend in USD.
func (s *Scheduler) Spent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spent
}

// Remaining returns the budget headroom in USD, or -1 when unlimited.
func (s *Scheduler) Remaining() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ceiling <= 0 {
		return -1
	}
	r := s.ceiling - s.spent - s.reserved
	if r < 0 {
		r = 0
	}
	return r
}

func (s *Scheduler) unreserve(estCost float64) {
	s.mu.Lock()
	s.reserved -= estCost
	if s.reserved < 0 {
		s.reserved = 0
	}
	s.mu.Unlock()
}
