// Package campaign drives campaigns through their coverage plan: discovery
// per unit, per-lead enrichment under the budget scheduler, durable
// checkpoints, and heartbeats. One engine serves many campaigns but runs
// each campaign's drive loop on a single goroutine.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/campaign-cli/internal/budget"
	"github.com/sells-group/campaign-cli/internal/config"
	"github.com/sells-group/campaign-cli/internal/cost"
	"github.com/sells-group/campaign-cli/internal/coverage"
	"github.com/sells-group/campaign-cli/internal/enrich"
	"github.com/sells-group/campaign-cli/internal/model"
	"github.com/sells-group/campaign-cli/internal/resilience"
	"github.com/sells-group/campaign-cli/internal/store"
)

// errInfra marks store failures, which fail the campaign rather than a
// single lead.
var errInfra = eris.New("campaign: infrastructure failure")

// TableSource resolves a region to its density table.
type TableSource interface {
	TableFor(region string) (*coverage.Table, error)
}

// Options wires the engine's collaborators.
type Options struct {
	Store      store.Store
	Tables     TableSource
	Discovery  enrich.DiscoveryProvider
	Stages     []enrich.Stage
	Estimator  *cost.Estimator
	Limits     map[string]config.CapabilityLimit
	Engine     config.EngineConfig
	Coverage   config.CoverageConfig
	MaxPerUnit int
}

// Engine executes campaigns.
type Engine struct {
	store      store.Store
	tables     TableSource
	discovery  enrich.DiscoveryProvider
	stages     []enrich.Stage
	est        *cost.Estimator
	limits     map[string]config.CapabilityLimit
	cfg        config.EngineConfig
	covCfg     config.CoverageConfig
	maxPerUnit int
	log        *zap.Logger

	mu     sync.Mutex
	active map[string]*run
}

// run tracks control signals for one executing campaign.
type run struct {
	cancel          context.CancelFunc
	pauseRequested  atomic.Bool
	cancelRequested atomic.Bool
}

// NewEngine creates an Engine from its options.
func NewEngine(opts Options) *Engine {
	cfg := opts.Engine
	if cfg.WorkersPerUnit <= 0 {
		cfg.WorkersPerUnit = 3
	}
	if cfg.HeartbeatSecs <= 0 {
		cfg.HeartbeatSecs = 60
	}
	if cfg.MaxResultsPerPage <= 0 {
		cfg.MaxResultsPerPage = 200
	}
	est := opts.Estimator
	if est == nil {
		est = cost.NewEstimator(cost.DefaultRates())
	}
	maxPerUnit := opts.MaxPerUnit
	if maxPerUnit <= 0 {
		maxPerUnit = 200
	}

	return &Engine{
		store:      opts.Store,
		tables:     opts.Tables,
		discovery:  opts.Discovery,
		stages:     opts.Stages,
		est:        est,
		limits:     opts.Limits,
		cfg:        cfg,
		covCfg:     opts.Coverage,
		maxPerUnit: maxPerUnit,
		log:        zap.L().With(zap.String("component", "campaign.engine")),
		active:     make(map[string]*run),
	}
}

// CreateRequest describes a new campaign.
type CreateRequest struct {
	Name           string   `json:"name"`
	Location       string   `json:"location"`
	Keywords       []string `json:"keywords"`
	CostCeilingUSD float64  `json:"cost_ceiling_usd"`
}

// Create plans the campaign's coverage eagerly and persists it in pending
// state. An unplannable region fails creation; nothing is persisted.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*model.Campaign, error) {
	if req.Name == "" {
		return nil, eris.New("campaign: name is required")
	}
	if req.Location == "" {
		return nil, eris.New("campaign: location is required")
	}
	if len(req.Keywords) == 0 {
		return nil, eris.New("campaign: at least one keyword is required")
	}
	if req.CostCeilingUSD < 0 {
		return nil, eris.New("campaign: cost ceiling must not be negative")
	}

	plan, err := e.planFor(req.Location, req.Keywords)
	if err != nil {
		return nil, err
	}

	c := &model.Campaign{
		ID:             uuid.New().String(),
		Name:           req.Name,
		Location:       req.Location,
		Keywords:       req.Keywords,
		Status:         model.CampaignStatusPending,
		CostCeilingUSD: req.CostCeilingUSD,
		UnitsPlanned:   plan.Len(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.store.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}

	e.log.Info("campaign created",
		zap.String("campaign_id", c.ID),
		zap.String("location", c.Location),
		zap.Int("units_planned", c.UnitsPlanned),
		zap.Float64("estimated_cost_usd", e.est.CampaignEstimate(plan.ExpectedTotal())),
	)
	return c, nil
}

// planFor rebuilds the deterministic coverage plan for a location. The plan
// is a pure function of the density table, so it is recomputed on every
// start instead of persisted.
func (e *Engine) planFor(location string, keywords []string) (*coverage.Plan, error) {
	table, err := e.tables.TableFor(location)
	if err != nil {
		return nil, err
	}
	if table == nil {
		// No density table covers this location. A single-unit fallback
		// plan still lets the campaign run against the whole region.
		return coverage.FallbackPlan(location, keywords), nil
	}
	plan, err := coverage.NewPlan(location, keywords, table)
	if err != nil {
		return nil, err
	}
	if e.covCfg.ThinBySpacing {
		plan.ThinBySpacing(e.covCfg.MinSpacingKM)
	}
	return plan, nil
}

// Start executes a pending campaign. It blocks until the campaign reaches a
// terminal status, pauses, or ctx is cancelled (which pauses it).
func (e *Engine) Start(ctx context.Context, id string) error {
	return e.execute(ctx, id, model.CampaignStatusPending)
}

// Resume continues a paused campaign from its checkpoint.
func (e *Engine) Resume(ctx context.Context, id string) error {
	return e.execute(ctx, id, model.CampaignStatusPaused)
}

func (e *Engine) execute(ctx context.Context, id string, from model.CampaignStatus) error {
	c, err := e.store.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != from {
		return eris.Errorf("campaign: %s is %s, expected %s", id, c.Status, from)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := &run{cancel: cancel}

	e.mu.Lock()
	if _, exists := e.active[id]; exists {
		e.mu.Unlock()
		return eris.Errorf("campaign: %s is already executing", id)
	}
	e.active[id] = r
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, id)
		e.mu.Unlock()
	}()

	return e.drive(runCtx, c, r)
}

// Pause requests a pause at the next item boundary. Pausing a campaign that
// is not executing in this process flips its stored status directly.
func (e *Engine) Pause(ctx context.Context, id string) error {
	e.mu.Lock()
	r, ok := e.active[id]
	e.mu.Unlock()
	if ok {
		r.pauseRequested.Store(true)
		return nil
	}

	c, err := e.store.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != model.CampaignStatusRunning {
		return eris.Errorf("campaign: %s is %s, cannot pause", id, c.Status)
	}
	return e.store.UpdateCampaignStatus(ctx, id, model.CampaignStatusPaused, "")
}

// Cancel stops the campaign permanently. In-flight work is interrupted;
// everything persisted so far is kept. A cancelled campaign lands in
// failed status with a cancelled reason.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	e.mu.Lock()
	r, ok := e.active[id]
	e.mu.Unlock()
	if ok {
		r.cancelRequested.Store(true)
		r.cancel()
		return nil
	}

	c, err := e.store.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if c.Status.Terminal() {
		return eris.Errorf("campaign: %s is already %s", id, c.Status)
	}
	return e.store.UpdateCampaignStatus(ctx, id, model.CampaignStatusFailed, model.ReasonCancelled)
}

// StatusReport bundles a campaign with its checkpoint and cost ledger.
type StatusReport struct {
	Campaign   model.Campaign      `json:"campaign"`
	Checkpoint *model.Checkpoint   `json:"checkpoint,omitempty"`
	Ledger     []model.LedgerEntry `json:"ledger,omitempty"`
}

// Status returns the campaign's current state.
func (e *Engine) Status(ctx context.Context, id string) (*StatusReport, error) {
	c, err := e.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	cp, err := e.store.ReadCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	ledger, err := e.store.ReadLedger(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StatusReport{Campaign: *c, Checkpoint: cp, Ledger: ledger}, nil
}

// Results pages through a campaign's leads. The limit is clamped to the
// configured page cap and the offset to non-negative.
func (e *Engine) Results(ctx context.Context, id string, filter store.LeadFilter) ([]model.Lead, error) {
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit <= 0 || filter.Limit > e.cfg.MaxResultsPerPage {
		filter.Limit = e.cfg.MaxResultsPerPage
	}
	if _, err := e.store.GetCampaign(ctx, id); err != nil {
		return nil, err
	}
	return e.store.ListLeads(ctx, id, filter)
}

// unit outcomes from processUnit.
type unitOutcome int

const (
	unitOK unitOutcome = iota
	unitBudget
	unitInfra
	unitInterrupted
)

func (e *Engine) drive(ctx context.Context, c *model.Campaign, r *run) error {
	log := e.log.With(zap.String("campaign_id", c.ID))

	now := time.Now().UTC()
	c.Status = model.CampaignStatusRunning
	if c.StartedAt == nil {
		c.StartedAt = &now
	}
	c.HeartbeatAt = &now
	if err := e.store.UpdateCampaign(ctx, c); err != nil {
		return eris.Wrap(err, "campaign: mark running")
	}

	stopHeartbeat := e.startHeartbeat(ctx, c.ID)
	defer stopHeartbeat()

	plan, err := e.planFor(c.Location, c.Keywords)
	if err != nil {
		// The table was valid at creation. Losing it mid-flight is an
		// infrastructure problem, not a planning one.
		return e.finish(ctx, c, nil, model.CampaignStatusFailed, model.ReasonInfrastructureError, err)
	}

	cp, err := e.store.ReadCheckpoint(ctx, c.ID)
	if err != nil {
		return e.finish(ctx, c, nil, model.CampaignStatusFailed, model.ReasonInfrastructureError, err)
	}
	unitsDone := 0
	if cp != nil {
		unitsDone = cp.UnitsDone
		plan.Resume(cp.LastUnitID)
		log.Info("resuming from checkpoint",
			zap.Int("units_done", cp.UnitsDone),
			zap.String("last_unit", cp.LastUnitID),
		)
	}

	sched := budget.NewScheduler(c.ID, c.CostCeilingUSD, c.CostSpentUSD, e.limits, e.store)

	for {
		if r.cancelRequested.Load() {
			return e.finish(ctx, c, sched, model.CampaignStatusFailed, model.ReasonCancelled, nil)
		}
		if r.pauseRequested.Load() || ctx.Err() != nil {
			return e.pauseOut(ctx, c, sched)
		}

		unit, ok := plan.Next()
		if !ok {
			break
		}

		log.Info("processing unit",
			zap.String("unit_id", unit.UnitID),
			zap.String("density", string(unit.Density)),
			zap.Int("rank", unit.Rank),
		)

		outcome := e.processUnit(ctx, c, r, sched, unit)
		switch outcome {
		case unitBudget:
			e.checkpoint(ctx, c, unitsDone, cpLastUnit(cp))
			return e.finish(ctx, c, sched, model.CampaignStatusCompleted, model.ReasonBudgetExhausted, nil)
		case unitInfra:
			return e.finish(ctx, c, sched, model.CampaignStatusFailed, model.ReasonInfrastructureError, nil)
		case unitInterrupted:
			if r.cancelRequested.Load() {
				return e.finish(ctx, c, sched, model.CampaignStatusFailed, model.ReasonCancelled, nil)
			}
			return e.pauseOut(ctx, c, sched)
		}

		unitsDone++
		cp = &model.Checkpoint{CampaignID: c.ID, UnitsDone: unitsDone, LastUnitID: unit.UnitID}
		e.checkpoint(ctx, c, unitsDone, unit.UnitID)

		c.UnitsProcessed = unitsDone
		c.CostSpentUSD = sched.Spent()
		if err := e.store.UpdateCampaign(ctx, c); err != nil {
			return e.finish(ctx, c, sched, model.CampaignStatusFailed, model.ReasonInfrastructureError, err)
		}
	}

	return e.finish(ctx, c, sched, model.CampaignStatusCompleted, "", nil)
}

func cpLastUnit(cp *model.Checkpoint) string {
	if cp == nil {
		return ""
	}
	return cp.LastUnitID
}

// processUnit discovers one unit's businesses and enriches them.
func (e *Engine) processUnit(ctx context.Context, c *model.Campaign, r *run, sched *budget.Scheduler, unit model.CoverageUnit) unitOutcome {
	log := e.log.With(zap.String("campaign_id", c.ID), zap.String("unit_id", unit.UnitID))

	leads, outcome := e.discoverUnit(ctx, c, sched, unit, log)
	if outcome != unitOK {
		return outcome
	}

	// Deterministic item order so a paused campaign resumes where it left off.
	sort.Slice(leads, func(i, j int) bool { return leads[i].PlaceID < leads[j].PlaceID })

	var budgetHit, infraHit, interrupted atomic.Bool

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.WorkersPerUnit)

	for i := range leads {
		lead := &leads[i]
		g.Go(func() error {
			if budgetHit.Load() || infraHit.Load() || interrupted.Load() {
				return nil
			}
			if r.pauseRequested.Load() || r.cancelRequested.Load() || gCtx.Err() != nil {
				interrupted.Store(true)
				return nil
			}

			err := e.processLead(gCtx, sched, lead)
			switch {
			case err == nil:
			case errors.Is(err, budget.ErrBudgetExceeded):
				budgetHit.Store(true)
			case errors.Is(err, errInfra):
				infraHit.Store(true)
				log.Error("store failure while enriching lead",
					zap.String("place_id", lead.PlaceID),
					zap.Error(err),
				)
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				interrupted.Store(true)
			default:
				// Contained: the lead keeps its last persisted stage.
				log.Warn("lead enrichment incomplete",
					zap.String("place_id", lead.PlaceID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case infraHit.Load():
		return unitInfra
	case budgetHit.Load():
		return unitBudget
	case interrupted.Load():
		return unitInterrupted
	}
	return unitOK
}

// discoverUnit runs the discovery capability for one unit and persists the
// filtered batch. Previously persisted leads keep their enrichment progress.
func (e *Engine) discoverUnit(ctx context.Context, c *model.Campaign, sched *budget.Scheduler, unit model.CoverageUnit, log *zap.Logger) ([]model.Lead, unitOutcome) {
	estCost := e.est.Items(enrich.CapDiscovery, unit.ExpectedBusinesses)

	grant, err := sched.Acquire(ctx, enrich.CapDiscovery, estCost)
	if err != nil {
		if errors.Is(err, budget.ErrBudgetExceeded) {
			return nil, unitBudget
		}
		return nil, unitInterrupted
	}

	raw, err := e.discovery.Discover(ctx, enrich.DiscoveryQuery{
		Location:   c.Location,
		UnitID:     unit.UnitID,
		Keywords:   c.Keywords,
		MaxResults: e.maxPerUnit,
	})
	if err != nil {
		sched.Release(ctx, grant, 0)
		if resilience.IsThrottled(err) {
			sched.Throttle(enrich.CapDiscovery)
		}
		if ctx.Err() != nil {
			return nil, unitInterrupted
		}
		// Unit skipped. The campaign moves on; a later resume does not
		// revisit it, matching the forward-only checkpoint contract.
		log.Warn("discovery failed, skipping unit", zap.Error(err))
		return nil, unitOK
	}
	sched.Release(ctx, grant, e.est.Items(enrich.CapDiscovery, len(raw)))
	sched.Recover(enrich.CapDiscovery)

	batch := enrich.FilterAndDedup(raw)
	log.Info("unit discovered",
		zap.Int("raw", len(raw)),
		zap.Int("kept", len(batch)),
	)

	now := time.Now().UTC()
	workset := make([]model.Lead, 0, len(batch))
	for i := range batch {
		lead := batch[i]
		lead.CampaignID = c.ID
		lead.UnitID = unit.UnitID
		lead.Stage = model.StageDiscovered

		existing, err := e.store.GetLead(ctx, c.ID, lead.PlaceID)
		switch {
		case err == nil:
			// Replayed unit: keep the persisted record and its progress.
			workset = append(workset, *existing)
			continue
		case !errors.Is(err, store.ErrNotFound):
			return nil, unitInfra
		}

		if lead.ID == "" {
			lead.ID = uuid.New().String()
		}
		lead.CreatedAt = now
		lead.UpdatedAt = now
		if err := e.store.UpsertLead(ctx, &lead); err != nil {
			return nil, unitInfra
		}
		c.LeadsFound++
		workset = append(workset, lead)
	}

	return workset, unitOK
}

// processLead advances one lead through the remaining stages, persisting
// after each. A panicking stage fails the lead, never the campaign.
func (e *Engine) processLead(ctx context.Context, sched *budget.Scheduler, lead *model.Lead) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			lead.Fail(model.FailureStagePanic, fmt.Sprintf("%v", rec))
			if perr := e.store.UpsertLead(context.WithoutCancel(ctx), lead); perr != nil {
				err = eris.Wrap(errInfra, perr.Error())
				return
			}
			err = nil
		}
	}()

	// Admit the whole remaining cycle up front. Denying before the first
	// paid call keeps a lead from being admitted for a stage it can afford
	// and then stranded mid-cycle by the ceiling.
	var cycleCost float64
	for _, stage := range e.stages {
		if !lead.Stage.AtOrPast(stage.Target()) {
			cycleCost += e.est.PerItem(stage.Capability())
		}
	}
	if rem := sched.Remaining(); rem >= 0 && cycleCost > rem {
		return budget.ErrBudgetExceeded
	}

	for _, stage := range e.stages {
		if lead.Stage == model.StageFailed {
			return nil
		}
		if lead.Stage.AtOrPast(stage.Target()) {
			continue
		}

		capability := stage.Capability()
		grant, err := sched.Acquire(ctx, capability, e.est.PerItem(capability))
		if err != nil {
			return err
		}

		runErr := stage.Run(ctx, lead)

		actual := e.est.PerItem(capability)
		if runErr != nil && lead.Stage != stage.Target() && lead.Stage != model.StageFailed {
			actual = 0
		}
		// Spend and stage progress for a completed call stay durable even
		// when a cancel lands while the call is in flight.
		durableCtx := context.WithoutCancel(ctx)
		sched.Release(durableCtx, grant, actual)

		if runErr != nil {
			if resilience.IsThrottled(runErr) {
				// Retries are already exhausted inside the stage. The lead
				// fails for this stage; the campaign keeps going at a
				// reduced admission rate.
				sched.Throttle(capability)
				lead.Fail(model.FailureProviderThrottled, runErr.Error())
				if perr := e.store.UpsertLead(durableCtx, lead); perr != nil {
					return eris.Wrap(errInfra, perr.Error())
				}
				return eris.Wrapf(runErr, "campaign: %s throttled", stage.Name())
			}
			return runErr
		}
		sched.Recover(capability)

		if perr := e.store.UpsertLead(durableCtx, lead); perr != nil {
			return eris.Wrap(errInfra, perr.Error())
		}
	}
	return nil
}

func (e *Engine) checkpoint(ctx context.Context, c *model.Campaign, unitsDone int, lastUnitID string) {
	err := e.store.WriteCheckpoint(context.WithoutCancel(ctx), model.Checkpoint{
		CampaignID: c.ID,
		UnitsDone:  unitsDone,
		LastUnitID: lastUnitID,
	})
	if err != nil {
		e.log.Warn("checkpoint write failed",
			zap.String("campaign_id", c.ID),
			zap.Error(err),
		)
	}
}

// pauseOut and finish refresh the campaign's spend from the scheduler
// before writing. Mid-unit interruptions would otherwise write the spend
// from the last unit boundary, rolling the durable total backwards under
// the ledger the scheduler already recorded.
func (e *Engine) pauseOut(ctx context.Context, c *model.Campaign, sched *budget.Scheduler) error {
	c.Status = model.CampaignStatusPaused
	c.CostSpentUSD = sched.Spent()
	if err := e.store.UpdateCampaign(context.WithoutCancel(ctx), c); err != nil {
		return eris.Wrap(err, "campaign: mark paused")
	}
	e.log.Info("campaign paused", zap.String("campaign_id", c.ID))
	return nil
}

func (e *Engine) finish(ctx context.Context, c *model.Campaign, sched *budget.Scheduler, status model.CampaignStatus, reason string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	c.Status = status
	c.CompletionReason = reason
	c.CompletedAt = &now
	if sched != nil {
		c.CostSpentUSD = sched.Spent()
	}

	if err := e.store.UpdateCampaign(ctx, c); err != nil {
		return eris.Wrap(err, "campaign: mark finished")
	}

	e.log.Info("campaign finished",
		zap.String("campaign_id", c.ID),
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.Int("units_processed", c.UnitsProcessed),
		zap.Int("leads_found", c.LeadsFound),
		zap.Float64("cost_spent_usd", c.CostSpentUSD),
	)
	return cause
}

// startHeartbeat touches the campaign's heartbeat column on a fixed period
// until the returned stop function is called. A missed heartbeat lets an
// operator spot a wedged campaign.
func (e *Engine) startHeartbeat(ctx context.Context, id string) func() {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(e.cfg.HeartbeatInterval())
		defer ticker.Stop()
		hbCtx := context.WithoutCancel(ctx)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := e.store.TouchHeartbeat(hbCtx, id); err != nil {
					e.log.Warn("heartbeat failed",
						zap.String("campaign_id", id),
						zap.Error(err),
					)
				}
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}
