package model

import "time"

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// Terminal reports whether the status accepts no further transitions.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusFailed
}

// Completion reasons recorded alongside terminal statuses.
const (
	ReasonBudgetExhausted     = "budget_exhausted"
	ReasonCancelled           = "cancelled"
	ReasonInfrastructureError = "infrastructure_error"
)

// Campaign represents one lead-generation campaign over a target location.
type Campaign struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Location         string         `json:"location"`
	Keywords         []string       `json:"keywords"`
	Status           CampaignStatus `json:"status"`
	CompletionReason string         `json:"completion_reason,omitempty"`
	CostCeilingUSD   float64        `json:"cost_ceiling_usd"`
	CostSpentUSD     float64        `json:"cost_spent_usd"`
	UnitsPlanned     int            `json:"units_planned"`
	UnitsProcessed   int            `json:"units_processed"`
	LeadsFound       int            `json:"leads_found"`
	CreatedAt        time.Time      `json:"created_at"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	HeartbeatAt      *time.Time     `json:"heartbeat_at,omitempty"`
}

// DensityClass is the ordinal business-density classification of a coverage unit.
type DensityClass string

const (
	DensityVeryHigh DensityClass = "very_high"
	DensityHigh     DensityClass = "high"
	DensityMedium   DensityClass = "medium"
	DensityLow      DensityClass = "low"
	DensityUnknown  DensityClass = "unknown"
)

// CoverageUnit is one planned slice of a campaign's target region, typically
// a postal code. Units are immutable once the plan is generated.
type CoverageUnit struct {
	UnitID             string       `json:"unit_id"`
	Neighborhood       string       `json:"neighborhood,omitempty"`
	Density            DensityClass `json:"density"`
	ExpectedBusinesses int          `json:"expected_businesses"`
	Rank               int          `json:"rank"`
	Lat                float64      `json:"lat,omitempty"`
	Lon                float64      `json:"lon,omitempty"`
}

// Checkpoint marks resumable progress for a campaign. It is written only
// after the mutations it describes are durable in the store.
type Checkpoint struct {
	CampaignID string    `json:"campaign_id"`
	UnitsDone  int       `json:"units_done"`
	LastUnitID string    `json:"last_unit_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LedgerEntry holds per-campaign, per-capability usage counters.
type LedgerEntry struct {
	CampaignID string    `json:"campaign_id"`
	Capability string    `json:"capability"`
	Calls      int       `json:"calls"`
	CostUSD    float64   `json:"cost_usd"`
	LastCallAt time.Time `json:"last_call_at"`
}
