// Package store persists campaigns, leads, checkpoints, and the cost ledger.
// Two backends are provided: SQLite for single-machine use and Postgres for
// shared deployments.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/campaign-cli/internal/model"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = eris.New("store: not found")

// CampaignFilter specifies criteria for listing campaigns.
type CampaignFilter struct {
	Status model.CampaignStatus `json:"status,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// LeadFilter specifies criteria for listing a campaign's leads.
type LeadFilter struct {
	Stage  model.LeadStage `json:"stage,omitempty"`
	UnitID string          `json:"unit_id,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the campaign engine.
type Store interface {
	// Campaigns
	CreateCampaign(ctx context.Context, c *model.Campaign) error
	UpdateCampaign(ctx context.Context, c *model.Campaign) error
	UpdateCampaignStatus(ctx context.Context, id string, status model.CampaignStatus, reason string) error
	TouchHeartbeat(ctx context.Context, id string) error
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error)

	// Leads. Upserts are keyed on (campaign_id, place_id) so re-running a
	// unit after a crash or resume never duplicates a lead.
	UpsertLead(ctx context.Context, lead *model.Lead) error
	GetLead(ctx context.Context, campaignID, placeID string) (*model.Lead, error)
	ListLeads(ctx context.Context, campaignID string, filter LeadFilter) ([]model.Lead, error)
	CountLeads(ctx context.Context, campaignID string) (int, error)

	// Checkpoints
	WriteCheckpoint(ctx context.Context, cp model.Checkpoint) error
	ReadCheckpoint(ctx context.Context, campaignID string) (*model.Checkpoint, error)

	// Cost ledger
	RecordCost(ctx context.Context, campaignID, capability string, calls int, costUSD float64) error
	ReadLedger(ctx context.Context, campaignID string) ([]model.LedgerEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
