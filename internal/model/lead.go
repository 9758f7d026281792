package model

import "time"

// LeadStage is the enrichment stage a lead has completed. Stages advance
// monotonically through the fixed order; a failure freezes the lead.
type LeadStage string

const (
	StageDiscovered LeadStage = "discovered"
	StageResearched LeadStage = "researched"
	StageSummarized LeadStage = "summarized"
	StageVerified   LeadStage = "verified"
	StageFailed     LeadStage = "failed"
)

// stageOrder maps non-terminal stages to their position in the pipeline.
var stageOrder = map[LeadStage]int{
	StageDiscovered: 0,
	StageResearched: 1,
	StageSummarized: 2,
	StageVerified:   3,
}

// AtOrPast reports whether s has already reached stage. Failed leads are
// frozen and report true for every stage.
func (s LeadStage) AtOrPast(stage LeadStage) bool {
	if s == StageFailed {
		return true
	}
	return stageOrder[s] >= stageOrder[stage]
}

// Failure kinds recorded on leads that failed a stage.
const (
	FailureSummarization     = "summarization_failed"
	FailureProviderThrottled = "provider_throttled"
	FailureStagePanic        = "stage_panic"
)

// ResearchPage is one fetched page from a lead's website.
type ResearchPage struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Lead is one discovered business record progressing through enrichment.
// Leads are keyed by (CampaignID, PlaceID) so re-discovery is idempotent.
type Lead struct {
	ID            string    `json:"id"`
	CampaignID    string    `json:"campaign_id"`
	UnitID        string    `json:"unit_id"`
	PlaceID       string    `json:"place_id"`
	Stage         LeadStage `json:"stage"`
	FailureKind   string    `json:"failure_kind,omitempty"`
	FailureDetail string    `json:"failure_detail,omitempty"`

	Name         string  `json:"name"`
	Category     string  `json:"category,omitempty"`
	Website      string  `json:"website,omitempty"`
	Email        string  `json:"email,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	Address      string  `json:"address,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
	ReviewsCount int     `json:"reviews_count,omitempty"`

	Research        []ResearchPage `json:"research,omitempty"`
	Summary         string         `json:"summary,omitempty"`
	OutreachMessage string         `json:"outreach_message,omitempty"`
	EmailConfidence float64        `json:"email_confidence,omitempty"`
	EmailVerifiedAt *time.Time     `json:"email_verified_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasContactChannel reports whether the lead carries at least one way to
// reach the business. Records without any channel are never persisted.
func (l Lead) HasContactChannel() bool {
	return l.Email != "" || l.Website != ""
}

// Fail marks the lead failed for the given kind, freezing it.
func (l *Lead) Fail(kind, detail string) {
	l.Stage = StageFailed
	l.FailureKind = kind
	l.FailureDetail = detail
}
