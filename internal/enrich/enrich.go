// Package enrich implements the per-lead enrichment pipeline: discover,
// research, summarize, verify. Each stage is idempotent against the lead's
// recorded stage so a resumed campaign can replay a unit without repeating
// paid work.
package enrich

import (
	"context"

	"github.com/sells-group/campaign-cli/internal/model"
)

// Capability names used for budget scheduling and the cost ledger.
const (
	CapDiscovery = "discovery"
	CapResearch  = "research"
	CapSummarize = "summarize"
	CapVerify    = "verify"
)

// DiscoveryQuery describes one unit's worth of discovery work.
type DiscoveryQuery struct {
	Location   string
	UnitID     string
	Keywords   []string
	MaxResults int
}

// DiscoveryProvider finds business records for a geographic unit.
type DiscoveryProvider interface {
	Discover(ctx context.Context, q DiscoveryQuery) ([]model.Lead, error)
}

// Page is one fetched page of a lead's website.
type Page struct {
	URL     string
	Content string
	Links   []string
}

// ContentFetcher reads a URL as clean text plus the outbound links found on it.
type ContentFetcher interface {
	Read(ctx context.Context, url string) (Page, error)
}

// Summarizer produces a business summary and an outreach opener from a
// lead's research payload.
type Summarizer interface {
	Summarize(ctx context.Context, lead model.Lead) (summary, outreach string, err error)
}

// VerifyResult is the verdict on one email address.
type VerifyResult struct {
	Status     string // deliverable, risky, undeliverable, unknown
	Confidence float64
}

// Verifier checks email deliverability.
type Verifier interface {
	Verify(ctx context.Context, email string) (VerifyResult, error)
}

// Stage is one per-lead enrichment step. Run mutates the lead in place and
// must be a no-op when the lead has already reached the stage's target,
// which lets the engine skip budget admission for replayed items.
type Stage interface {
	Name() string
	Capability() string
	Target() model.LeadStage
	Run(ctx context.Context, lead *model.Lead) error
}
