// Package providers adapts the external API clients to the interfaces the
// enrichment pipeline consumes. Each adapter translates the client's
// rate-limit signal into the pipeline's throttling error so the budget
// scheduler can back off.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/campaign-cli/internal/enrich"
	"github.com/sells-group/campaign-cli/internal/model"
	"github.com/sells-group/campaign-cli/internal/resilience"
	"github.com/sells-group/campaign-cli/pkg/anthropic"
	"github.com/sells-group/campaign-cli/pkg/apify"
	"github.com/sells-group/campaign-cli/pkg/bouncer"
	"github.com/sells-group/campaign-cli/pkg/jina"
)

// ApifyDiscovery implements enrich.DiscoveryProvider on the Apify Google
// Maps actor.
type ApifyDiscovery struct {
	client apify.Client
	log    *zap.Logger
}

func NewApifyDiscovery(client apify.Client) *ApifyDiscovery {
	return &ApifyDiscovery{
		client: client,
		log:    zap.L().With(zap.String("component", "providers.apify")),
	}
}

func (d *ApifyDiscovery) Discover(ctx context.Context, q enrich.DiscoveryQuery) ([]model.Lead, error) {
	input := apify.RunInput{
		SearchStringsArray:        q.Keywords,
		LocationQuery:             fmt.Sprintf("%s %s", q.UnitID, q.Location),
		MaxCrawledPlacesPerSearch: q.MaxResults,
		ScrapeContacts:            true,
		SkipClosedPlaces:          true,
	}

	places, err := d.client.ScrapePlaces(ctx, input)
	if err != nil {
		if errors.Is(err, apify.ErrRateLimited) {
			return nil, resilience.NewThrottledError(err)
		}
		return nil, err
	}

	leads := make([]model.Lead, 0, len(places))
	for _, p := range places {
		if p.PlaceID == "" || p.Title == "" {
			continue
		}
		lead := model.Lead{
			PlaceID:      p.PlaceID,
			Name:         p.Title,
			Category:     p.CategoryName,
			Website:      p.Website,
			Phone:        p.Phone,
			Address:      p.Address,
			Rating:       p.TotalScore,
			ReviewsCount: p.ReviewsCount,
		}
		if len(p.Emails) > 0 {
			lead.Email = p.Emails[0]
		}
		leads = append(leads, lead)
	}

	d.log.Debug("discovery batch",
		zap.String("unit_id", q.UnitID),
		zap.Int("places", len(places)),
		zap.Int("leads", len(leads)),
	)
	return leads, nil
}

// JinaFetcher implements enrich.ContentFetcher on the Jina AI Reader.
type JinaFetcher struct {
	client jina.Client
}

func NewJinaFetcher(client jina.Client) *JinaFetcher {
	return &JinaFetcher{client: client}
}

func (f *JinaFetcher) Read(ctx context.Context, url string) (enrich.Page, error) {
	resp, err := f.client.Read(ctx, url)
	if err != nil {
		if errors.Is(err, jina.ErrRateLimited) {
			return enrich.Page{}, resilience.NewThrottledError(err)
		}
		return enrich.Page{}, err
	}

	links := make([]string, 0, len(resp.Data.Links))
	for _, href := range resp.Data.Links {
		if sameSite(url, href) {
			links = append(links, href)
		}
	}

	page := enrich.Page{
		URL:     resp.Data.URL,
		Content: resp.Data.Content,
		Links:   links,
	}
	if page.URL == "" {
		page.URL = url
	}
	return page, nil
}

// sameSite keeps research on the lead's own domain. Off-site links dilute
// the summary and burn the page budget.
func sameSite(base, href string) bool {
	return strings.HasPrefix(href, trimToHost(base))
}

func trimToHost(u string) string {
	rest := u
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	host := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		host = rest[:i]
	}
	if i := strings.Index(u, "://"); i >= 0 {
		return u[:i+3] + host
	}
	return host
}

// summarySystemPrompt frames both model calls. It is cached server-side for
// the duration of a campaign.
const summarySystemPrompt = `You analyze small-business websites for a B2B outreach team.
Given scraped pages from one business, respond with only the requested text,
no preamble. Be concrete and specific to this business.`

// AnthropicSummarizer implements enrich.Summarizer with two model calls: a
// cheap model writes the business summary, a stronger one writes the
// outreach opener from that summary.
type AnthropicSummarizer struct {
	client       anthropic.Client
	summaryModel string
	composeModel string
	maxTokens    int64
	log          *zap.Logger
}

func NewAnthropicSummarizer(client anthropic.Client, summaryModel, composeModel string, maxTokens int) *AnthropicSummarizer {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicSummarizer{
		client:       client,
		summaryModel: summaryModel,
		composeModel: composeModel,
		maxTokens:    int64(maxTokens),
		log:          zap.L().With(zap.String("component", "providers.anthropic")),
	}
}

func (s *AnthropicSummarizer) Summarize(ctx context.Context, lead model.Lead) (string, string, error) {
	summary, err := s.complete(ctx, s.summaryModel, summaryPrompt(lead))
	if err != nil {
		return "", "", classifyAnthropicErr(err)
	}

	outreach, err := s.complete(ctx, s.composeModel, outreachPrompt(lead, summary))
	if err != nil {
		return "", "", classifyAnthropicErr(err)
	}

	return summary, outreach, nil
}

func (s *AnthropicSummarizer) complete(ctx context.Context, model, prompt string) (string, error) {
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     model,
		MaxTokens: s.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(summarySystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	s.log.Debug("model call",
		zap.String("model", model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Int64("cache_read_tokens", resp.Usage.CacheReadInputTokens),
	)

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("providers: empty completion from %s", model)
	}
	return text, nil
}

func summaryPrompt(lead model.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s\n", lead.Name)
	if lead.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", lead.Category)
	}
	if lead.Address != "" {
		fmt.Fprintf(&b, "Address: %s\n", lead.Address)
	}
	if len(lead.Research) == 0 {
		b.WriteString("\nNo website content is available. Write a two-sentence summary from the listing data above.\n")
		return b.String()
	}
	b.WriteString("\nWebsite content:\n")
	for _, p := range lead.Research {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", p.URL, p.Content)
	}
	b.WriteString("\nWrite a summary of this business in at most five sentences: what they do, who they serve, and anything notable.\n")
	return b.String()
}

func outreachPrompt(lead model.Lead, summary string) string {
	return fmt.Sprintf(
		"Business: %s\nSummary: %s\n\nWrite a short, personalized cold-outreach opener (two sentences) referencing something specific about this business. No greeting line, no sign-off.",
		lead.Name, summary,
	)
}

// classifyAnthropicErr maps SDK rate-limit failures onto the pipeline's
// throttling signal.
func classifyAnthropicErr(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "overloaded") {
		return resilience.NewThrottledError(err)
	}
	return err
}

// BouncerVerifier implements enrich.Verifier on the Bouncer API.
type BouncerVerifier struct {
	client bouncer.Client
}

func NewBouncerVerifier(client bouncer.Client) *BouncerVerifier {
	return &BouncerVerifier{client: client}
}

// statusConfidence maps a verification status to a deliverability confidence.
var statusConfidence = map[string]float64{
	bouncer.StatusDeliverable:   0.95,
	bouncer.StatusRisky:         0.60,
	bouncer.StatusUnknown:       0.30,
	bouncer.StatusUndeliverable: 0.0,
}

func (v *BouncerVerifier) Verify(ctx context.Context, email string) (enrich.VerifyResult, error) {
	resp, err := v.client.Verify(ctx, email)
	if err != nil {
		if errors.Is(err, bouncer.ErrRateLimited) {
			return enrich.VerifyResult{}, resilience.NewThrottledError(err)
		}
		return enrich.VerifyResult{}, err
	}

	confidence, ok := statusConfidence[resp.Status]
	if !ok {
		confidence = statusConfidence[bouncer.StatusUnknown]
	}
	return enrich.VerifyResult{
		Status:     resp.Status,
		Confidence: confidence,
	}, nil
}
