package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-cli/internal/model"
)

// ResearchConfig bounds how much of a lead's website gets read.
type ResearchConfig struct {
	MaxLinks    int           // additional pages beyond the landing page
	MaxBytes    int           // total content budget across pages
	PageTimeout time.Duration // per-page fetch deadline
}

// ResearchStage reads a lead's website to collect raw material for
// summarization. Research is best effort: a site that is down, slow, or
// unparseable yields an empty payload and the lead still advances.
type ResearchStage struct {
	fetcher ContentFetcher
	cfg     ResearchConfig
	log     *zap.Logger
}

func NewResearchStage(fetcher ContentFetcher, cfg ResearchConfig) *ResearchStage {
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = 5
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 256 * 1024
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	return &ResearchStage{
		fetcher: fetcher,
		cfg:     cfg,
		log:     zap.L().With(zap.String("component", "enrich.research")),
	}
}

func (s *ResearchStage) Name() string            { return "research" }
func (s *ResearchStage) Capability() string      { return CapResearch }
func (s *ResearchStage) Target() model.LeadStage { return model.StageResearched }

func (s *ResearchStage) Run(ctx context.Context, lead *model.Lead) error {
	if lead.Stage.AtOrPast(model.StageResearched) {
		return nil
	}
	// A cancelled context means pause or shutdown, not an unreachable site.
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "enrich: research")
	}
	defer func() { lead.Stage = model.StageResearched }()

	if lead.Website == "" {
		return nil
	}

	landing, err := s.fetchPage(ctx, lead.Website)
	if err != nil {
		s.log.Debug("landing page unreachable, continuing with empty payload",
			zap.String("place_id", lead.PlaceID),
			zap.String("url", lead.Website),
			zap.Error(err),
		)
		return nil
	}

	budget := s.cfg.MaxBytes
	pages := []model.ResearchPage{{URL: landing.URL, Content: truncate(landing.Content, budget)}}
	budget -= len(pages[0].Content)

	for _, link := range landing.Links {
		if len(pages) > s.cfg.MaxLinks || budget <= 0 {
			break
		}
		if ctx.Err() != nil {
			break
		}
		p, err := s.fetchPage(ctx, link)
		if err != nil {
			continue
		}
		content := truncate(p.Content, budget)
		if content == "" {
			continue
		}
		pages = append(pages, model.ResearchPage{URL: p.URL, Content: content})
		budget -= len(content)
	}

	lead.Research = pages
	return nil
}

func (s *ResearchStage) fetchPage(ctx context.Context, url string) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PageTimeout)
	defer cancel()
	return s.fetcher.Read(ctx, url)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
