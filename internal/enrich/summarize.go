package enrich

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/campaign-cli/internal/model"
	"github.com/sells-group/campaign-cli/internal/resilience"
)

// SummarizeStage turns a lead's research payload into a business summary
// and an outreach opener. Unlike research, summarization failures mark the
// lead failed: an unsummarized lead is not useful downstream.
type SummarizeStage struct {
	summarizer Summarizer
	retry      resilience.RetryConfig
}

func NewSummarizeStage(summarizer Summarizer) *SummarizeStage {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("anthropic", "summarize")
	return &SummarizeStage{summarizer: summarizer, retry: cfg}
}

func (s *SummarizeStage) Name() string            { return "summarize" }
func (s *SummarizeStage) Capability() string      { return CapSummarize }
func (s *SummarizeStage) Target() model.LeadStage { return model.StageSummarized }

func (s *SummarizeStage) Run(ctx context.Context, lead *model.Lead) error {
	if lead.Stage.AtOrPast(model.StageSummarized) {
		return nil
	}

	type result struct {
		summary  string
		outreach string
	}
	res, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (result, error) {
		summary, outreach, err := s.summarizer.Summarize(ctx, *lead)
		return result{summary, outreach}, err
	})
	if err != nil {
		if resilience.IsThrottled(err) {
			return eris.Wrap(err, "enrich: summarize throttled")
		}
		lead.Fail(model.FailureSummarization, err.Error())
		return nil
	}

	lead.Summary = res.summary
	lead.OutreachMessage = res.outreach
	lead.Stage = model.StageSummarized
	return nil
}
