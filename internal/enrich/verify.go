package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-cli/internal/model"
	"github.com/sells-group/campaign-cli/internal/resilience"
)

// VerifyStage annotates a lead with email deliverability. Verification
// never blocks a lead: leads without an email, and leads whose verification
// errors out, still advance with zero confidence.
type VerifyStage struct {
	verifier Verifier
	retry    resilience.RetryConfig
	log      *zap.Logger
}

func NewVerifyStage(verifier Verifier) *VerifyStage {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("bouncer", "verify")
	return &VerifyStage{
		verifier: verifier,
		retry:    cfg,
		log:      zap.L().With(zap.String("component", "enrich.verify")),
	}
}

func (s *VerifyStage) Name() string            { return "verify" }
func (s *VerifyStage) Capability() string      { return CapVerify }
func (s *VerifyStage) Target() model.LeadStage { return model.StageVerified }

func (s *VerifyStage) Run(ctx context.Context, lead *model.Lead) error {
	if lead.Stage.AtOrPast(model.StageVerified) {
		return nil
	}

	if lead.Email == "" {
		lead.Stage = model.StageVerified
		return nil
	}

	res, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (VerifyResult, error) {
		return s.verifier.Verify(ctx, lead.Email)
	})
	if err != nil {
		if resilience.IsThrottled(err) {
			return eris.Wrap(err, "enrich: verify throttled")
		}
		s.log.Debug("verification failed, advancing unverified",
			zap.String("place_id", lead.PlaceID),
			zap.Error(err),
		)
		lead.Stage = model.StageVerified
		return nil
	}

	now := time.Now().UTC()
	lead.EmailConfidence = res.Confidence
	lead.EmailVerifiedAt = &now
	lead.Stage = model.StageVerified
	return nil
}
