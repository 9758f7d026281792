package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageAtOrPast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		stage LeadStage
		check LeadStage
		want  bool
	}{
		{"discovered not past researched", StageDiscovered, StageResearched, false},
		{"researched at researched", StageResearched, StageResearched, true},
		{"verified past summarized", StageVerified, StageSummarized, true},
		{"summarized not past verified", StageSummarized, StageVerified, false},
		{"failed is frozen at every stage", StageFailed, StageResearched, true},
		{"failed is frozen at verify", StageFailed, StageVerified, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.stage.AtOrPast(tt.check))
		})
	}
}

func TestHasContactChannel(t *testing.T) {
	t.Parallel()

	assert.True(t, Lead{Email: "a@b.com"}.HasContactChannel())
	assert.True(t, Lead{Website: "https://example.com"}.HasContactChannel())
	assert.False(t, Lead{Name: "No Channel LLC", Phone: "555-0100"}.HasContactChannel())
}

func TestLeadFail(t *testing.T) {
	t.Parallel()

	l := Lead{Stage: StageResearched}
	l.Fail(FailureSummarization, "no usable content")

	assert.Equal(t, StageFailed, l.Stage)
	assert.Equal(t, FailureSummarization, l.FailureKind)
	assert.Equal(t, "no usable content", l.FailureDetail)
}

func TestCampaignStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, CampaignStatusCompleted.Terminal())
	assert.True(t, CampaignStatusFailed.Terminal())
	assert.False(t, CampaignStatusRunning.Terminal())
	assert.False(t, CampaignStatusPaused.Terminal())
	assert.False(t, CampaignStatusPending.Terminal())
}
