package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Services: map[string]ServiceRate{
			"discovery": {CostPerThousand: 4.00, Unit: "results"},
			"verify":    {CostPerThousand: 2.00, Unit: "verifications"},
		},
		Models: map[string]ModelRate{
			"haiku": {Input: 0.80, Output: 4.00},
		},
	}
}

func TestItems(t *testing.T) {
	t.Parallel()
	est := NewEstimator(testRates())

	tests := []struct {
		name    string
		service string
		n       int
		want    float64
	}{
		{"1000 discovery results", "discovery", 1000, 4.00},
		{"250 discovery results", "discovery", 250, 1.00},
		{"500 verifications", "verify", 500, 1.00},
		{"zero items", "discovery", 0, 0},
		{"unknown service", "facebook", 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, est.Items(tt.service, tt.n), 0.0001)
		})
	}
}

func TestPerItem(t *testing.T) {
	t.Parallel()
	est := NewEstimator(testRates())

	assert.InDelta(t, 0.004, est.PerItem("discovery"), 0.00001)
	assert.InDelta(t, 0.002, est.PerItem("verify"), 0.00001)
	assert.Zero(t, est.PerItem("unknown"))
}

func TestTokens(t *testing.T) {
	t.Parallel()
	est := NewEstimator(testRates())

	// 1M input + 100K output on haiku: 0.80 + 0.40.
	assert.InDelta(t, 1.20, est.Tokens("haiku", 1_000_000, 100_000), 0.001)
	assert.Zero(t, est.Tokens("unknown-model", 1_000_000, 1_000_000))
}

func TestCampaignEstimate(t *testing.T) {
	t.Parallel()
	est := NewEstimator(DefaultRates())

	// 1000 businesses: 4.00 + 0.20 + 8.00 + 2.00.
	assert.InDelta(t, 14.20, est.CampaignEstimate(1000), 0.001)
	assert.Zero(t, est.CampaignEstimate(0))
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()

	assert.Contains(t, rates.Services, "discovery")
	assert.Contains(t, rates.Services, "verify")
	assert.InDelta(t, 4.00, rates.Services["discovery"].CostPerThousand, 0.001)
	assert.Contains(t, rates.Models, "claude-haiku-4-5-20251001")
}
