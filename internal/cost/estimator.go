// Package cost centralizes pricing for the external services used by
// campaigns. Rates live here so pricing changes touch one file.
package cost

// ServiceRate holds the pricing for one external service.
type ServiceRate struct {
	Name            string  `yaml:"name" mapstructure:"name"`
	CostPerThousand float64 `yaml:"cost_per_thousand" mapstructure:"cost_per_thousand"` // USD per 1000 items
	Unit            string  `yaml:"unit" mapstructure:"unit"`
}

// PerItem returns the cost of a single item under this rate.
func (r ServiceRate) PerItem() float64 {
	return r.CostPerThousand / 1000
}

// ForItems returns the cost of n items under this rate.
func (r ServiceRate) ForItems(n int) float64 {
	return (float64(n) / 1000) * r.CostPerThousand
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates holds the full pricing table.
type Rates struct {
	Services map[string]ServiceRate `yaml:"services" mapstructure:"services"`
	Models   map[string]ModelRate   `yaml:"models" mapstructure:"models"`
}

// Estimator computes costs for external service usage.
type Estimator struct {
	rates Rates
}

// NewEstimator creates an Estimator with the given rates.
func NewEstimator(rates Rates) *Estimator {
	return &Estimator{rates: rates}
}

// Items computes the cost of n items against a named service. Unknown
// services cost zero.
func (e *Estimator) Items(service string, n int) float64 {
	rate, ok := e.rates.Services[service]
	if !ok {
		return 0
	}
	return rate.ForItems(n)
}

// PerItem returns the single-item cost for a named service.
func (e *Estimator) PerItem(service string) float64 {
	rate, ok := e.rates.Services[service]
	if !ok {
		return 0
	}
	return rate.PerItem()
}

// Tokens computes the cost of a model call from token counts. Unknown
// models cost zero.
func (e *Estimator) Tokens(model string, input, output int) float64 {
	rate, ok := e.rates.Models[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// CampaignEstimate projects the total cost of a campaign from its expected
// business count, assuming every discovered record flows through research,
// summarization, and verification.
func (e *Estimator) CampaignEstimate(expectedBusinesses int) float64 {
	return e.Items("discovery", expectedBusinesses) +
		e.Items("research", expectedBusinesses) +
		e.Items("summarize", expectedBusinesses) +
		e.Items("verify", expectedBusinesses)
}

// DefaultRates returns the default pricing table.
func DefaultRates() Rates {
	return Rates{
		Services: map[string]ServiceRate{
			"discovery": {
				Name:            "Google Maps Scraper",
				CostPerThousand: 4.00,
				Unit:            "results",
			},
			"research": {
				Name:            "Website Reader",
				CostPerThousand: 0.20,
				Unit:            "pages",
			},
			"summarize": {
				Name:            "AI Summarization",
				CostPerThousand: 8.00,
				Unit:            "summaries",
			},
			"verify": {
				Name:            "Email Verification",
				CostPerThousand: 2.00,
				Unit:            "verifications",
			},
		},
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
	}
}
