package model

import "time"

// Benchmarks holds stage- and industry-level funding benchmarks.
type Benchmarks struct {
	AvgGrowthPct      float64 `json:"avg_growth_pct"`
	MedianValuationM  float64 `json:"median_valuation_musd"`
	AvgMonthlyBurnK   float64 `json:"avg_monthly_burn_kusd"`
	SampleSize        int     `json:"sample_size"`
	Industry          string  `json:"industry"`
	Stage             string  `json:"stage"`
}

// Competitor is one entry in the competitive landscape.
type Competitor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Funding     string `json:"funding,omitempty"`
}

// MarketIntelligence aggregates the market stage outputs.
type MarketIntelligence struct {
	Benchmarks    Benchmarks   `json:"benchmarks"`
	Competitors   []Competitor `json:"competitors"`
	RiskFactors   []string     `json:"risk_factors"`
	Opportunities []string     `json:"opportunities"`
	GatheredAt    time.Time    `json:"gathered_at"`
}
