package model

// DueDiligenceStep is one step in the diligence checklist.
type DueDiligenceStep struct {
	Order       int    `json:"order"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// DueDiligenceGuidance is the output of the guidance stage.
type DueDiligenceGuidance struct {
	Steps           []DueDiligenceStep `json:"steps"`
	Recommendations []string           `json:"recommendations"`
	RiskFactors     []string           `json:"risk_factors"`
	NextActions     []string           `json:"next_actions"`
}
