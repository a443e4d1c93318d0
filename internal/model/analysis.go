package model

import "time"

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Verdict labels for the investment recommendation.
const (
	VerdictStrongInvest = "STRONG INVEST"
	VerdictInvest       = "INVEST"
	VerdictCaution      = "CAUTION"
	VerdictPass         = "PASS"
)

// ConfidenceLevel grades how well a finding is supported by the documents.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// CategoryScores breaks the recommendation score down by diligence category.
type CategoryScores struct {
	Founder         int `json:"founder"`
	Market          int `json:"market"`
	Differentiation int `json:"differentiation"`
	Team            int `json:"team"`
}

// Recommendation is the headline investment verdict.
type Recommendation struct {
	Label          string         `json:"label"`
	Score          int            `json:"score"`
	Justification  string         `json:"justification"`
	CategoryScores CategoryScores `json:"category_scores"`
}

// MetricSource records where a key metric was found.
type MetricSource struct {
	Kind       string          `json:"kind"`
	Location   string          `json:"location"`
	Confidence ConfidenceLevel `json:"confidence"`
}

// KeyMetric is a single headline figure surfaced from the documents.
type KeyMetric struct {
	Label  string       `json:"label"`
	Value  string       `json:"value"`
	Source MetricSource `json:"source"`
}

// RiskItem is one entry in the risk assessment.
type RiskItem struct {
	Level       ConfidenceLevel `json:"level"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Mitigation  string          `json:"mitigation,omitempty"`
	Impact      string          `json:"impact,omitempty"`
}

// InsightStatus marks whether a cross-document finding held up.
type InsightStatus string

const (
	InsightValidated   InsightStatus = "validated"
	InsightConflicting InsightStatus = "conflicting"
	InsightUncertain   InsightStatus = "uncertain"
)

// CrossDocumentInsight is a finding that spans more than one document.
type CrossDocumentInsight struct {
	Kind              string          `json:"kind"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Confidence        ConfidenceLevel `json:"confidence"`
	Status            InsightStatus   `json:"status"`
	SourceDocumentIDs []string        `json:"source_document_ids,omitempty"`
}

// Summary is the narrative portion of the analysis.
type Summary struct {
	BusinessOverview string `json:"business_overview"`
	TeamExperience   string `json:"team_experience"`
	ProductTech      string `json:"product_tech"`
}

// ReasoningResult is the full output of the reasoning stage, live or fallback.
type ReasoningResult struct {
	CompanyName           string                 `json:"company_name"`
	Industry              string                 `json:"industry"`
	Stage                 string                 `json:"stage"`
	Recommendation        Recommendation         `json:"recommendation"`
	KeyMetrics            []KeyMetric            `json:"key_metrics"`
	RiskAssessment        []RiskItem             `json:"risk_assessment"`
	CrossDocumentInsights []CrossDocumentInsight `json:"cross_document_insights"`
	Summary               Summary                `json:"summary"`
}

// AnalysisDepth distinguishes a fully reasoned result from a degraded one.
type AnalysisDepth string

const (
	DepthComprehensive AnalysisDepth = "comprehensive"
	DepthBasic         AnalysisDepth = "basic"
)

// AnalysisMetadata carries non-fatal observations about how the job ran.
type AnalysisMetadata struct {
	Depth      AnalysisDepth `json:"analysis_depth"`
	EngineUsed string        `json:"engine_used,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// AnalysisJob is the aggregate record for one submitted batch. It is mutated
// in place by each stage and becomes immutable once Status is terminal.
type AnalysisJob struct {
	JobID                 string                 `json:"job_id"`
	OwnerID               string                 `json:"owner_id,omitempty"`
	Status                JobStatus              `json:"status"`
	CompanyName           string                 `json:"company_name,omitempty"`
	Industry              string                 `json:"industry,omitempty"`
	FundingStage          string                 `json:"funding_stage,omitempty"`
	Documents             []ProcessedDocument    `json:"documents"`
	Recommendation        Recommendation         `json:"recommendation"`
	KeyMetrics            []KeyMetric            `json:"key_metrics"`
	RiskAssessment        []RiskItem             `json:"risk_assessment"`
	CrossDocumentInsights []CrossDocumentInsight `json:"cross_document_insights"`
	Summary               Summary                `json:"summary"`
	MarketIntelligence    *MarketIntelligence    `json:"market_intelligence,omitempty"`
	DueDiligence          *DueDiligenceGuidance  `json:"due_diligence,omitempty"`
	Confidence            float64                `json:"confidence"`
	Metadata              AnalysisMetadata       `json:"metadata"`
	CreatedAt             time.Time              `json:"created_at"`
	CompletedAt           *time.Time             `json:"completed_at,omitempty"`
	Error                 string                 `json:"error,omitempty"`
}

// AddWarning appends a non-fatal observation to the job metadata.
func (j *AnalysisJob) AddWarning(w string) {
	j.Metadata.Warnings = append(j.Metadata.Warnings, w)
}
