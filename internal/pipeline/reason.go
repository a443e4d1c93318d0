package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/harborview-partners/diligence-cli/internal/model"
	"github.com/harborview-partners/diligence-cli/pkg/anthropic"
)

// ReasoningEngine produces an investment analysis from extracted documents.
type ReasoningEngine interface {
	Reason(ctx context.Context, docs []model.ReasoningDocument, depth model.AnalysisDepth) (*model.ReasoningResult, error)
	// Name identifies the engine in job metadata.
	Name() string
}

const reasoningSystemPrompt = `You are a senior venture capital analyst. You receive extracted content from a startup's fundraising documents and produce a rigorous investment analysis.

Respond with a single JSON object and nothing else. The object must have these fields:
  company_name (string), industry (string), stage (string),
  recommendation {label, score (0-100), justification, category_scores {founder, market, differentiation, team}},
  key_metrics [{label, value, source {kind, location, confidence}}],
  risk_assessment [{level, title, description, mitigation, impact}],
  cross_document_insights [{kind, title, description, confidence, status, source_document_ids}],
  summary {business_overview, team_experience, product_tech}.

recommendation.label must be one of "STRONG INVEST", "INVEST", "CAUTION", "PASS".
confidence and level fields must be "high", "medium", or "low".
insight status must be "validated", "conflicting", or "uncertain".
Base every claim on the supplied documents. Flag contradictions between documents as conflicting insights.`

// maxReasoningDocs caps how many documents a single reasoning call accepts.
const maxReasoningDocs = 10

// ClaudeEngine implements ReasoningEngine with a live Anthropic call.
type ClaudeEngine struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// NewClaudeEngine creates a live reasoning engine.
func NewClaudeEngine(client anthropic.Client, modelID string, maxTokens int64, timeout time.Duration) *ClaudeEngine {
	return &ClaudeEngine{client: client, model: modelID, maxTokens: maxTokens, timeout: timeout}
}

func (e *ClaudeEngine) Name() string { return "claude" }

func (e *ClaudeEngine) Reason(ctx context.Context, docs []model.ReasoningDocument, depth model.AnalysisDepth) (*model.ReasoningResult, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	temp := 0.2
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(reasoningSystemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: buildReasoningPrompt(docs, depth)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, &CollaboratorError{Service: "anthropic", Op: "reason", Err: err}
	}
	resp.Usage.LogCost(e.model, "reasoning")

	result, err := parseReasoningResponse(resp.Text())
	if err != nil {
		return nil, &CollaboratorError{Service: "anthropic", Op: "parse", Err: err}
	}
	return result, nil
}

func buildReasoningPrompt(docs []model.ReasoningDocument, depth model.AnalysisDepth) string {
	var sb strings.Builder
	if depth == model.DepthBasic {
		sb.WriteString("Produce a basic analysis: keep justifications and summaries to one or two sentences each.\n\n")
	} else {
		sb.WriteString("Produce a comprehensive analysis with detailed justifications.\n\n")
	}
	sb.WriteString(fmt.Sprintf("Documents (%d):\n\n", len(docs)))
	for _, d := range docs {
		sb.WriteString(fmt.Sprintf("--- document id=%s name=%s type=%s confidence=%.2f ---\n", d.ID, d.Name, d.Type, d.Confidence))
		if len(d.ExtractedFields) > 0 {
			fields, _ := json.Marshal(d.ExtractedFields)
			sb.WriteString("fields: ")
			sb.Write(fields)
			sb.WriteString("\n")
		}
		sb.WriteString(d.ExtractedText)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// parseReasoningResponse extracts and validates the JSON analysis from a
// model response, tolerating markdown fences around the object.
func parseReasoningResponse(text string) (*model.ReasoningResult, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("reasoning: empty response")
	}

	var result model.ReasoningResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, eris.Wrap(err, "reasoning: unmarshal response")
	}
	if err := validateReasoningResult(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// cleanJSON strips markdown code fences and surrounding prose, returning
// the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func validateReasoningResult(r *model.ReasoningResult) error {
	switch r.Recommendation.Label {
	case model.VerdictStrongInvest, model.VerdictInvest, model.VerdictCaution, model.VerdictPass:
	default:
		return eris.Errorf("reasoning: unknown recommendation label %q", r.Recommendation.Label)
	}
	if r.Recommendation.Score < 0 || r.Recommendation.Score > 100 {
		return eris.Errorf("reasoning: recommendation score %d out of range", r.Recommendation.Score)
	}
	if strings.TrimSpace(r.CompanyName) == "" {
		zap.L().Warn("reasoning: response missing company name")
		r.CompanyName = "Unknown Company"
	}
	return nil
}
