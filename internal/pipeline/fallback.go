package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/harborview-partners/diligence-cli/internal/classify"
	"github.com/harborview-partners/diligence-cli/internal/model"
)

// FallbackEngine produces a deterministic analysis when no live reasoning
// engine is available. It never fails and never calls out.
type FallbackEngine struct{}

func NewFallbackEngine() *FallbackEngine { return &FallbackEngine{} }

func (e *FallbackEngine) Name() string { return "fallback" }

// Words that look like name candidates in filenames but never are.
var genericNameWords = map[string]bool{
	"pitch": true, "deck": true, "presentation": true, "final": true,
	"draft": true, "copy": true, "version": true, "update": true,
	"updated": true, "new": true, "latest": true, "model": true,
	"financial": true, "financials": true, "finance": true, "market": true,
	"research": true, "analysis": true, "founder": true, "founders": true,
	"team": true, "profile": true, "profiles": true, "traction": true,
	"metrics": true, "growth": true, "document": true, "file": true,
	"report": true, "overview": true, "summary": true, "investor": true,
	"investors": true, "seed": true, "series": true, "round": true,
	"usd": true, "eur": true, "gbp": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "may": true,
	"jun": true, "jul": true, "aug": true, "sep": true, "oct": true,
	"nov": true, "dec": true,
	"smith": true, "jones": true, "johnson": true, "williams": true,
}

var filenameTokens = regexp.MustCompile(`[A-Za-z]+`)

var titleCaser = cases.Title(language.English)

func (e *FallbackEngine) Reason(ctx context.Context, docs []model.ReasoningDocument, depth model.AnalysisDepth) (*model.ReasoningResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	company := guessCompanyName(docs)
	industry := guessIndustry(docs)

	justification := fmt.Sprintf(
		"Automated review of %d document(s) completed without access to the full reasoning engine. "+
			"The materials were extracted successfully but could not be deeply cross-examined, so the "+
			"recommendation defaults to a cautious stance pending analyst review.", len(docs))
	if depth == model.DepthBasic {
		justification = "Limited automated review; defaulting to a cautious stance pending analyst review."
	}

	// Stage stays empty; the orchestrator fills display defaults.
	result := &model.ReasoningResult{
		CompanyName: company,
		Industry:    industry,
		Recommendation: model.Recommendation{
			Label:         model.VerdictCaution,
			Score:         55,
			Justification: justification,
			CategoryScores: model.CategoryScores{
				Founder:         75,
				Market:          75,
				Differentiation: 75,
				Team:            75,
			},
		},
		RiskAssessment: []model.RiskItem{
			{
				Level:       model.ConfidenceMedium,
				Title:       "Limited analysis capability",
				Description: "This analysis was produced without the full reasoning engine and reflects document extraction only.",
				Mitigation:  "Re-run the analysis when the reasoning engine is available, or review the source documents manually.",
			},
		},
		Summary: model.Summary{
			BusinessOverview: fmt.Sprintf("%s submitted %d document(s) for review.", company, len(docs)),
			TeamExperience:   "Team background could not be assessed automatically.",
			ProductTech:      "Product and technology claims could not be verified automatically.",
		},
	}

	for _, d := range docs {
		result.KeyMetrics = append(result.KeyMetrics, model.KeyMetric{
			Label: "Document processed",
			Value: d.Name,
			Source: model.MetricSource{
				Kind:       "document",
				Location:   d.Name,
				Confidence: model.ConfidenceLow,
			},
		})
	}

	return result, nil
}

// guessCompanyName looks for a plausible company token in extracted fields
// first, then in document filenames.
func guessCompanyName(docs []model.ReasoningDocument) string {
	for _, d := range docs {
		if v, ok := d.ExtractedFields["company_name"].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}

	for _, d := range docs {
		for _, tok := range filenameTokens.FindAllString(d.Name, -1) {
			lower := strings.ToLower(tok)
			if len(tok) < 3 || genericNameWords[lower] {
				continue
			}
			return titleCaser.String(lower)
		}
	}
	return "Unknown Company"
}

func guessIndustry(docs []model.ReasoningDocument) string {
	for _, d := range docs {
		if v, ok := d.ExtractedFields["sector"].(string); ok {
			if industry := classify.IndustryForSector(v); industry != "" {
				return industry
			}
		}
		if v, ok := d.ExtractedFields["industry"].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return "Technology"
}
