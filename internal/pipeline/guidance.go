package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harborview-partners/diligence-cli/internal/model"
	"github.com/harborview-partners/diligence-cli/pkg/knowledge"
)

// GuidancePhase fetches a due diligence checklist tailored to the verdict,
// falling back to a fixed checklist when the knowledge base is unreachable.
// The returned warning is empty when the live lookup succeeded.
func GuidancePhase(
	ctx context.Context,
	client knowledge.Client,
	company, industry, stage, verdict string,
	timeout time.Duration,
) (*model.DueDiligenceGuidance, string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if client != nil {
		resp, err := client.GetGuidance(ctx, knowledge.GuidanceRequest{
			Company:  company,
			Industry: industry,
			Stage:    stage,
			Verdict:  verdict,
		})
		if err == nil {
			guidance := &model.DueDiligenceGuidance{
				Recommendations: resp.Recommendations,
				RiskFactors:     resp.RiskFactors,
				NextActions:     resp.NextActions,
			}
			for _, s := range resp.Steps {
				guidance.Steps = append(guidance.Steps, model.DueDiligenceStep{
					Order:       s.Order,
					Title:       s.Title,
					Description: s.Description,
					Category:    s.Category,
				})
			}
			return guidance, "", nil
		}
		zap.L().Warn("pipeline: guidance lookup failed",
			zap.String("company", company),
			zap.Error(err),
		)
	}

	// A stage timeout falls back to the fixed checklist; only an outside
	// cancellation stops the job.
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, "", ctx.Err()
	}
	return fallbackGuidance(company, verdict), "due diligence checklist generated from standard template", nil
}

func fallbackGuidance(company, verdict string) *model.DueDiligenceGuidance {
	steps := []model.DueDiligenceStep{
		{Order: 1, Title: "Verify financial statements", Description: "Reconcile reported revenue and burn against bank statements and accounting records.", Category: "financial"},
		{Order: 2, Title: "Founder reference checks", Description: "Speak with former colleagues, investors, and customers about the founding team.", Category: "team"},
		{Order: 3, Title: "Customer interviews", Description: "Interview at least five current customers on retention intent and willingness to pay.", Category: "market"},
		{Order: 4, Title: "Legal and IP review", Description: "Confirm cap table, entity standing, and ownership of core intellectual property.", Category: "legal"},
		{Order: 5, Title: "Technical architecture review", Description: "Assess scalability, security posture, and key-person risk in the engineering organization.", Category: "product"},
	}

	recommendations := []string{
		fmt.Sprintf("Complete all checklist items before advancing %s to partner review.", company),
	}
	if verdict == model.VerdictCaution || verdict == model.VerdictPass {
		recommendations = append(recommendations,
			"Prioritize the financial verification step given the cautious automated verdict.")
	}

	return &model.DueDiligenceGuidance{
		Steps:           steps,
		Recommendations: recommendations,
		RiskFactors: []string{
			"Checklist is generic and not tailored to the company's sector",
		},
		NextActions: []string{
			"Assign a deal lead",
			"Schedule a follow-up call with the founding team",
		},
	}
}
