package pipeline

import "github.com/harborview-partners/diligence-cli/internal/model"

// ComputeConfidence aggregates an overall confidence score for the job.
// The base of 0.5 earns bonuses for a scored recommendation, a benchmark
// set with a meaningful sample, a populated competitor landscape, and at
// least one cross-document insight, capped at 1.0.
func ComputeConfidence(reasoning *model.ReasoningResult, market *model.MarketIntelligence) float64 {
	score := 0.5

	if reasoning != nil {
		if reasoning.Recommendation.Score > 0 {
			score += 0.2
		}
		if len(reasoning.CrossDocumentInsights) >= 1 {
			score += 0.1
		}
	}
	if market != nil {
		if market.Benchmarks.SampleSize > 100 {
			score += 0.1
		}
		if len(market.Competitors) > 3 {
			score += 0.1
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
