package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harborview-partners/diligence-cli/internal/model"
)

func TestComputeConfidence(t *testing.T) {
	scored := &model.ReasoningResult{
		Recommendation: model.Recommendation{Label: model.VerdictInvest, Score: 78},
	}
	withInsight := &model.ReasoningResult{
		Recommendation: model.Recommendation{Label: model.VerdictInvest, Score: 78},
		CrossDocumentInsights: []model.CrossDocumentInsight{
			{Kind: "consistency", Status: model.InsightValidated},
		},
	}
	bigSample := &model.MarketIntelligence{
		Benchmarks: model.Benchmarks{SampleSize: 412},
	}
	fullMarket := &model.MarketIntelligence{
		Benchmarks: model.Benchmarks{SampleSize: 412},
		Competitors: []model.Competitor{
			{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"},
		},
	}

	tests := []struct {
		name      string
		reasoning *model.ReasoningResult
		market    *model.MarketIntelligence
		want      float64
	}{
		{"nothing", nil, nil, 0.5},
		{"unscored recommendation", &model.ReasoningResult{}, nil, 0.5},
		{"scored recommendation", scored, nil, 0.7},
		{"scored plus insight", withInsight, nil, 0.8},
		{"large sample", scored, bigSample, 0.8},
		{"sample at threshold", scored, &model.MarketIntelligence{Benchmarks: model.Benchmarks{SampleSize: 100}}, 0.7},
		{"three competitors no bonus", scored, &model.MarketIntelligence{
			Benchmarks:  model.Benchmarks{SampleSize: 412},
			Competitors: []model.Competitor{{Name: "a"}, {Name: "b"}, {Name: "c"}},
		}, 0.8},
		{"everything caps at one", withInsight, fullMarket, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ComputeConfidence(tt.reasoning, tt.market), 0.001)
		})
	}
}
