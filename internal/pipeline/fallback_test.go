package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview-partners/diligence-cli/internal/model"
)

func TestFallbackEngine_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFallbackEngine().Reason(ctx,
		[]model.ReasoningDocument{{Name: "deck.pdf"}}, model.DepthComprehensive)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFallbackEngine(t *testing.T) {
	engine := NewFallbackEngine()
	docs := []model.ReasoningDocument{
		{ID: "d1", Name: "acme_pitch_deck.pdf", Type: model.DocTypePitchDeck, ExtractedText: "text"},
		{ID: "d2", Name: "acme_financial_model.xlsx", Type: model.DocTypeFinancialModel, ExtractedText: "text"},
	}

	result, err := engine.Reason(context.Background(), docs, model.DepthComprehensive)
	require.NoError(t, err)

	assert.Equal(t, "Acme", result.CompanyName)
	assert.Equal(t, model.VerdictCaution, result.Recommendation.Label)
	assert.Equal(t, 55, result.Recommendation.Score)
	assert.Equal(t, 75, result.Recommendation.CategoryScores.Founder)
	assert.Equal(t, 75, result.Recommendation.CategoryScores.Team)
	require.Len(t, result.RiskAssessment, 1)
	assert.Equal(t, "Limited analysis capability", result.RiskAssessment[0].Title)
	assert.Len(t, result.KeyMetrics, 2)
	assert.Equal(t, "fallback", engine.Name())
}

func TestGuessCompanyName(t *testing.T) {
	tests := []struct {
		name  string
		docs  []model.ReasoningDocument
		want  string
	}{
		{
			"from extracted fields",
			[]model.ReasoningDocument{{Name: "deck.pdf", ExtractedFields: map[string]any{"company_name": "Northwind Labs"}}},
			"Northwind Labs",
		},
		{
			"from filename",
			[]model.ReasoningDocument{{Name: "brightpath_pitch_deck_final.pdf"}},
			"Brightpath",
		},
		{
			"skips generic words",
			[]model.ReasoningDocument{{Name: "pitch_deck_final_v2.pdf"}},
			"Unknown Company",
		},
		{
			"skips currency and month tokens",
			[]model.ReasoningDocument{{Name: "usd_jan_raise.pdf"}},
			"Raise",
		},
		{
			"no documents",
			nil,
			"Unknown Company",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guessCompanyName(tt.docs))
		})
	}
}

func TestGuessIndustry(t *testing.T) {
	saas := []model.ReasoningDocument{{ExtractedFields: map[string]any{"sector": "saas"}}}
	assert.Equal(t, "Software as a Service", guessIndustry(saas))

	explicit := []model.ReasoningDocument{{ExtractedFields: map[string]any{"industry": "Logistics"}}}
	assert.Equal(t, "Logistics", guessIndustry(explicit))

	assert.Equal(t, "Technology", guessIndustry(nil))
}

func TestFallbackEngine_BasicDepth(t *testing.T) {
	engine := NewFallbackEngine()
	result, err := engine.Reason(context.Background(),
		[]model.ReasoningDocument{{Name: "deck.pdf"}}, model.DepthBasic)
	require.NoError(t, err)
	assert.Contains(t, result.Recommendation.Justification, "Limited automated review")
}
