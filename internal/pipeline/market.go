package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harborview-partners/diligence-cli/internal/model"
	"github.com/harborview-partners/diligence-cli/pkg/marketdata"
)

// MarketPhase gathers benchmarks and competitor intelligence with two
// concurrent service calls. Each call falls back to deterministic data on
// failure, so the phase itself only errors on cancellation. The returned
// warnings note which halves fell back.
func MarketPhase(
	ctx context.Context,
	client marketdata.Client,
	company, industry, stage string,
	timeout time.Duration,
) (*model.MarketIntelligence, []string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log := zap.L().With(zap.String("company", company), zap.String("industry", industry))

	intel := &model.MarketIntelligence{GatheredAt: time.Now().UTC()}
	var benchWarn, compWarn string

	// The two lookups are independent; a failure in one must not cancel
	// the other, so errors stay inside the closures.
	g := new(errgroup.Group)

	g.Go(func() error {
		if client != nil {
			resp, err := client.GetBenchmarks(ctx, industry, stage)
			if err == nil {
				intel.Benchmarks = model.Benchmarks{
					AvgGrowthPct:     resp.AvgGrowthPct,
					MedianValuationM: resp.MedianValuationM,
					AvgMonthlyBurnK:  resp.AvgMonthlyBurnK,
					SampleSize:       resp.SampleSize,
					Industry:         resp.Industry,
					Stage:            resp.Stage,
				}
				return nil
			}
			log.Warn("pipeline: benchmark lookup failed", zap.Error(err))
		}
		intel.Benchmarks = fallbackBenchmarks(industry, stage)
		benchWarn = "market benchmarks estimated from historical averages"
		return nil
	})

	var competitors []model.Competitor
	var riskFactors, opportunities []string
	g.Go(func() error {
		if client != nil {
			resp, err := client.GetCompetitors(ctx, company, industry)
			if err == nil {
				for _, c := range resp.Competitors {
					competitors = append(competitors, model.Competitor{
						Name:        c.Name,
						Description: c.Description,
						Stage:       c.Stage,
						Funding:     c.Funding,
					})
				}
				riskFactors = resp.RiskFactors
				opportunities = resp.Opportunities
				return nil
			}
			log.Warn("pipeline: competitor lookup failed", zap.Error(err))
		}
		competitors, riskFactors, opportunities = fallbackCompetitors(industry)
		compWarn = "competitor landscape generated from industry profile"
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	// A stage timeout falls back to seeded data; only an outside
	// cancellation stops the job.
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, nil, ctx.Err()
	}

	var warnings []string
	if benchWarn != "" {
		warnings = append(warnings, benchWarn)
	}
	if compWarn != "" {
		warnings = append(warnings, compWarn)
	}

	intel.Competitors = competitors
	intel.RiskFactors = riskFactors
	intel.Opportunities = opportunities
	return intel, warnings, nil
}

// fallbackBenchmarks returns seeded industry averages used when the market
// data service is unreachable.
func fallbackBenchmarks(industry, stage string) model.Benchmarks {
	b := model.Benchmarks{
		AvgGrowthPct:     15,
		MedianValuationM: 8,
		AvgMonthlyBurnK:  75,
		SampleSize:       150,
		Industry:         industry,
		Stage:            stage,
	}
	switch strings.ReplaceAll(strings.ToLower(stage), " ", "-") {
	case "seed", "pre-seed":
		b.MedianValuationM = 6
		b.AvgMonthlyBurnK = 50
	case "series-a":
		b.MedianValuationM = 25
		b.AvgMonthlyBurnK = 180
	case "series-b":
		b.MedianValuationM = 75
		b.AvgMonthlyBurnK = 450
	}
	return b
}

func fallbackCompetitors(industry string) ([]model.Competitor, []string, []string) {
	competitors := []model.Competitor{
		{Name: "Established incumbent", Description: fmt.Sprintf("Large %s player with significant market share", industry), Stage: "public"},
		{Name: "Well-funded challenger", Description: "Recent entrant with substantial venture backing", Stage: "growth"},
	}
	riskFactors := []string{
		fmt.Sprintf("Competitive intensity in %s may compress margins", industry),
		"Incumbents can outspend early entrants on distribution",
	}
	opportunities := []string{
		fmt.Sprintf("Fragmented segments of %s remain underserved", industry),
		"Early category positioning can compound into a durable brand advantage",
	}
	return competitors, riskFactors, opportunities
}
