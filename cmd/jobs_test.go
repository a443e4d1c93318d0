package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harborview-partners/diligence-cli/internal/model"
)

func completedJob(id, company, verdict string, conf float64, dur time.Duration) model.AnalysisJob {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	done := created.Add(dur)
	return model.AnalysisJob{
		JobID:       id,
		Status:      model.JobStatusCompleted,
		CompanyName: company,
		Recommendation: model.Recommendation{
			Label: verdict,
			Score: 70,
		},
		Confidence:  conf,
		CreatedAt:   created,
		CompletedAt: &done,
	}
}

func TestComputeJobStats(t *testing.T) {
	jobs := []model.AnalysisJob{
		completedJob("a", "Acme", model.VerdictInvest, 0.8, 40*time.Second),
		completedJob("b", "Globex", model.VerdictCaution, 0.6, 20*time.Second),
		{JobID: "c", Status: model.JobStatusFailed},
		{JobID: "d", Status: model.JobStatusProcessing},
	}

	s := computeJobStats(jobs)

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Processing)
	assert.Equal(t, 1, s.ByVerdict[model.VerdictInvest])
	assert.Equal(t, 1, s.ByVerdict[model.VerdictCaution])
	assert.InDelta(t, 0.7, s.AvgConfidence, 1e-9)
	assert.InDelta(t, 30.0, s.AvgDurSecs, 1e-9)
}

func TestComputeJobStats_Empty(t *testing.T) {
	s := computeJobStats(nil)
	assert.Equal(t, 0, s.Total)
	assert.Zero(t, s.AvgConfidence)
	assert.Zero(t, s.AvgDurSecs)
}

func TestFormatJobsList(t *testing.T) {
	var buf bytes.Buffer
	formatJobsList(&buf, []model.AnalysisJob{
		completedJob("0123456789abcdef", "A Very Long Company Name That Keeps Going", model.VerdictInvest, 0.8, time.Minute),
	})

	out := buf.String()
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "89abcdef")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, model.VerdictInvest)
	assert.Contains(t, out, "2026-03-14")
}

func TestFormatJobStats(t *testing.T) {
	var buf bytes.Buffer
	formatJobStats(&buf, jobStats{
		Total:         3,
		Completed:     2,
		Failed:        1,
		ByVerdict:     map[string]int{model.VerdictPass: 2},
		AvgConfidence: 0.75,
		AvgDurSecs:    12.5,
	})

	out := buf.String()
	assert.Contains(t, out, "Total jobs:")
	assert.Contains(t, out, model.VerdictPass)
	assert.Contains(t, out, "0.75")
	assert.Contains(t, out, "12.5s")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("1234567890"))
	assert.Equal(t, "short", truncateID("short"))
}
