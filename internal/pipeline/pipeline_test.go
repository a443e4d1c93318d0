package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harborview-partners/diligence-cli/internal/classify"
	"github.com/harborview-partners/diligence-cli/internal/config"
	"github.com/harborview-partners/diligence-cli/internal/model"
	"github.com/harborview-partners/diligence-cli/internal/store"
	"github.com/harborview-partners/diligence-cli/pkg/docai"
	"github.com/harborview-partners/diligence-cli/pkg/marketdata"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Pipeline.MaxFiles = 10
	cfg.Pipeline.MaxFileSizeMB = 10
	cfg.Pipeline.MaxDeckSizeMB = 30
	cfg.Pipeline.ExtractWorkers = 4
	cfg.Extraction.TimeoutSecs = 5
	cfg.Market.TimeoutSecs = 5
	cfg.Knowledge.TimeoutSecs = 5
	return cfg
}

func uploadedDoc(name string, size int64) model.UploadedDocument {
	return model.UploadedDocument{
		Name:      name,
		MediaType: "application/pdf",
		SizeBytes: size,
		Content:   []byte("content"),
	}
}

func sampleReasoning() *model.ReasoningResult {
	return &model.ReasoningResult{
		CompanyName: "Acme Robotics",
		Industry:    "Artificial Intelligence & Machine Learning",
		Stage:       "seed",
		Recommendation: model.Recommendation{
			Label: model.VerdictInvest,
			Score: 78,
			CategoryScores: model.CategoryScores{
				Founder: 82, Market: 75, Differentiation: 80, Team: 78,
			},
		},
		CrossDocumentInsights: []model.CrossDocumentInsight{
			{Kind: "consistency", Title: "Revenue matches", Status: model.InsightValidated},
		},
	}
}

// waitTerminal drains progress events until the job reaches a terminal
// stage, returning every observed event.
func waitTerminal(t *testing.T, o *Orchestrator, jobID string) []model.ProgressEvent {
	t.Helper()
	ch, err := o.Subscribe(context.Background(), jobID)
	require.NoError(t, err)

	var events []model.ProgressEvent
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("job did not reach a terminal stage")
		}
	}
}

func TestOrchestrator_CompletedFlow(t *testing.T) {
	ext := &MockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).
		Return(&docai.ExtractResponse{Text: "deck text", Confidence: 0.9, PageCount: 10}, nil)

	engine := &MockEngine{}
	engine.On("Reason", mock.Anything, mock.Anything, model.DepthComprehensive).
		Return(sampleReasoning(), nil)

	md := &MockMarket{}
	md.On("GetBenchmarks", mock.Anything, mock.Anything, mock.Anything).
		Return(&marketdata.BenchmarkResponse{SampleSize: 412}, nil)
	md.On("GetCompetitors", mock.Anything, "Acme Robotics", mock.Anything).
		Return(&marketdata.CompetitorResponse{
			Competitors: []marketdata.Competitor{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}},
		}, nil)

	kb := &MockKnowledge{}
	kb.On("GetGuidance", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	st := store.NewMemory()
	o := New(testConfig(), st, ext, engine, md, kb)
	defer o.Close()

	jobID, err := o.Submit(context.Background(), []model.UploadedDocument{
		uploadedDoc("acme_pitch_deck.pdf", 1024),
		uploadedDoc("acme_financials.xlsx", 2048),
	}, DefaultOptions())
	require.NoError(t, err)

	events := waitTerminal(t, o, jobID)
	require.NotEmpty(t, events)
	assert.Equal(t, model.StageCompleted, events[len(events)-1].Stage)

	// Percent only ever rises.
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Percent, events[i-1].Percent)
	}

	job, err := o.GetResult(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, "Acme Robotics", job.CompanyName)
	assert.Equal(t, model.VerdictInvest, job.Recommendation.Label)
	assert.Len(t, job.Documents, 2)
	require.NotNil(t, job.MarketIntelligence)
	assert.Equal(t, 412, job.MarketIntelligence.Benchmarks.SampleSize)
	require.NotNil(t, job.DueDiligence)
	assert.NotNil(t, job.CompletedAt)
	// Scored rec + insight + sample>100 + >3 competitors = 1.0.
	assert.InDelta(t, 1.0, job.Confidence, 0.001)
	// Guidance fell back, so its warning is recorded.
	assert.NotEmpty(t, job.Metadata.Warnings)
	assert.Equal(t, "mock", job.Metadata.EngineUsed)
}

func TestOrchestrator_ValidationFailsSynchronously(t *testing.T) {
	ext := &MockExtractor{}
	o := New(testConfig(), store.NewMemory(), ext, nil, nil, nil)
	defer o.Close()

	_, err := o.Submit(context.Background(), nil, DefaultOptions())
	var verr *classify.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, classify.ReasonEmptyBatch, verr.Code)

	// Oversized file names the offender.
	_, err = o.Submit(context.Background(), []model.UploadedDocument{
		uploadedDoc("huge_report.pdf", 11<<20),
	}, DefaultOptions())
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, classify.ReasonFileTooLarge, verr.Code)
	assert.Equal(t, "huge_report.pdf", verr.Detail)

	var batch []model.UploadedDocument
	for i := 0; i < 11; i++ {
		batch = append(batch, uploadedDoc(fmt.Sprintf("doc_%d.pdf", i), 1024))
	}
	_, err = o.Submit(context.Background(), batch, DefaultOptions())
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, classify.ReasonTooManyFiles, verr.Code)

	// A rejected batch never reaches the extraction service.
	ext.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestOrchestrator_NoUsableDocuments(t *testing.T) {
	ext := &MockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	st := store.NewMemory()
	o := New(testConfig(), st, ext, nil, nil, nil)
	defer o.Close()

	jobID, err := o.Submit(context.Background(), []model.UploadedDocument{
		uploadedDoc("deck.pdf", 1024),
	}, DefaultOptions())
	require.NoError(t, err)

	events := waitTerminal(t, o, jobID)
	assert.Equal(t, model.StageFailed, events[len(events)-1].Stage)

	job, err := o.GetResult(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, ReasonNoUsableDocuments, job.Error)
}

func TestOrchestrator_FallbackEngine(t *testing.T) {
	ext := &MockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).
		Return(&docai.ExtractResponse{Text: "deck text", Confidence: 0.9}, nil)

	engine := &MockEngine{}
	engine.On("Reason", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &CollaboratorError{Service: "anthropic", Op: "reason", Err: assert.AnError})

	st := store.NewMemory()
	o := New(testConfig(), st, ext, engine, nil, nil)
	defer o.Close()

	jobID, err := o.Submit(context.Background(), []model.UploadedDocument{
		uploadedDoc("northwind_pitch_deck.pdf", 1024),
	}, DefaultOptions())
	require.NoError(t, err)
	waitTerminal(t, o, jobID)

	job, err := o.GetResult(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, "fallback", job.Metadata.EngineUsed)
	assert.Equal(t, model.VerdictCaution, job.Recommendation.Label)
	assert.Equal(t, 55, job.Recommendation.Score)
	assert.Equal(t, "Northwind", job.CompanyName)
	assert.Contains(t, job.Metadata.Warnings[0], "fallback engine")
	// Market fell back too; seeded benchmarks carry the fixed sample.
	require.NotNil(t, job.MarketIntelligence)
	assert.Equal(t, 150, job.MarketIntelligence.Benchmarks.SampleSize)
}

func TestOrchestrator_SkipOptionalStages(t *testing.T) {
	ext := &MockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).
		Return(&docai.ExtractResponse{Text: "deck text", Confidence: 0.9}, nil)

	engine := &MockEngine{}
	engine.On("Reason", mock.Anything, mock.Anything, mock.Anything).Return(sampleReasoning(), nil)

	st := store.NewMemory()
	o := New(testConfig(), st, ext, engine, nil, nil)
	defer o.Close()

	opts := DefaultOptions()
	opts.IncludeMarketIntelligence = false
	opts.IncludeDueDiligence = false

	jobID, err := o.Submit(context.Background(), []model.UploadedDocument{
		uploadedDoc("deck.pdf", 1024),
	}, opts)
	require.NoError(t, err)
	waitTerminal(t, o, jobID)

	job, err := o.GetResult(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Nil(t, job.MarketIntelligence)
	assert.Nil(t, job.DueDiligence)
	// No market data: scored rec + insight only.
	assert.InDelta(t, 0.8, job.Confidence, 0.001)
}

func TestOrchestrator_Cancel(t *testing.T) {
	ext := &MockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		<-ctx.Done()
	}).Return(nil, context.Canceled)

	st := store.NewMemory()
	o := New(testConfig(), st, ext, nil, nil, nil)
	defer o.Close()

	jobID, err := o.Submit(context.Background(), []model.UploadedDocument{
		uploadedDoc("deck.pdf", 1024),
	}, DefaultOptions())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return o.Cancel(jobID) }, time.Second, 10*time.Millisecond)

	events := waitTerminal(t, o, jobID)
	assert.Equal(t, model.StageFailed, events[len(events)-1].Stage)

	job, err := o.GetResult(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, ReasonCanceled, job.Error)
}

func TestOrchestrator_CancelBeforePersistenceIsNotCompleted(t *testing.T) {
	// Extraction blocks until the job is canceled, then reports success.
	// The cancellation must still win: no completed record may be saved.
	release := make(chan struct{})
	ext := &MockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		<-release
	}).Return(&docai.ExtractResponse{Text: "deck text", Confidence: 0.9}, nil)

	st := store.NewMemory()
	o := New(testConfig(), st, ext, nil, nil, nil)
	defer o.Close()

	opts := DefaultOptions()
	opts.IncludeMarketIntelligence = false
	opts.IncludeDueDiligence = false

	jobID, err := o.Submit(context.Background(), []model.UploadedDocument{
		uploadedDoc("deck.pdf", 1024),
	}, opts)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return o.Cancel(jobID) }, time.Second, 10*time.Millisecond)
	close(release)

	waitTerminal(t, o, jobID)

	job, err := o.GetResult(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, ReasonCanceled, job.Error)
}

func TestOrchestrator_DefaultsMarketInputs(t *testing.T) {
	ext := &MockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).
		Return(&docai.ExtractResponse{Text: "deck text", Confidence: 0.9}, nil)

	// The engine names no industry or stage; the collaborator queries
	// must still carry the display defaults.
	reasoning := sampleReasoning()
	reasoning.Industry = ""
	reasoning.Stage = ""
	engine := &MockEngine{}
	engine.On("Reason", mock.Anything, mock.Anything, mock.Anything).Return(reasoning, nil)

	md := &MockMarket{}
	md.On("GetBenchmarks", mock.Anything, "Technology", "Series A").
		Return(&marketdata.BenchmarkResponse{Industry: "Technology", Stage: "Series A", SampleSize: 40}, nil)
	md.On("GetCompetitors", mock.Anything, "Acme Robotics", "Technology").
		Return(&marketdata.CompetitorResponse{}, nil)

	st := store.NewMemory()
	o := New(testConfig(), st, ext, engine, md, nil)
	defer o.Close()

	opts := DefaultOptions()
	opts.IncludeDueDiligence = false

	jobID, err := o.Submit(context.Background(), []model.UploadedDocument{
		uploadedDoc("deck.pdf", 1024),
	}, opts)
	require.NoError(t, err)
	waitTerminal(t, o, jobID)

	job, err := o.GetResult(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, "Technology", job.Industry)
	assert.Equal(t, "Series A", job.FundingStage)
	md.AssertExpectations(t)
}

func TestOrchestrator_TooManyReasoningDocuments(t *testing.T) {
	ext := &MockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).
		Return(&docai.ExtractResponse{Text: "deck text", Confidence: 0.9}, nil)

	// A raised batch ceiling must not push more documents into reasoning
	// than a single call accepts.
	cfg := testConfig()
	cfg.Pipeline.MaxFiles = 12

	st := store.NewMemory()
	o := New(cfg, st, ext, nil, nil, nil)
	defer o.Close()

	var batch []model.UploadedDocument
	for i := 0; i < 11; i++ {
		batch = append(batch, uploadedDoc(fmt.Sprintf("doc_%d.pdf", i), 1024))
	}
	jobID, err := o.Submit(context.Background(), batch, DefaultOptions())
	require.NoError(t, err)
	waitTerminal(t, o, jobID)

	job, err := o.GetResult(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, ReasonTooManyDocuments, job.Error)
}

func TestOrchestrator_CancelUnknownJob(t *testing.T) {
	o := New(testConfig(), store.NewMemory(), &MockExtractor{}, nil, nil, nil)
	defer o.Close()
	assert.False(t, o.Cancel("no-such-job"))
}

func TestOrchestrator_SubscribeFinishedJob(t *testing.T) {
	ext := &MockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).
		Return(&docai.ExtractResponse{Text: "deck text", Confidence: 0.9}, nil)

	st := store.NewMemory()
	o := New(testConfig(), st, ext, nil, nil, nil)
	defer o.Close()

	opts := DefaultOptions()
	opts.IncludeMarketIntelligence = false
	opts.IncludeDueDiligence = false

	jobID, err := o.Submit(context.Background(), []model.UploadedDocument{
		uploadedDoc("deck.pdf", 1024),
	}, opts)
	require.NoError(t, err)
	waitTerminal(t, o, jobID)

	// A late subscriber gets the persisted terminal event and a closed
	// channel.
	ch, err := o.Subscribe(context.Background(), jobID)
	require.NoError(t, err)
	ev, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, model.StageCompleted, ev.Stage)
	_, ok = <-ch
	assert.False(t, ok)
}

func TestOrchestrator_SubscribeUnknownJob(t *testing.T) {
	o := New(testConfig(), store.NewMemory(), &MockExtractor{}, nil, nil, nil)
	defer o.Close()

	_, err := o.Subscribe(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
