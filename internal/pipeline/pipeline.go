package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harborview-partners/diligence-cli/internal/classify"
	"github.com/harborview-partners/diligence-cli/internal/config"
	"github.com/harborview-partners/diligence-cli/internal/model"
	"github.com/harborview-partners/diligence-cli/internal/store"
	"github.com/harborview-partners/diligence-cli/pkg/docai"
	"github.com/harborview-partners/diligence-cli/pkg/knowledge"
	"github.com/harborview-partners/diligence-cli/pkg/marketdata"
)

// Options controls a single analysis submission.
type Options struct {
	OwnerID                   string
	Depth                     model.AnalysisDepth
	IncludeMarketIntelligence bool
	IncludeDueDiligence       bool
}

// DefaultOptions returns the standard comprehensive analysis settings.
func DefaultOptions() Options {
	return Options{
		Depth:                     model.DepthComprehensive,
		IncludeMarketIntelligence: true,
		IncludeDueDiligence:       true,
	}
}

// Orchestrator runs analysis jobs through extraction, reasoning, market
// intelligence, guidance, and persistence.
type Orchestrator struct {
	cfg       *config.Config
	store     store.JobStore
	extractor docai.Client
	engine    ReasoningEngine
	fallback  ReasoningEngine
	market    marketdata.Client
	knowledge knowledge.Client
	limits    classify.Limits

	mu   sync.Mutex
	jobs map[string]*jobState
	wg   sync.WaitGroup
}

type jobState struct {
	pub    *publisher
	cancel context.CancelCauseFunc
}

// New creates an Orchestrator. engine, market, and knowledge may be nil;
// the corresponding stages then run on their fallbacks.
func New(
	cfg *config.Config,
	st store.JobStore,
	extractor docai.Client,
	engine ReasoningEngine,
	market marketdata.Client,
	kb knowledge.Client,
) *Orchestrator {
	limits := classify.Limits{
		MaxFiles:       cfg.Pipeline.MaxFiles,
		DefaultSizeCap: cfg.Pipeline.MaxFileSizeMB << 20,
		SizeCaps: map[model.DocumentType]int64{
			model.DocTypePitchDeck: cfg.Pipeline.MaxDeckSizeMB << 20,
		},
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		extractor: extractor,
		engine:    engine,
		fallback:  NewFallbackEngine(),
		market:    market,
		knowledge: kb,
		limits:    limits,
		jobs:      make(map[string]*jobState),
	}
}

// errCanceledByUser is the cancellation cause set by Cancel.
var errCanceledByUser = errors.New("canceled by user")

// Submit validates a batch and starts an analysis job. Validation failures
// are returned synchronously as *classify.ValidationError and no job is
// created. On success the job runs in the background.
func (o *Orchestrator) Submit(ctx context.Context, batch []model.UploadedDocument, opts Options) (string, error) {
	classified, err := classify.ValidateBatch(batch, o.limits)
	if err != nil {
		return "", err
	}
	if opts.Depth == "" {
		opts.Depth = model.DepthComprehensive
	}

	jobID := uuid.New().String()
	job := &model.AnalysisJob{
		JobID:     jobID,
		OwnerID:   opts.OwnerID,
		Status:    model.JobStatusProcessing,
		Metadata:  model.AnalysisMetadata{Depth: opts.Depth},
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.Create(ctx, job); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	state := &jobState{
		pub:    newPublisher(jobID, o.store),
		cancel: cancel,
	}
	o.mu.Lock()
	o.jobs[jobID] = state
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(runCtx, job, classified, opts, state)
	}()

	return jobID, nil
}

func (o *Orchestrator) run(ctx context.Context, job *model.AnalysisJob, docs []model.ClassifiedDocument, opts Options, state *jobState) {
	log := zap.L().With(zap.String("job_id", job.JobID))
	pub := state.pub
	start := time.Now()

	pub.emit(ctx, model.StageValidating, 0, fmt.Sprintf("validated %d document(s)", len(docs)))

	// ===== Extraction =====
	pub.stage(ctx, model.StageExtracting, 0, "extracting documents")
	processed, warnings, err := ExtractPhase(ctx, docs, o.extractor,
		o.cfg.Pipeline.ExtractWorkers,
		time.Duration(o.cfg.Extraction.TimeoutSecs)*time.Second,
		func(done, total int) {
			pub.stage(ctx, model.StageExtracting, float64(done)*100/float64(total),
				fmt.Sprintf("extracted %d of %d documents", done, total))
		},
	)
	for _, w := range warnings {
		job.AddWarning(w)
	}
	if err != nil {
		o.fail(ctx, job, state, failureReason(ctx, err))
		return
	}
	if len(processed) == 0 {
		o.fail(ctx, job, state, ReasonNoUsableDocuments)
		return
	}
	if len(processed) > maxReasoningDocs {
		o.fail(ctx, job, state, ReasonTooManyDocuments)
		return
	}
	job.Documents = processed

	if o.canceled(ctx, job, state) {
		return
	}

	// ===== Reasoning =====
	pub.stage(ctx, model.StageReasoning, 0, "analyzing documents")
	reasoningDocs := make([]model.ReasoningDocument, len(processed))
	for i, d := range processed {
		reasoningDocs[i] = d.ToReasoningDocument()
	}

	reasoning, engineUsed, err := o.reason(ctx, reasoningDocs, opts.Depth, job)
	if err != nil {
		o.fail(ctx, job, state, failureReason(ctx, err))
		return
	}
	job.Metadata.EngineUsed = engineUsed
	job.CompanyName = reasoning.CompanyName
	job.Industry = reasoning.Industry
	job.FundingStage = reasoning.Stage
	job.Recommendation = reasoning.Recommendation
	job.KeyMetrics = reasoning.KeyMetrics
	job.RiskAssessment = reasoning.RiskAssessment
	job.CrossDocumentInsights = reasoning.CrossDocumentInsights
	job.Summary = reasoning.Summary
	// Downstream collaborator queries need non-empty display inputs.
	if job.CompanyName == "" {
		job.CompanyName = "Unknown"
	}
	if job.Industry == "" {
		job.Industry = "Technology"
	}
	if job.FundingStage == "" {
		job.FundingStage = "Series A"
	}
	pub.stage(ctx, model.StageReasoning, 100, "analysis complete")

	if o.canceled(ctx, job, state) {
		return
	}

	// ===== Market intelligence =====
	var market *model.MarketIntelligence
	if opts.IncludeMarketIntelligence {
		pub.stage(ctx, model.StageMarketIntel, 0, "gathering market intelligence")
		var marketWarnings []string
		market, marketWarnings, err = MarketPhase(ctx, o.market,
			job.CompanyName, job.Industry, job.FundingStage,
			time.Duration(o.cfg.Market.TimeoutSecs)*time.Second)
		if err != nil {
			o.fail(ctx, job, state, failureReason(ctx, err))
			return
		}
		for _, w := range marketWarnings {
			job.AddWarning(w)
		}
		job.MarketIntelligence = market
		pub.stage(ctx, model.StageMarketIntel, 100, "market intelligence gathered")
	}

	// ===== Due diligence guidance =====
	if opts.IncludeDueDiligence {
		pub.stage(ctx, model.StageGuidance, 0, "building due diligence checklist")
		guidance, warning, guidanceErr := GuidancePhase(ctx, o.knowledge,
			job.CompanyName, job.Industry, job.FundingStage, job.Recommendation.Label,
			time.Duration(o.cfg.Knowledge.TimeoutSecs)*time.Second)
		if guidanceErr != nil {
			o.fail(ctx, job, state, failureReason(ctx, guidanceErr))
			return
		}
		if warning != "" {
			job.AddWarning(warning)
		}
		job.DueDiligence = guidance
		pub.stage(ctx, model.StageGuidance, 100, "due diligence checklist ready")
	}

	job.Confidence = ComputeConfidence(reasoning, market)

	// A cancellation that arrived during the optional stages must not be
	// persisted as a completed result.
	if o.canceled(ctx, job, state) {
		return
	}

	// ===== Persistence =====
	pub.stage(ctx, model.StagePersisting, 0, "saving results")
	saveCtx := context.WithoutCancel(ctx)
	now := time.Now().UTC()
	job.Status = model.JobStatusCompleted
	job.CompletedAt = &now
	if err := o.store.SaveResult(saveCtx, job.JobID, job); err != nil {
		if errors.Is(err, store.ErrTerminal) {
			log.Warn("pipeline: job already terminal, result discarded")
			o.finish(state)
			return
		}
		log.Error("pipeline: persist result", zap.Error(err))
		if o.cfg.Pipeline.FailOnPersistError {
			job.Status = model.JobStatusFailed
			o.fail(ctx, job, state, "persistence failed")
			return
		}
		job.AddWarning("result persistence failed; returning in-memory result")
	}

	pub.emit(saveCtx, model.StageCompleted, 100, "analysis complete")
	o.finish(state)
	log.Info("pipeline: job completed",
		zap.String("company", job.CompanyName),
		zap.String("verdict", job.Recommendation.Label),
		zap.Float64("confidence", job.Confidence),
		zap.Duration("duration", time.Since(start)),
	)
}

// reason runs the configured engine and falls back to the deterministic
// engine when the live one is missing or fails.
func (o *Orchestrator) reason(ctx context.Context, docs []model.ReasoningDocument, depth model.AnalysisDepth, job *model.AnalysisJob) (*model.ReasoningResult, string, error) {
	if o.engine != nil {
		result, err := o.engine.Reason(ctx, docs, depth)
		if err == nil {
			return result, o.engine.Name(), nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		var collab *CollaboratorError
		if !errors.As(err, &collab) {
			return nil, "", err
		}
		zap.L().Warn("pipeline: reasoning engine failed, using fallback",
			zap.String("job_id", job.JobID),
			zap.Error(err),
		)
		job.AddWarning("analysis produced by fallback engine; reasoning service unavailable")
	}

	result, err := o.fallback.Reason(ctx, docs, depth)
	if err != nil {
		return nil, "", err
	}
	return result, o.fallback.Name(), nil
}

// canceled fails the job with the Canceled reason when its context is done.
// Stage boundaries and the terminal save gate on it so a cancellation that
// lands between collaborator calls still stops the job.
func (o *Orchestrator) canceled(ctx context.Context, job *model.AnalysisJob, state *jobState) bool {
	if ctx.Err() == nil {
		return false
	}
	o.fail(ctx, job, state, ReasonCanceled)
	return true
}

// failureReason maps a stage error to the reason recorded on the job.
func failureReason(ctx context.Context, err error) string {
	if errors.Is(err, context.Canceled) || context.Cause(ctx) != nil {
		return ReasonCanceled
	}
	return err.Error()
}

func (o *Orchestrator) fail(ctx context.Context, job *model.AnalysisJob, state *jobState, reason string) {
	// Terminal writes must land even when the job context is canceled.
	saveCtx := context.WithoutCancel(ctx)

	now := time.Now().UTC()
	job.Status = model.JobStatusFailed
	job.Error = reason
	job.CompletedAt = &now
	if err := o.store.SaveResult(saveCtx, job.JobID, job); err != nil && !errors.Is(err, store.ErrTerminal) {
		zap.L().Error("pipeline: persist failed job",
			zap.String("job_id", job.JobID),
			zap.Error(err),
		)
	}
	state.pub.emit(saveCtx, model.StageFailed, 0, reason)
	o.finish(state)
	zap.L().Info("pipeline: job failed",
		zap.String("job_id", job.JobID),
		zap.String("reason", reason),
	)
}

func (o *Orchestrator) finish(state *jobState) {
	state.cancel(nil)
	o.mu.Lock()
	for id, s := range o.jobs {
		if s == state {
			delete(o.jobs, id)
			break
		}
	}
	o.mu.Unlock()
}

// Cancel stops a running job. It returns false when the job is unknown or
// already terminal.
func (o *Orchestrator) Cancel(jobID string) bool {
	o.mu.Lock()
	state, ok := o.jobs[jobID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	state.cancel(errCanceledByUser)
	return true
}

// Subscribe returns a channel of progress events for a job. For running
// jobs the channel starts with the latest event and closes on completion.
// For finished or unknown jobs it replays the latest persisted event, if
// any, and closes immediately.
func (o *Orchestrator) Subscribe(ctx context.Context, jobID string) (<-chan model.ProgressEvent, error) {
	o.mu.Lock()
	state, ok := o.jobs[jobID]
	o.mu.Unlock()
	if ok {
		return state.pub.subscribe(), nil
	}

	if _, err := o.store.Get(ctx, jobID); err != nil {
		return nil, err
	}
	ch := make(chan model.ProgressEvent, 1)
	if ev, err := o.store.LatestProgress(ctx, jobID); err == nil && ev != nil {
		ch <- *ev
	}
	close(ch)
	return ch, nil
}

// GetResult fetches the current state of a job from the store.
func (o *Orchestrator) GetResult(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	return o.store.Get(ctx, jobID)
}

// Close cancels all running jobs and waits for them to wind down.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	for _, state := range o.jobs {
		state.cancel(errors.New("orchestrator shutting down"))
	}
	o.mu.Unlock()
	o.wg.Wait()
}
