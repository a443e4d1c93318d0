package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harborview-partners/diligence-cli/internal/model"
	"github.com/harborview-partners/diligence-cli/internal/store"
)

// band maps a stage's internal 0-100 completion onto a slice of the
// job-level percentage.
type band struct {
	lo, hi float64
}

// remap converts a within-stage completion (0-100) to the overall job
// percentage.
func (b band) remap(sub float64) float64 {
	if sub < 0 {
		sub = 0
	}
	if sub > 100 {
		sub = 100
	}
	return b.lo + sub*(b.hi-b.lo)/100
}

var stageBands = map[model.Stage]band{
	model.StageExtracting:  {0, 40},
	model.StageReasoning:   {40, 75},
	model.StageMarketIntel: {75, 90},
	model.StageGuidance:    {90, 98},
	model.StagePersisting:  {98, 100},
}

// publisher fans progress events out to subscribers and persists the
// latest event per job. Overall percent never moves backwards.
type publisher struct {
	jobID string
	store store.JobStore

	mu      sync.Mutex
	last    float64
	subs    []chan model.ProgressEvent
	closed  bool
	history []model.ProgressEvent
}

func newPublisher(jobID string, st store.JobStore) *publisher {
	return &publisher{jobID: jobID, store: st}
}

// subscribe registers a channel that receives every event from this point
// on, starting with the most recent event if one exists. The channel is
// closed when the job reaches a terminal stage.
func (p *publisher) subscribe() <-chan model.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan model.ProgressEvent, 16)
	if n := len(p.history); n > 0 {
		ch <- p.history[n-1]
	}
	if p.closed {
		close(ch)
		return ch
	}
	p.subs = append(p.subs, ch)
	return ch
}

// stage emits a progress event for a stage at the given within-stage
// completion.
func (p *publisher) stage(ctx context.Context, stage model.Stage, sub float64, message string) {
	overall := sub
	if b, ok := stageBands[stage]; ok {
		overall = b.remap(sub)
	}
	p.emit(ctx, stage, overall, message)
}

func (p *publisher) emit(ctx context.Context, stage model.Stage, overall float64, message string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if overall < p.last {
		overall = p.last
	}
	p.last = overall

	ev := model.ProgressEvent{
		JobID:     p.jobID,
		Stage:     stage,
		Percent:   overall,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	p.history = append(p.history, ev)
	subs := make([]chan model.ProgressEvent, len(p.subs))
	copy(subs, p.subs)
	terminal := stage == model.StageCompleted || stage == model.StageFailed
	if terminal {
		p.closed = true
		p.subs = nil
	}
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; it will resync from the store.
		}
		if terminal {
			close(ch)
		}
	}

	if err := p.store.SaveProgress(ctx, p.jobID, ev); err != nil {
		zap.L().Warn("pipeline: persist progress",
			zap.String("job_id", p.jobID),
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
	}
}

// events returns a copy of everything emitted so far, oldest first.
func (p *publisher) events() []model.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ProgressEvent, len(p.history))
	copy(out, p.history)
	return out
}
