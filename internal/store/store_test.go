package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview-partners/diligence-cli/internal/model"
)

// newStores returns one of each backend suitable for contract testing.
func newStores(t *testing.T) map[string]JobStore {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(context.Background()))
	t.Cleanup(func() { sqlite.Close() })

	return map[string]JobStore{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func newJob(owner string) *model.AnalysisJob {
	return &model.AnalysisJob{
		JobID:     uuid.New().String(),
		OwnerID:   owner,
		Status:    model.JobStatusProcessing,
		CreatedAt: time.Now().UTC(),
	}
}

func TestJobStore_CreateAndGet(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob("owner-1")
			require.NoError(t, s.Create(ctx, job))

			got, err := s.Get(ctx, job.JobID)
			require.NoError(t, err)
			assert.Equal(t, job.JobID, got.JobID)
			assert.Equal(t, model.JobStatusProcessing, got.Status)
			assert.Equal(t, "owner-1", got.OwnerID)
		})
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "no-such-job")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestJobStore_ProgressLastWriterWins(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob("")
			require.NoError(t, s.Create(ctx, job))

			first := model.ProgressEvent{JobID: job.JobID, Stage: model.StageExtracting, Percent: 10, Timestamp: time.Now().UTC()}
			second := model.ProgressEvent{JobID: job.JobID, Stage: model.StageReasoning, Percent: 55, Timestamp: time.Now().UTC()}
			require.NoError(t, s.SaveProgress(ctx, job.JobID, first))
			require.NoError(t, s.SaveProgress(ctx, job.JobID, second))

			latest, err := s.LatestProgress(ctx, job.JobID)
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, model.StageReasoning, latest.Stage)
			assert.InDelta(t, 55, latest.Percent, 0.001)
		})
	}
}

func TestJobStore_NoProgressYet(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob("")
			require.NoError(t, s.Create(ctx, job))

			latest, err := s.LatestProgress(ctx, job.JobID)
			require.NoError(t, err)
			assert.Nil(t, latest)
		})
	}
}

func TestJobStore_SingleTerminalWrite(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob("")
			require.NoError(t, s.Create(ctx, job))

			done := time.Now().UTC()
			job.Status = model.JobStatusCompleted
			job.CompletedAt = &done
			job.Confidence = 0.8
			require.NoError(t, s.SaveResult(ctx, job.JobID, job))

			// A second terminal write for the same job is rejected and
			// changes nothing.
			overwrite := *job
			overwrite.Status = model.JobStatusFailed
			overwrite.Error = "late failure"
			assert.ErrorIs(t, s.SaveResult(ctx, job.JobID, &overwrite), ErrTerminal)

			got, err := s.Get(ctx, job.JobID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusCompleted, got.Status)
			assert.Empty(t, got.Error)
			assert.InDelta(t, 0.8, got.Confidence, 0.001)
		})
	}
}

func TestJobStore_SaveResultMissingJob(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			job := newJob("")
			job.Status = model.JobStatusCompleted
			err := s.SaveResult(context.Background(), job.JobID, job)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestJobStore_ListFiltersAndOrders(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			a := newJob("alice")
			b := newJob("bob")
			c := newJob("alice")
			for _, j := range []*model.AnalysisJob{a, b, c} {
				require.NoError(t, s.Create(ctx, j))
			}

			c.Status = model.JobStatusCompleted
			require.NoError(t, s.SaveResult(ctx, c.JobID, c))

			byOwner, err := s.List(ctx, JobFilter{OwnerID: "alice"})
			require.NoError(t, err)
			assert.Len(t, byOwner, 2)

			completed, err := s.List(ctx, JobFilter{Status: model.JobStatusCompleted})
			require.NoError(t, err)
			require.Len(t, completed, 1)
			assert.Equal(t, c.JobID, completed[0].JobID)

			limited, err := s.List(ctx, JobFilter{Limit: 2})
			require.NoError(t, err)
			assert.Len(t, limited, 2)
		})
	}
}

func TestJobStore_Delete(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob("")
			require.NoError(t, s.Create(ctx, job))

			ok, err := s.Delete(ctx, job.JobID)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.Delete(ctx, job.JobID)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = s.Get(ctx, job.JobID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryStore_SnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	job := newJob("")
	job.CompanyName = "Acme"
	require.NoError(t, s.Create(ctx, job))

	// Mutating the caller's instance must not leak into stored state.
	job.CompanyName = "Changed"

	got, err := s.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.CompanyName)
}
