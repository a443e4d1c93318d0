package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview-partners/diligence-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Create(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO analysis_jobs`).
		WithArgs("job-1", "alice", "processing",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job := &model.AnalysisJob{
		JobID:     "job-1",
		OwnerID:   "alice",
		Status:    model.JobStatusProcessing,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Create(context.Background(), job))
}

func TestPostgresStore_SaveProgressMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE analysis_jobs SET progress`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "job-x").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ev := model.ProgressEvent{JobID: "job-x", Stage: model.StageExtracting, Percent: 12}
	assert.ErrorIs(t, s.SaveProgress(context.Background(), "job-x", ev), ErrNotFound)
}

func TestPostgresStore_SaveResult(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE analysis_jobs SET result`).
		WithArgs(pgxmock.AnyArg(), "completed", pgxmock.AnyArg(), "job-1", "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	job := &model.AnalysisJob{JobID: "job-1", Status: model.JobStatusCompleted}
	require.NoError(t, s.SaveResult(context.Background(), "job-1", job))
}

func TestPostgresStore_SaveResultAlreadyTerminal(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE analysis_jobs SET result`).
		WithArgs(pgxmock.AnyArg(), "failed", pgxmock.AnyArg(), "job-1", "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT status FROM analysis_jobs`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("completed"))

	job := &model.AnalysisJob{JobID: "job-1", Status: model.JobStatusFailed}
	assert.ErrorIs(t, s.SaveResult(context.Background(), "job-1", job), ErrTerminal)
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockStore(t)

	job := model.AnalysisJob{JobID: "job-1", Status: model.JobStatusCompleted, CompanyName: "Acme"}
	snap, err := json.Marshal(job)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT result FROM analysis_jobs`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow(snap))

	got, err := s.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.CompanyName)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
}

func TestPostgresStore_LatestProgressNull(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT progress FROM analysis_jobs`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"progress"}).AddRow([]byte(nil)))

	ev, err := s.LatestProgress(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockStore(t)

	a, _ := json.Marshal(model.AnalysisJob{JobID: "a", Status: model.JobStatusCompleted})
	b, _ := json.Marshal(model.AnalysisJob{JobID: "b", Status: model.JobStatusCompleted})

	mock.ExpectQuery(`SELECT result FROM analysis_jobs WHERE 1=1 AND status`).
		WithArgs("completed", 100).
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow(a).AddRow(b))

	jobs, err := s.List(context.Background(), JobFilter{Status: model.JobStatusCompleted})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].JobID)
}

func TestPostgresStore_Delete(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM analysis_jobs`).
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	ok, err := s.Delete(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
