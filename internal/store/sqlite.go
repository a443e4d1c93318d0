package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/harborview-partners/diligence-cli/internal/model"
)

// SQLiteStore implements JobStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'processing',
	result     TEXT NOT NULL,
	progress   TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status ON analysis_jobs(status);
CREATE INDEX IF NOT EXISTS idx_analysis_jobs_owner ON analysis_jobs(owner_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, job *model.AnalysisJob) error {
	snap, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_jobs (id, owner_id, status, result, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		job.JobID, job.OwnerID, string(job.Status), string(snap), now, now,
	)
	return eris.Wrapf(err, "sqlite: insert job %s", job.JobID)
}

func (s *SQLiteStore) SaveProgress(ctx context.Context, jobID string, ev model.ProgressEvent) error {
	snap, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal progress")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_jobs SET progress = ?, updated_at = ? WHERE id = ?`,
		string(snap), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save progress %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveResult(ctx context.Context, jobID string, job *model.AnalysisJob) error {
	snap, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	// The status guard makes the terminal write first-writer-wins.
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_jobs SET result = ?, status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(snap), string(job.Status), time.Now().UTC(), jobID, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save result %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		var status string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM analysis_jobs WHERE id = ?`, jobID).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: check status %s", jobID)
		}
		return ErrTerminal
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	var snap string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM analysis_jobs WHERE id = ?`, jobID,
	).Scan(&snap)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}

	var job model.AnalysisJob
	if err := json.Unmarshal([]byte(snap), &job); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal job %s", jobID)
	}
	return &job, nil
}

func (s *SQLiteStore) LatestProgress(ctx context.Context, jobID string) (*model.ProgressEvent, error) {
	var snap sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT progress FROM analysis_jobs WHERE id = ?`, jobID,
	).Scan(&snap)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get progress %s", jobID)
	}
	if !snap.Valid || snap.String == "" {
		return nil, nil
	}

	var ev model.ProgressEvent
	if err := json.Unmarshal([]byte(snap.String), &ev); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal progress %s", jobID)
	}
	return &ev, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter JobFilter) ([]model.AnalysisJob, error) {
	query := `SELECT result FROM analysis_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.AnalysisJob
	for rows.Next() {
		var snap string
		if err := rows.Scan(&snap); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		var job model.AnalysisJob
		if err := json.Unmarshal([]byte(snap), &job); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal job")
		}
		jobs = append(jobs, job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) Delete(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_jobs WHERE id = ?`, jobID)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: delete job %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}
