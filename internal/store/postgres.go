package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/harborview-partners/diligence-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements JobStore using a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'processing',
	result     JSONB NOT NULL,
	progress   JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status ON analysis_jobs(status);
CREATE INDEX IF NOT EXISTS idx_analysis_jobs_owner ON analysis_jobs(owner_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, job *model.AnalysisJob) error {
	snap, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (id, owner_id, status, result, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		job.JobID, job.OwnerID, string(job.Status), snap, now, now,
	)
	return eris.Wrapf(err, "postgres: insert job %s", job.JobID)
}

func (s *PostgresStore) SaveProgress(ctx context.Context, jobID string, ev model.ProgressEvent) error {
	snap, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal progress")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET progress = $1, updated_at = $2 WHERE id = $3`,
		snap, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save progress %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, jobID string, job *model.AnalysisJob) error {
	snap, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET result = $1, status = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		snap, string(job.Status), time.Now().UTC(), jobID, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save result %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.pool.QueryRow(ctx, `SELECT status FROM analysis_jobs WHERE id = $1`, jobID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: check status %s", jobID)
		}
		return ErrTerminal
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	var snap []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM analysis_jobs WHERE id = $1`, jobID,
	).Scan(&snap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}

	var job model.AnalysisJob
	if err := json.Unmarshal(snap, &job); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal job %s", jobID)
	}
	return &job, nil
}

func (s *PostgresStore) LatestProgress(ctx context.Context, jobID string) (*model.ProgressEvent, error) {
	var snap []byte
	err := s.pool.QueryRow(ctx,
		`SELECT progress FROM analysis_jobs WHERE id = $1`, jobID,
	).Scan(&snap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get progress %s", jobID)
	}
	if len(snap) == 0 {
		return nil, nil
	}

	var ev model.ProgressEvent
	if err := json.Unmarshal(snap, &ev); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal progress %s", jobID)
	}
	return &ev, nil
}

func (s *PostgresStore) List(ctx context.Context, filter JobFilter) ([]model.AnalysisJob, error) {
	query := `SELECT result FROM analysis_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		query += ` AND owner_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.AnalysisJob
	for rows.Next() {
		var snap []byte
		if err := rows.Scan(&snap); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		var job model.AnalysisJob
		if err := json.Unmarshal(snap, &job); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job")
		}
		jobs = append(jobs, job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) Delete(ctx context.Context, jobID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM analysis_jobs WHERE id = $1`, jobID)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: delete job %s", jobID)
	}
	return tag.RowsAffected() > 0, nil
}
