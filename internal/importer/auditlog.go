package importer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ImportRun is one batch run in the audit log.
type ImportRun struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Summary    *Summary   `json:"summary,omitempty"`
}

// RunStore persists batch runs and their per-row outcomes so operators can
// audit past imports. The pipeline never reads this store during a run; every
// write is independently committed.
type RunStore interface {
	CreateRun(ctx context.Context, run *ImportRun) error
	RecordRow(ctx context.Context, runID string, row RowResult) error
	FinishRun(ctx context.Context, runID string, s Summary) error
	GetRun(ctx context.Context, id string) (*ImportRun, []RowResult, error)
}

// NewImportRun creates a run record with a fresh id.
func NewImportRun(source string) *ImportRun {
	return &ImportRun{
		ID:        uuid.New().String(),
		Source:    source,
		StartedAt: time.Now(),
	}
}

// ---------------------------------------------------------------------------
// InMemoryRunStore
// ---------------------------------------------------------------------------

// InMemoryRunStore is a thread-safe in-memory RunStore, used when no
// database is configured and in tests.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*ImportRun
	rows map[string][]RowResult
}

func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		runs: make(map[string]*ImportRun),
		rows: make(map[string][]RowResult),
	}
}

func (s *InMemoryRunStore) CreateRun(_ context.Context, run *ImportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *InMemoryRunStore) RecordRow(_ context.Context, runID string, row RowResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	s.rows[runID] = append(s.rows[runID], row)
	return nil
}

func (s *InMemoryRunStore) FinishRun(_ context.Context, runID string, sum Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	nowTS := time.Now()
	run.FinishedAt = &nowTS
	run.Summary = &sum
	return nil
}

func (s *InMemoryRunStore) GetRun(_ context.Context, id string) (*ImportRun, []RowResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, nil, fmt.Errorf("run %s not found", id)
	}
	return run, s.rows[id], nil
}

// ---------------------------------------------------------------------------
// PGRunStore
// ---------------------------------------------------------------------------

// PGRunStore persists the audit log to Postgres.
type PGRunStore struct {
	pool *pgxpool.Pool
}

func NewPGRunStore(pool *pgxpool.Pool) *PGRunStore {
	return &PGRunStore{pool: pool}
}

// EnsureSchema creates the audit tables when they do not exist yet.
func (s *PGRunStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS import_run (
			id UUID PRIMARY KEY,
			source TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			total_records INT,
			successful INT,
			failed INT,
			skipped INT,
			processing_seconds DOUBLE PRECISION
		);
		CREATE TABLE IF NOT EXISTS import_run_row (
			run_id UUID NOT NULL REFERENCES import_run(id),
			row_number INT NOT NULL,
			identifier TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL,
			PRIMARY KEY (run_id, row_number)
		)`)
	if err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *PGRunStore) CreateRun(ctx context.Context, run *ImportRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_run (id, source, started_at) VALUES ($1, $2, $3)`,
		run.ID, run.Source, run.StartedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *PGRunStore) RecordRow(ctx context.Context, runID string, row RowResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_run_row (run_id, row_number, identifier, status, message)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id, row_number) DO UPDATE
		   SET identifier = EXCLUDED.identifier, status = EXCLUDED.status, message = EXCLUDED.message`,
		runID, row.Row, row.Identifier, row.Status, row.Message)
	if err != nil {
		return fmt.Errorf("record row: %w", err)
	}
	return nil
}

func (s *PGRunStore) FinishRun(ctx context.Context, runID string, sum Summary) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE import_run
		 SET finished_at = now(), total_records = $2, successful = $3,
		     failed = $4, skipped = $5, processing_seconds = $6
		 WHERE id = $1`,
		runID, sum.TotalRecords, sum.Successful, sum.Failed, sum.Skipped, sum.ProcessingTimeSeconds)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (s *PGRunStore) GetRun(ctx context.Context, id string) (*ImportRun, []RowResult, error) {
	run := &ImportRun{}
	var sum Summary
	var hasSummary bool
	err := s.pool.QueryRow(ctx,
		`SELECT id, source, started_at, finished_at,
		        COALESCE(total_records, 0), COALESCE(successful, 0),
		        COALESCE(failed, 0), COALESCE(skipped, 0),
		        COALESCE(processing_seconds, 0), finished_at IS NOT NULL
		 FROM import_run WHERE id = $1`, id).
		Scan(&run.ID, &run.Source, &run.StartedAt, &run.FinishedAt,
			&sum.TotalRecords, &sum.Successful, &sum.Failed, &sum.Skipped,
			&sum.ProcessingTimeSeconds, &hasSummary)
	if err != nil {
		return nil, nil, fmt.Errorf("get run: %w", err)
	}
	if hasSummary {
		run.Summary = &sum
	}

	rows, err := s.pool.Query(ctx,
		`SELECT row_number, identifier, status, message
		 FROM import_run_row WHERE run_id = $1 ORDER BY row_number`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get run rows: %w", err)
	}
	defer rows.Close()

	var results []RowResult
	for rows.Next() {
		var rr RowResult
		if err := rows.Scan(&rr.Row, &rr.Identifier, &rr.Status, &rr.Message); err != nil {
			return nil, nil, fmt.Errorf("scan run row: %w", err)
		}
		results = append(results, rr)
	}
	return run, results, rows.Err()
}
