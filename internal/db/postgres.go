package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// schemaSQL is compiled into the binary so InitSchema works from any working directory.
//
//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned when a run ID has no stored run.
var ErrRunNotFound = errors.New("run not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	slog.Info("connected to PostgreSQL", "component", "db")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	return nil
}

// SaveRun stores a run and its rows in one transaction. Row positions keep the
// report order.
func (s *PostgresStore) SaveRun(ctx context.Context, run models.Run, rows []models.EvaluationRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertRunSQL := `
		INSERT INTO evaluation_runs (run_id, dataset, started_at, classifiers, row_count, failures)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(ctx, insertRunSQL,
		run.ID, run.Dataset, run.StartedAt, nonNil(run.Classifiers), run.RowCount, nonNil(run.Failures))
	if err != nil {
		return fmt.Errorf("failed to insert evaluation_runs: %w", err)
	}

	if len(rows) > 0 {
		insertRowSQL := `
			INSERT INTO evaluation_rows
			(run_id, position, classifier, feature, majority_label, minority_label,
			 majority_count, minority_count, a, b, c, d, likelihood_ratio, has_disparate_impact)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`
		batch := &pgx.Batch{}
		for i, r := range rows {
			batch.Queue(insertRowSQL,
				run.ID, i, r.Classifier, r.Feature, r.MajorityLabel, r.MinorityLabel,
				r.MajorityCount, r.MinorityCount, r.A, r.B, r.C, r.D,
				r.LikelihoodRatio, r.HasDisparateImpact,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert evaluation_rows: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListRuns returns one page of runs, newest first, plus the total count.
func (s *PostgresStore) ListRuns(ctx context.Context, page int, limit int) ([]models.Run, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var totalCount int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM evaluation_runs`).Scan(&totalCount); err != nil {
		return nil, 0, err
	}

	dataSQL := `
		SELECT run_id, dataset, started_at, classifiers, row_count, failures
		FROM evaluation_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.pool.Query(ctx, dataSQL, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := []models.Run{}
	for rows.Next() {
		var r models.Run
		if err := rows.Scan(&r.ID, &r.Dataset, &r.StartedAt, &r.Classifiers, &r.RowCount, &r.Failures); err != nil {
			return nil, 0, err
		}
		runs = append(runs, r)
	}
	return runs, totalCount, rows.Err()
}

// GetRun loads the metadata of one run.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (models.Run, error) {
	var r models.Run
	err := s.pool.QueryRow(ctx, `
		SELECT run_id, dataset, started_at, classifiers, row_count, failures
		FROM evaluation_runs WHERE run_id = $1`, runID).
		Scan(&r.ID, &r.Dataset, &r.StartedAt, &r.Classifiers, &r.RowCount, &r.Failures)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, ErrRunNotFound
	}
	return r, err
}

// GetRunRows returns the rows of one run in report order.
func (s *PostgresStore) GetRunRows(ctx context.Context, runID string) ([]models.EvaluationRow, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT classifier, feature, majority_label, minority_label, majority_count, minority_count,
		       a, b, c, d, likelihood_ratio, has_disparate_impact
		FROM evaluation_rows
		WHERE run_id = $1
		ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.EvaluationRow{}
	for rows.Next() {
		var r models.EvaluationRow
		if err := rows.Scan(&r.Classifier, &r.Feature, &r.MajorityLabel, &r.MinorityLabel,
			&r.MajorityCount, &r.MinorityCount, &r.A, &r.B, &r.C, &r.D,
			&r.LikelihoodRatio, &r.HasDisparateImpact); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DisparateCount returns how many stored rows are flagged, per classifier.
func (s *PostgresStore) DisparateCount(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT classifier, COUNT(*) FROM evaluation_rows
		WHERE has_disparate_impact
		GROUP BY classifier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var classifier string
		var n int
		if err := rows.Scan(&classifier, &n); err != nil {
			return nil, err
		}
		out[classifier] = n
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
