package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/model"
)

// RecordFitRun stores the summary of a published fit.
func (s *SQLiteStorage) RecordFitRun(ctx context.Context, run *model.FitRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFitRun(run); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fit_runs (
			run_id, created_at, criterion, criterion_value, weighting,
			k, customers, products, transactions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		run.CreatedAt.UTC(),
		run.Criterion,
		run.CriterionValue,
		run.Weighting,
		run.K,
		run.Customers,
		run.Products,
		run.Transactions,
	)
	if err != nil {
		return fmt.Errorf("failed to record fit run %s: %w", run.RunID, err)
	}
	return nil
}

// ListFitRuns returns recorded fits, newest first. limit <= 0 returns all of them.
func (s *SQLiteStorage) ListFitRuns(ctx context.Context, limit int) ([]model.FitRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT run_id, created_at, criterion, criterion_value, weighting,
		       k, customers, products, transactions
		FROM fit_runs
		ORDER BY created_at DESC, run_id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fit runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.FitRun
	for rows.Next() {
		run, err := scanFitRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetFitRun retrieves one recorded fit.
func (s *SQLiteStorage) GetFitRun(ctx context.Context, runID string) (*model.FitRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, created_at, criterion, criterion_value, weighting,
		       k, customers, products, transactions
		FROM fit_runs
		WHERE run_id = ?
	`, runID)
	run, err := scanFitRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewNotFoundError("fit run", runID)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFitRun(row scanner) (*model.FitRun, error) {
	var run model.FitRun
	var criterionValue sql.NullFloat64
	err := row.Scan(
		&run.RunID,
		&run.CreatedAt,
		&run.Criterion,
		&criterionValue,
		&run.Weighting,
		&run.K,
		&run.Customers,
		&run.Products,
		&run.Transactions,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan fit run: %w", err)
	}
	run.CriterionValue = criterionValue.Float64
	return &run, nil
}
