package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/shopper-spectrum/internal/model"
	"github.com/Veraticus/shopper-spectrum/internal/service"
)

// SaveTransactions stores cleaned transactions, skipping lines already present. Identical
// lines repeated within one batch are all kept. It returns the number of new rows. source records where the lines came from, usually a file name.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction, source string) (int, error) {
	// Validate inputs
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := s.saveTransactionsTx(ctx, tx, transactions, source)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return inserted, nil
}

func (s *SQLiteStorage) saveTransactionsTx(ctx context.Context, tx *sql.Tx, transactions []model.Transaction, source string) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			hash, invoice_id, stock_code, description, quantity,
			unit_price, invoice_date, customer_id, country, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	hasher := model.NewLineHasher()
	for i := range transactions {
		txn := transactions[i]
		// Generate hash if not already set
		if txn.Hash == "" {
			txn.Hash = hasher.Hash(&txn)
		}

		res, err := stmt.ExecContext(ctx,
			txn.Hash,
			txn.InvoiceID,
			txn.ProductID,
			txn.Description,
			txn.Quantity,
			txn.UnitPrice,
			txn.Timestamp.UTC(),
			txn.CustomerID,
			txn.Country,
			source,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert invoice line %s: %w", txn.InvoiceID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	return inserted, nil
}

// GetTransactions retrieves stored transactions in invoice date order.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, *filter.EndDate, *filter.StartDate)
	}
	return s.getTransactionsTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) getTransactionsTx(ctx context.Context, q queryable, filter service.TransactionFilter) ([]model.Transaction, error) {
	query := `
		SELECT hash, invoice_id, stock_code, description, quantity,
		       unit_price, invoice_date, customer_id, country
		FROM transactions`

	var conditions []string
	var args []any
	if filter.StartDate != nil {
		conditions = append(conditions, "invoice_date >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "invoice_date < ?")
		args = append(args, filter.EndDate.UTC())
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY invoice_date, invoice_id, hash"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		var txn model.Transaction
		var stockCode, description, customerID, country sql.NullString
		if err := rows.Scan(
			&txn.Hash,
			&txn.InvoiceID,
			&stockCode,
			&description,
			&txn.Quantity,
			&txn.UnitPrice,
			&txn.Timestamp,
			&customerID,
			&country,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txn.ProductID = stockCode.String
		txn.Description = description.String
		txn.CustomerID = customerID.String
		txn.Country = country.String
		transactions = append(transactions, txn)
	}

	return transactions, rows.Err()
}

// CountTransactions returns the number of stored lines.
func (s *SQLiteStorage) CountTransactions(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// DateRange returns the earliest and latest stored invoice dates. Both are zero when the
// store is empty.
func (s *SQLiteStorage) DateRange(ctx context.Context) (time.Time, time.Time, error) {
	if err := validateContext(ctx); err != nil {
		return time.Time{}, time.Time{}, err
	}

	first, err := s.boundaryDate(ctx, "ASC")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	last, err := s.boundaryDate(ctx, "DESC")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return first, last, nil
}

// boundaryDate selects the column itself rather than MIN/MAX so the driver still sees the
// DATETIME declaration and scans a time.Time.
func (s *SQLiteStorage) boundaryDate(ctx context.Context, order string) (time.Time, error) {
	var t time.Time
	// #nosec G202 - order is one of two constants
	err := s.db.QueryRowContext(ctx,
		"SELECT invoice_date FROM transactions ORDER BY invoice_date "+order+" LIMIT 1").Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get date range: %w", err)
	}
	return t, nil
}

// queryable is satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
