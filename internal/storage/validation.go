// Package storage provides the data persistence layer for imported transactions and fit history.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Veraticus/shopper-spectrum/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidFitRun      = errors.New("invalid fit run")
)

var validate = validator.New()

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if err := validate.Struct(txn); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	return nil
}

// validateFitRun validates a fit run record.
func validateFitRun(run *model.FitRun) error {
	if run == nil {
		return fmt.Errorf("%w: fit run", ErrNilParameter)
	}
	if run.RunID == "" {
		return fmt.Errorf("%w: missing run ID", ErrInvalidFitRun)
	}
	if run.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing creation time", ErrInvalidFitRun)
	}
	if run.K < 1 {
		return fmt.Errorf("%w: k must be at least 1, got %d", ErrInvalidFitRun, run.K)
	}
	return nil
}
