// Package service defines the interfaces shared between the pipeline and its collaborators.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/shopper-spectrum/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// Includes reports whether t falls inside the date window. EndDate is exclusive.
func (f TransactionFilter) Includes(t time.Time) bool {
	if f.StartDate != nil && t.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && !t.Before(*f.EndDate) {
		return false
	}
	return true
}

// Apply returns the transactions inside the date window. Limit and Offset are ignored.
func (f TransactionFilter) Apply(transactions []model.Transaction) []model.Transaction {
	if f.StartDate == nil && f.EndDate == nil {
		return transactions
	}
	out := make([]model.Transaction, 0, len(transactions))
	for _, txn := range transactions {
		if f.Includes(txn.Timestamp) {
			out = append(out, txn)
		}
	}
	return out
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction, source string) (int, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	CountTransactions(ctx context.Context) (int, error)

	// Fit history
	RecordFitRun(ctx context.Context, run *model.FitRun) error
	ListFitRuns(ctx context.Context, limit int) ([]model.FitRun, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// Reporter receives progress from long-running operations. Implementations must tolerate
// calls from multiple goroutines.
type Reporter interface {
	// Stage announces a named unit of work with a known total; total < 0 means unknown.
	Stage(name string, total int)
	// Progress reports completed units of the named stage.
	Progress(name string, done int)
	// Done marks the named stage finished.
	Done(name string)
}

// NopReporter discards progress.
type NopReporter struct{}

// Stage implements Reporter.
func (NopReporter) Stage(string, int) {}

// Progress implements Reporter.
func (NopReporter) Progress(string, int) {}

// Done implements Reporter.
func (NopReporter) Done(string) {}
