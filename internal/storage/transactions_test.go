package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/shopper-spectrum/internal/model"
	"github.com/Veraticus/shopper-spectrum/internal/service"
	"github.com/Veraticus/shopper-spectrum/internal/testutil"
)

func TestSaveTransactions_DeduplicatesByHash(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	txns := createTestTransactions(t)

	inserted, err := store.SaveTransactions(ctx, txns, "first.csv")
	require.NoError(t, err)
	assert.Equal(t, 4, inserted)

	inserted, err = store.SaveTransactions(ctx, txns, "second.csv")
	require.NoError(t, err)
	assert.Equal(t, 0, inserted, "re-importing the same extract adds nothing")

	count, err := store.CountTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestSaveTransactions_KeepsRepeatedLines(t *testing.T) {
	ctx := context.Background()
	line := model.Transaction{
		Timestamp:   time.Date(2011, 1, 4, 10, 0, 0, 0, time.UTC),
		InvoiceID:   "536365",
		ProductID:   "85123A",
		Description: "WHITE HANGING HEART T-LIGHT HOLDER",
		CustomerID:  "17850",
		Quantity:    6,
		UnitPrice:   2.55,
	}

	tests := []struct {
		name  string
		batch func() []model.Transaction
	}{
		{
			name:  "hashes assigned by storage",
			batch: func() []model.Transaction { return []model.Transaction{line, line} },
		},
		{
			name: "hashes assigned by the fixture builder",
			batch: func() []model.Transaction {
				return testutil.NewTransactionBuilder(t).
					WithLine("17850", "536365", 30, "WHITE METAL LANTERN", 6, 3.39).
					WithLine("17850", "536365", 30, "WHITE METAL LANTERN", 6, 3.39).
					Build()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, cleanup := createTestStorage(t)
			defer cleanup()

			inserted, err := store.SaveTransactions(ctx, tt.batch(), "extract.csv")
			require.NoError(t, err)
			assert.Equal(t, 2, inserted)

			inserted, err = store.SaveTransactions(ctx, tt.batch(), "extract.csv")
			require.NoError(t, err)
			assert.Equal(t, 0, inserted, "re-importing keeps both lines and adds nothing")

			stored, err := store.GetTransactions(ctx, service.TransactionFilter{})
			require.NoError(t, err)
			require.Len(t, stored, 2)
			assert.NotEqual(t, stored[0].Hash, stored[1].Hash)
		})
	}
}

func TestSaveTransactions_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		wantErr error
		name    string
		txns    []model.Transaction
	}{
		{name: "nil slice", txns: nil, wantErr: ErrNilParameter},
		{name: "empty slice", txns: []model.Transaction{}, wantErr: ErrEmptySlice},
		{
			name:    "missing invoice",
			txns:    []model.Transaction{{Timestamp: testutil.Snapshot, Quantity: 1, UnitPrice: 1}},
			wantErr: ErrInvalidTransaction,
		},
		{
			name:    "non-positive quantity",
			txns:    []model.Transaction{{Timestamp: testutil.Snapshot, InvoiceID: "1", Quantity: 0, UnitPrice: 1}},
			wantErr: ErrInvalidTransaction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.SaveTransactions(ctx, tt.txns, "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGetTransactions_RoundTripAndFilter(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	txns := createTestTransactions(t)

	_, err := store.SaveTransactions(ctx, txns, "online_retail.csv")
	require.NoError(t, err)

	all, err := store.GetTransactions(ctx, service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	// Oldest first.
	assert.Equal(t, "536365", all[0].InvoiceID)
	assert.Equal(t, "536544", all[3].InvoiceID)
	assert.Empty(t, all[3].CustomerID, "anonymous lines keep an empty customer")

	byHash := make(map[string]model.Transaction)
	for _, txn := range all {
		byHash[txn.Hash] = txn
	}
	for _, want := range txns {
		got, ok := byHash[want.Hash]
		require.True(t, ok, "line %s/%s", want.InvoiceID, want.Description)
		assert.Equal(t, want.Description, got.Description)
		assert.Equal(t, want.Quantity, got.Quantity)
		assert.InDelta(t, want.UnitPrice, got.UnitPrice, 1e-9)
		assert.True(t, want.Timestamp.Equal(got.Timestamp), "timestamp %v vs %v", want.Timestamp, got.Timestamp)
		assert.Equal(t, want.GenerateHash(), got.GenerateHash())
	}

	start := testutil.Snapshot.AddDate(0, 0, -25)
	recent, err := store.GetTransactions(ctx, service.TransactionFilter{StartDate: &start})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	page, err := store.GetTransactions(ctx, service.TransactionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, all[1].Hash, page[0].Hash)

	end := start.Add(-time.Hour)
	_, err = store.GetTransactions(ctx, service.TransactionFilter{StartDate: &start, EndDate: &end})
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestDateRange(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first, last, err := store.DateRange(ctx)
	require.NoError(t, err)
	assert.True(t, first.IsZero())
	assert.True(t, last.IsZero())

	_, err = store.SaveTransactions(ctx, createTestTransactions(t), "")
	require.NoError(t, err)

	first, last, err = store.DateRange(ctx)
	require.NoError(t, err)
	assert.True(t, first.Equal(testutil.Snapshot.AddDate(0, 0, -30).Add(-time.Hour)))
	assert.True(t, last.Equal(testutil.Snapshot.AddDate(0, 0, -10).Add(-time.Hour)))
}
