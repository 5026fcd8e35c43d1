package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/shopper-spectrum/internal/model"
	"github.com/Veraticus/shopper-spectrum/internal/testutil"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()

	store, err := NewSQLiteStorage(MemoryPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

// Helper function to create test transactions.
func createTestTransactions(t *testing.T) []model.Transaction {
	t.Helper()
	return testutil.NewTransactionBuilder(t).
		WithLine("17850", "536365", 30, "WHITE HANGING HEART T-LIGHT HOLDER", 6, 2.55).
		WithLine("17850", "536365", 30, "WHITE METAL LANTERN", 6, 3.39).
		WithLine("13047", "536367", 20, "ASSORTED COLOUR BIRD ORNAMENT", 32, 1.69).
		WithLine("", "536544", 10, "DOORMAT RED RETROSPOT", 1, 7.95).
		Build()
}

func TestNewSQLiteStorage_File(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "spectrum.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Migrate(context.Background()))
	assert.Equal(t, dbPath, store.Path())
	assert.FileExists(t, dbPath)

	var mode string
	require.NoError(t, store.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage("  ")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestStorage_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "spectrum.db")
	ctx := context.Background()

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	_, err = store.SaveTransactions(ctx, createTestTransactions(t), "online_retail.csv")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Migrate(ctx), "migrating an up-to-date database is a no-op")

	count, err := store.CountTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
