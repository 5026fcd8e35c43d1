package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/shopper-spectrum/internal/artifact"
	"github.com/Veraticus/shopper-spectrum/internal/config"
	"github.com/Veraticus/shopper-spectrum/internal/engine"
	"github.com/Veraticus/shopper-spectrum/internal/storage"
)

// envKeyReplacer maps nested keys such as fit.k_max onto SPECTRUM_FIT_K_MAX.
var envKeyReplacer = strings.NewReplacer(".", "_")

// loadSettings reads and validates the merged flag, env and file configuration.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}

// initStorage opens the transaction store and brings its schema up to date.
func initStorage(ctx context.Context, settings *config.Settings) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(settings.Data.DBPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initEngine serves the currently published artifact set.
func initEngine(settings *config.Settings) *engine.Engine {
	return engine.New(artifact.NewStore(settings.Artifacts.Dir))
}
