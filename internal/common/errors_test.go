package common

import (
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrors_MatchKinds(t *testing.T) {
	tests := []struct {
		err         error
		kind        error
		name        string
		recoverable bool
	}{
		{
			name:        "validation",
			err:         NewValidationError("recency", -5.0, "must be non-negative"),
			kind:        ErrValidation,
			recoverable: true,
		},
		{
			name:        "not found",
			err:         NewNotFoundError("product", "Nonexistent Product"),
			kind:        ErrNotFound,
			recoverable: true,
		},
		{
			name: "data quality",
			err:  NewDataQualityError("rfm", "no transactions"),
			kind: ErrDataQuality,
		},
		{
			name: "artifact missing",
			err:  NewArtifactMissingError("cluster_model", "/tmp/x.json", os.ErrNotExist),
			kind: ErrArtifactMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("operation failed: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.kind)
			assert.Equal(t, tt.recoverable, IsRecoverable(wrapped))
		})
	}
}

func TestArtifactMissingError_KeepsCause(t *testing.T) {
	err := NewArtifactMissingError("product_index", "/nope", os.ErrNotExist)

	assert.ErrorIs(t, err, ErrArtifactMissing)
	assert.ErrorIs(t, err, os.ErrNotExist)

	var missing *ArtifactMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "product_index", missing.Name)
}

func TestSetupLogger(t *testing.T) {
	assert.NoError(t, SetupLogger(io.Discard, "debug", "json"))
	assert.NoError(t, SetupLogger(io.Discard, "info", "console"))
	assert.ErrorIs(t, SetupLogger(io.Discard, "loud", "console"), ErrInvalidConfig)
	assert.ErrorIs(t, SetupLogger(io.Discard, "info", "xml"), ErrInvalidConfig)
}
