package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/shopper-spectrum/internal/common"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "silhouette", s.Fit.Criterion)
	assert.Equal(t, 2, s.Fit.KMin)
	assert.Equal(t, 8, s.Fit.KMax)
	assert.Equal(t, uint64(42), s.Fit.Seed)
	assert.Equal(t, "quantity", s.Similarity.Weighting)
	assert.Equal(t, 2, s.Similarity.MinSupport)
	assert.NotContains(t, s.Data.DBPath, "~")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{name: "unknown criterion", key: "fit.criterion", value: "gap"},
		{name: "k_max below k_min", key: "fit.k_max", value: 1},
		{name: "negative k", key: "fit.k", value: -1},
		{name: "unknown weighting", key: "similarity.weighting", value: "tfidf"},
		{name: "zero min support", key: "similarity.min_support", value: 0},
		{name: "bad snapshot", key: "rfm.snapshot_date", value: "12/09/2011"},
		{name: "zero tolerance", key: "fit.tolerance", value: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)
			_, err := Load(v)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestRFMSettings_Snapshot(t *testing.T) {
	snap, err := RFMSettings{}.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.IsZero())

	snap, err = RFMSettings{SnapshotDate: "2011-12-10"}.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2011, 12, 10, 0, 0, 0, 0, time.UTC), snap)
}
