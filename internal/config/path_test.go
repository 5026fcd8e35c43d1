package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("SPECTRUM_TEST_DIR", "/srv/data")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: home},
		{in: "~/spectrum/db.sqlite", want: filepath.Join(home, "spectrum", "db.sqlite")},
		{in: "$SPECTRUM_TEST_DIR/artifacts", want: "/srv/data/artifacts"},
		{in: "/tmp/../tmp/x", want: "/tmp/x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}
