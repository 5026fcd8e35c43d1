package common

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogHelpers_RespectLevel(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	require.NoError(t, SetupLogger(&buf, "info", "json"))

	LogDebug("hidden", Fields{"k": 3})
	LogInfo("shown", Fields{"k": 4})
	LogError(errors.New("boom"), "failed", Fields{"run_id": "r1"})

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":4`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"run_id":"r1"`)

	buf.Reset()
	require.NoError(t, SetupLogger(&buf, "debug", "console"))
	LogDebug("visible", Fields{"k": 5})
	assert.Contains(t, buf.String(), "visible")

	require.NoError(t, SetupLogger(io.Discard, "info", "console"))
}
