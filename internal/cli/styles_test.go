package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatters(t *testing.T) {
	tests := []struct {
		format func(string) string
		name   string
		icon   string
	}{
		{name: "success", format: FormatSuccess, icon: SuccessIcon},
		{name: "error", format: FormatError, icon: ErrorIcon},
		{name: "warning", format: FormatWarning, icon: WarningIcon},
		{name: "info", format: FormatInfo, icon: InfoIcon},
		{name: "title", format: FormatTitle, icon: ChartIcon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.format("hello")
			assert.Contains(t, out, tt.icon)
			assert.Contains(t, out, "hello")
		})
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(
		[]string{"Product", "Score"},
		[][]string{{"WHITE MUG", FormatScore(0.5)}, {"CANDLE", FormatScore(0)}},
	)

	lines := strings.Split(out, "\n")
	assert.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, out, "WHITE MUG")
	assert.Contains(t, out, "0.500")
	assert.Contains(t, out, "0.000")
}
