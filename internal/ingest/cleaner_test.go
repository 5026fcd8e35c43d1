package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	parsed, parseReport, err := NewParser().ParseFile(context.Background(), strings.NewReader(sampleExtract))
	require.NoError(t, err)

	cleaned, report := Clean(parsed)

	assert.Equal(t, 5, report.Rows)
	assert.Equal(t, 1, report.Cancelled)
	assert.Equal(t, 1, report.NonPositivePrice)
	assert.Equal(t, 3, report.Kept)
	assert.Equal(t, 0, report.Anonymous)
	require.Len(t, cleaned, 3)

	for _, tx := range cleaned {
		assert.Positive(t, tx.Quantity)
		assert.Positive(t, tx.UnitPrice)
		assert.False(t, tx.IsCancelled())
		assert.NotEmpty(t, tx.Hash)
	}

	report.Malformed += parseReport.Malformed
	assert.Equal(t, 3, report.Dropped())
}

func TestClean_Idempotent(t *testing.T) {
	parsed, _, err := NewParser().ParseFile(context.Background(), strings.NewReader(sampleExtract))
	require.NoError(t, err)

	once, _ := Clean(parsed)
	twice, report := Clean(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, len(once), report.Kept)
}

func TestClean_FlagsAnonymousAndMissingDescription(t *testing.T) {
	input := "InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID\n" +
		"1,A,,2,2011-01-01 10:00,1.0,\n" +
		"2,B,MUG,-3,2011-01-01 10:00,1.0,5\n"
	parsed, _, err := NewParser().ParseFile(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	cleaned, report := Clean(parsed)
	require.Len(t, cleaned, 1)
	assert.Equal(t, 1, report.Anonymous)
	assert.Equal(t, 1, report.MissingDescription)
	assert.Equal(t, 1, report.NonPositiveQuantity)
}

func TestClean_KeepsRepeatedLines(t *testing.T) {
	input := "InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID\n" +
		"536365,71053,WHITE METAL LANTERN,6,2011-01-01 10:00,3.39,17850\n" +
		"536365,71053,WHITE METAL LANTERN,6,2011-01-01 10:00,3.39,17850\n"

	parsed, _, err := NewParser().ParseFile(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	cleaned, report := Clean(parsed)
	require.Len(t, cleaned, 2)
	assert.Equal(t, 2, report.Kept)
	assert.NotEqual(t, cleaned[0].Hash, cleaned[1].Hash)
}
