package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransaction_GenerateHash(t *testing.T) {
	base := Transaction{
		Timestamp:   time.Date(2011, 1, 4, 10, 0, 0, 0, time.UTC),
		InvoiceID:   "536365",
		ProductID:   "85123A",
		Description: "WHITE HANGING HEART T-LIGHT HOLDER",
		CustomerID:  "17850",
		Quantity:    6,
		UnitPrice:   2.55,
	}

	tests := []struct {
		name     string
		mutate   func(*Transaction)
		wantSame bool
	}{
		{name: "identical lines have same hash", mutate: func(*Transaction) {}, wantSame: true},
		{name: "different quantity", mutate: func(tx *Transaction) { tx.Quantity = 7 }},
		{name: "different invoice", mutate: func(tx *Transaction) { tx.InvoiceID = "536366" }},
		{name: "different customer", mutate: func(tx *Transaction) { tx.CustomerID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base
			tt.mutate(&other)
			assert.Equal(t, tt.wantSame, base.GenerateHash() == other.GenerateHash())
		})
	}
}

func TestTransaction_Flags(t *testing.T) {
	tx := Transaction{InvoiceID: "C536379", Quantity: 2, UnitPrice: 1.5}
	assert.True(t, tx.IsCancelled())
	assert.True(t, tx.IsAnonymous())
	assert.InDelta(t, 3.0, tx.LineTotal(), 1e-9)

	tx.InvoiceID = "536379"
	tx.CustomerID = "12346"
	assert.False(t, tx.IsCancelled())
	assert.False(t, tx.IsAnonymous())
}

func TestLineHasher_SeparatesRepeats(t *testing.T) {
	line := Transaction{
		Timestamp:   time.Date(2011, 1, 4, 10, 0, 0, 0, time.UTC),
		InvoiceID:   "536365",
		Description: "WHITE METAL LANTERN",
		CustomerID:  "17850",
		Quantity:    6,
		UnitPrice:   3.39,
	}
	other := line
	other.Quantity = 8

	first := NewLineHasher()
	hashes := []string{first.Hash(&line), first.Hash(&line), first.Hash(&other)}
	assert.Equal(t, line.GenerateHash(), hashes[0])
	assert.NotEqual(t, hashes[0], hashes[1])
	assert.Equal(t, other.GenerateHash(), hashes[2])

	second := NewLineHasher()
	again := []string{second.Hash(&line), second.Hash(&line), second.Hash(&other)}
	assert.Equal(t, hashes, again, "the same extract hashes the same way")
}
