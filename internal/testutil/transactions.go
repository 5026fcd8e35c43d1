// Package testutil provides fixture builders for pipeline tests.
//
// Example:
//
//	txns := testutil.NewTransactionBuilder(t).
//		WithCustomerRFM("c1", 5, 10, 1000).
//		WithBasket("c2", "INV-9", "MUG", "TEAPOT").
//		Build()
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/shopper-spectrum/internal/model"
)

// Snapshot is the reference date fixtures are laid out against.
var Snapshot = time.Date(2011, 12, 10, 0, 0, 0, 0, time.UTC)

// TransactionBuilder accumulates transactions for a test.
type TransactionBuilder struct {
	t        *testing.T
	hasher   *model.LineHasher
	txns     []model.Transaction
	invoices int
}

// NewTransactionBuilder creates an empty builder.
func NewTransactionBuilder(t *testing.T) *TransactionBuilder {
	t.Helper()
	return &TransactionBuilder{t: t, hasher: model.NewLineHasher()}
}

// WithLine appends a single invoice line daysAgo days before Snapshot.
func (b *TransactionBuilder) WithLine(customer, invoice string, daysAgo int, description string, quantity int, price float64) *TransactionBuilder {
	tx := model.Transaction{
		Timestamp:   Snapshot.AddDate(0, 0, -daysAgo).Add(-time.Hour),
		InvoiceID:   invoice,
		ProductID:   description,
		Description: description,
		CustomerID:  customer,
		Country:     "United Kingdom",
		Quantity:    quantity,
		UnitPrice:   price,
	}
	tx.Hash = b.hasher.Hash(&tx)
	b.txns = append(b.txns, tx)
	return b
}

// WithCustomerRFM appends purchases that produce exactly the given recency, frequency and
// monetary value when measured against Snapshot.
func (b *TransactionBuilder) WithCustomerRFM(customer string, recency, frequency int, monetary float64) *TransactionBuilder {
	b.t.Helper()
	if frequency < 1 {
		b.t.Fatalf("frequency must be at least 1, got %d", frequency)
	}

	perInvoice := monetary / float64(frequency)
	for i := range frequency {
		invoice := b.nextInvoice()
		b.WithLine(customer, invoice, recency+i*3, "GIFT VOUCHER", 1, perInvoice)
	}
	return b
}

// WithBasket appends one invoice in which customer buys one unit of every product.
func (b *TransactionBuilder) WithBasket(customer, invoice string, products ...string) *TransactionBuilder {
	return b.WithQuantities(customer, invoice, 1, products...)
}

// WithQuantities appends one invoice in which customer buys quantity units of every product.
func (b *TransactionBuilder) WithQuantities(customer, invoice string, quantity int, products ...string) *TransactionBuilder {
	if invoice == "" {
		invoice = b.nextInvoice()
	}
	for _, p := range products {
		b.WithLine(customer, invoice, 1, p, quantity, 1.0)
	}
	return b
}

// Build returns a copy of the accumulated transactions.
func (b *TransactionBuilder) Build() []model.Transaction {
	out := make([]model.Transaction, len(b.txns))
	copy(out, b.txns)
	return out
}

func (b *TransactionBuilder) nextInvoice() string {
	b.invoices++
	return fmt.Sprintf("INV-%05d", b.invoices)
}
