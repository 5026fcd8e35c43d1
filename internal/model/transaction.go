// Package model holds the plain data types shared by the pipeline stages.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// Transaction is a single invoice line from a retail extract.
type Transaction struct {
	Timestamp   time.Time `validate:"required"`
	InvoiceID   string    `validate:"required"`
	ProductID   string
	Description string // Normalized product description; the recommendation key
	CustomerID  string // Empty for anonymous purchases
	Country     string
	Hash        string
	UnitPrice   float64 `validate:"gt=0"`
	Quantity    int     `validate:"gt=0"`
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%d:%.4f:%s",
		t.InvoiceID,
		t.Timestamp.UTC().Format(time.RFC3339),
		t.ProductID,
		t.Description,
		t.Quantity,
		t.UnitPrice,
		t.CustomerID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// LineHasher assigns storage hashes that keep repeated identical lines apart. The n-th
// repeat of a line within one extract gets a distinct hash, so re-importing the extract
// maps every line onto the same key again.
type LineHasher struct {
	seen map[string]int
}

// NewLineHasher creates a hasher with no lines seen.
func NewLineHasher() *LineHasher {
	return &LineHasher{seen: make(map[string]int)}
}

// Hash returns the hash for the next occurrence of t.
func (h *LineHasher) Hash(t *Transaction) string {
	base := t.GenerateHash()
	n := h.seen[base]
	h.seen[base]++
	if n == 0 {
		return base
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", base, n)))
	return fmt.Sprintf("%x", sum)
}

// IsCancelled reports whether the line belongs to a cancellation invoice.
func (t *Transaction) IsCancelled() bool {
	return strings.HasPrefix(strings.ToUpper(t.InvoiceID), "C")
}

// IsAnonymous reports whether the line has no customer attached.
func (t *Transaction) IsAnonymous() bool {
	return t.CustomerID == ""
}

// LineTotal is quantity times unit price.
func (t *Transaction) LineTotal() float64 {
	return float64(t.Quantity) * t.UnitPrice
}
