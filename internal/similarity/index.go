// Package similarity builds the item-item cosine similarity matrix from purchase history.
package similarity

import (
	"fmt"
	"sort"
	"strings"
)

// ProductIndex is the canonical bidirectional mapping between product names and matrix
// positions. It is immutable once built.
type ProductIndex struct {
	positions map[string]int
	names     []string
}

// NewProductIndex indexes names in the given order. Names must be unique and non-empty.
func NewProductIndex(names []string) (*ProductIndex, error) {
	idx := &ProductIndex{
		names:     make([]string, len(names)),
		positions: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("product index entry %d is empty", i)
		}
		if prev, dup := idx.positions[name]; dup {
			return nil, fmt.Errorf("product %q appears at positions %d and %d", name, prev, i)
		}
		idx.positions[name] = i
		idx.names[i] = name
	}
	return idx, nil
}

// Len returns the number of products.
func (p *ProductIndex) Len() int {
	return len(p.names)
}

// Position looks a product up by exact, case-sensitive name.
func (p *ProductIndex) Position(name string) (int, bool) {
	i, ok := p.positions[name]
	return i, ok
}

// Name returns the product at position i.
func (p *ProductIndex) Name(i int) string {
	return p.names[i]
}

// Names returns a copy of the ordered product names.
func (p *ProductIndex) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Suggest returns up to n product names containing query, case-insensitively, in name order.
// Intended for "did you mean" messages after a failed exact lookup.
func (p *ProductIndex) Suggest(query string, n int) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || n <= 0 {
		return nil
	}

	var out []string
	for _, name := range p.names {
		if strings.Contains(strings.ToLower(name), q) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}
