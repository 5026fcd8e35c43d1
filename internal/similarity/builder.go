package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/model"
)

// Weighting selects what a customer×product pivot cell holds.
type Weighting string

const (
	// WeightQuantity sums purchased quantity: similarity measures co-intensity.
	WeightQuantity Weighting = "quantity"
	// WeightBinary records presence only: similarity measures co-purchase.
	WeightBinary Weighting = "binary"
)

// Options controls a similarity build.
type Options struct {
	Weighting Weighting

	// MinSupport is the minimum number of distinct customers a product needs to be indexed.
	MinSupport int

	// IncludeAnonymous counts every anonymous invoice as its own pseudo-customer.
	IncludeAnonymous bool

	// OnProgress, when set, receives the number of baskets processed so far.
	OnProgress func(done, total int)
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{Weighting: WeightQuantity, MinSupport: 2}
}

// Result is the output of Build.
type Result struct {
	Index     *ProductIndex
	Matrix    *Matrix
	Excluded  []string // products below MinSupport, sorted
	Customers int
	Pairs     int
}

type pairKey struct {
	a, b int32
}

type cell struct {
	pos    int
	weight float64
}

// Build pivots transactions into customer×product vectors and computes cosine similarity
// between every pair of product columns. Only pairs that share at least one customer are
// ever visited, so the cost grows with co-purchases rather than with catalog size squared.
func Build(ctx context.Context, transactions []model.Transaction, opts Options) (*Result, error) {
	if opts.Weighting == "" {
		opts.Weighting = WeightQuantity
	}
	if opts.Weighting != WeightQuantity && opts.Weighting != WeightBinary {
		return nil, fmt.Errorf("%w: unknown weighting %q", common.ErrInvalidConfig, opts.Weighting)
	}
	if opts.MinSupport < 1 {
		opts.MinSupport = 1
	}

	pivot := buildPivot(transactions, opts.IncludeAnonymous)
	if len(pivot) == 0 {
		return nil, common.NewDataQualityError("similarity", "no purchases with a product description")
	}

	support := make(map[string]int)
	for _, basket := range pivot {
		for product := range basket {
			support[product]++
		}
	}

	var kept, excluded []string
	for product, n := range support {
		if n >= opts.MinSupport {
			kept = append(kept, product)
		} else {
			excluded = append(excluded, product)
		}
	}
	sort.Strings(kept)
	sort.Strings(excluded)
	if len(kept) == 0 {
		return nil, common.NewDataQualityError("similarity",
			fmt.Sprintf("no product reaches min support %d", opts.MinSupport))
	}

	index, err := NewProductIndex(kept)
	if err != nil {
		return nil, err
	}

	// Deterministic basket order keeps floating-point sums reproducible.
	keys := make([]string, 0, len(pivot))
	for key := range pivot {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	norms := make([]float64, index.Len())
	dots := make(map[pairKey]float64)
	cells := make([]cell, 0, 64)

	for n, key := range keys {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if opts.OnProgress != nil {
				opts.OnProgress(n, len(keys))
			}
		}

		cells = cells[:0]
		for product, qty := range pivot[key] {
			pos, ok := index.Position(product)
			if !ok {
				continue
			}
			w := qty
			if opts.Weighting == WeightBinary {
				w = 1
			}
			cells = append(cells, cell{pos: pos, weight: w})
		}
		sort.Slice(cells, func(i, j int) bool { return cells[i].pos < cells[j].pos })

		for i, ci := range cells {
			norms[ci.pos] += ci.weight * ci.weight
			for _, cj := range cells[i+1:] {
				dots[pairKey{a: int32(ci.pos), b: int32(cj.pos)}] += ci.weight * cj.weight
			}
		}
	}
	if opts.OnProgress != nil {
		opts.OnProgress(len(keys), len(keys))
	}

	rows := make([][]Entry, index.Len())
	for i := range rows {
		rows[i] = append(rows[i], Entry{Col: i, Score: 1})
	}
	for pair, dot := range dots {
		denom := math.Sqrt(norms[pair.a]) * math.Sqrt(norms[pair.b])
		if denom == 0 || dot <= 0 {
			continue
		}
		score := math.Min(dot/denom, 1)
		a, b := int(pair.a), int(pair.b)
		rows[a] = append(rows[a], Entry{Col: b, Score: score})
		rows[b] = append(rows[b], Entry{Col: a, Score: score})
	}
	for i := range rows {
		row := rows[i]
		sort.Slice(row, func(x, y int) bool { return row[x].Col < row[y].Col })
	}

	matrix := &Matrix{Rows: rows}
	if err := matrix.Verify(1e-9); err != nil {
		return nil, fmt.Errorf("similarity matrix failed verification: %w", err)
	}

	slog.Info("Built product similarity",
		"products", index.Len(),
		"excluded_low_support", len(excluded),
		"customers", len(pivot),
		"pairs", len(dots),
		"weighting", string(opts.Weighting))

	return &Result{
		Index:     index,
		Matrix:    matrix,
		Excluded:  excluded,
		Customers: len(pivot),
		Pairs:     len(dots),
	}, nil
}

// buildPivot sums quantity per (customer, product).
func buildPivot(transactions []model.Transaction, includeAnonymous bool) map[string]map[string]float64 {
	pivot := make(map[string]map[string]float64)
	for i := range transactions {
		tx := &transactions[i]
		if tx.Description == "" || tx.Quantity <= 0 {
			continue
		}

		key := "c:" + tx.CustomerID
		if tx.IsAnonymous() {
			if !includeAnonymous {
				continue
			}
			key = "a:" + tx.InvoiceID
		}

		basket, ok := pivot[key]
		if !ok {
			basket = make(map[string]float64)
			pivot[key] = basket
		}
		basket[tx.Description] += float64(tx.Quantity)
	}
	return pivot
}
