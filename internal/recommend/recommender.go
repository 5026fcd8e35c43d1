// Package recommend serves item-to-item recommendations from a published similarity matrix.
package recommend

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/model"
	"github.com/Veraticus/shopper-spectrum/internal/similarity"
)

// DefaultK is the number of recommendations returned when the caller does not choose.
const DefaultK = 5

// Recommender ranks products by similarity to a query product. It only reads its inputs
// and is safe for concurrent use.
type Recommender struct {
	index  *similarity.ProductIndex
	matrix *similarity.Matrix
	byName []int // positions in ascending name order
}

// New creates a Recommender over an aligned index and matrix.
func New(index *similarity.ProductIndex, matrix *similarity.Matrix) (*Recommender, error) {
	if index == nil || matrix == nil {
		return nil, fmt.Errorf("recommender requires a product index and a similarity matrix")
	}
	if index.Len() != matrix.Size() {
		return nil, fmt.Errorf("product index has %d entries but similarity matrix has %d rows",
			index.Len(), matrix.Size())
	}

	byName := make([]int, index.Len())
	for i := range byName {
		byName[i] = i
	}
	sort.Slice(byName, func(a, b int) bool {
		return index.Name(byName[a]) < index.Name(byName[b])
	})

	return &Recommender{index: index, matrix: matrix, byName: byName}, nil
}

// Recommend returns up to k products most similar to product, ordered by score descending
// then name ascending. The query product never appears in the result. Products with no
// stored similarity score 0 and still fill the remaining slots.
func (r *Recommender) Recommend(product string, k int) ([]model.Recommendation, error) {
	if k <= 0 {
		return nil, common.NewValidationError("k", k, "must be positive")
	}
	self, ok := r.index.Position(product)
	if !ok {
		return nil, common.NewNotFoundError("product", product)
	}
	if limit := r.index.Len() - 1; k > limit {
		k = limit
	}
	if k == 0 {
		return []model.Recommendation{}, nil
	}

	top := &candidateHeap{}
	seen := make(map[int]bool)
	var negative []candidate

	for _, e := range r.matrix.Row(self) {
		if e.Col == self {
			continue
		}
		seen[e.Col] = true
		c := candidate{pos: e.Col, name: r.index.Name(e.Col), score: e.Score}
		switch {
		case c.score < 0:
			negative = append(negative, c)
		case c.score > 0:
			if top.Len() < k {
				heap.Push(top, c)
			} else if c.better((*top)[0]) {
				(*top)[0] = c
				heap.Fix(top, 0)
			}
		default:
			seen[e.Col] = false
		}
	}

	out := make([]model.Recommendation, top.Len(), k)
	for i := len(out) - 1; i >= 0; i-- {
		c := heap.Pop(top).(candidate)
		out[i] = model.Recommendation{Product: c.name, Score: c.score}
	}

	for _, pos := range r.byName {
		if len(out) == k {
			return out, nil
		}
		if pos == self || seen[pos] {
			continue
		}
		out = append(out, model.Recommendation{Product: r.index.Name(pos), Score: 0})
	}

	sort.Slice(negative, func(i, j int) bool { return negative[i].better(negative[j]) })
	for _, c := range negative {
		if len(out) == k {
			break
		}
		out = append(out, model.Recommendation{Product: c.name, Score: c.score})
	}
	return out, nil
}

// Suggest returns up to n indexed product names that contain query, ignoring case.
func (r *Recommender) Suggest(query string, n int) []string {
	return r.index.Suggest(query, n)
}

// Products returns the number of recommendable products.
func (r *Recommender) Products() int {
	return r.index.Len()
}

type candidate struct {
	name  string
	pos   int
	score float64
}

func (c candidate) better(o candidate) bool {
	if c.score != o.score {
		return c.score > o.score
	}
	return c.name < o.name
}

// candidateHeap keeps the worst retained candidate at the root.
type candidateHeap []candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return h[j].better(h[i]) }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(candidate))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
