package similarity

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/testutil"
)

func TestBuild_CoPurchasedProductsAreSimilar(t *testing.T) {
	txns := testutil.NewTransactionBuilder(t).
		WithBasket("u1", "", "A", "B").
		WithBasket("u2", "", "A", "B").
		WithBasket("u3", "", "C").
		WithBasket("u4", "", "C").
		Build()

	res, err := Build(context.Background(), txns, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, res.Index.Names())
	a, _ := res.Index.Position("A")
	b, _ := res.Index.Position("B")
	c, _ := res.Index.Position("C")

	assert.InDelta(t, 1.0, res.Matrix.At(a, b), 1e-12)
	assert.Equal(t, 0.0, res.Matrix.At(a, c))
	assert.Equal(t, 0.0, res.Matrix.At(b, c))
	assert.Equal(t, 4, res.Customers)
	assert.Equal(t, 1, res.Pairs)
}

func TestBuild_SymmetricWithUnitDiagonal(t *testing.T) {
	b := testutil.NewTransactionBuilder(t)
	products := []string{"MUG", "TEAPOT", "SPOON", "LANTERN", "CANDLE", "BUNTING"}
	for u := range 25 {
		var basket []string
		for p, name := range products {
			if (u+p)%3 != 0 || (u*p)%4 == 1 {
				basket = append(basket, name)
			}
		}
		b.WithQuantities(fmt.Sprintf("u%02d", u), "", 1+u%4, basket...)
	}

	res, err := Build(context.Background(), b.Build(), Options{Weighting: WeightQuantity, MinSupport: 1})
	require.NoError(t, err)
	require.NoError(t, res.Matrix.Verify(1e-12))

	dense := res.Matrix.Dense()
	for i := range dense {
		assert.Equal(t, 1.0, dense[i][i])
		for j := range dense {
			assert.Equal(t, dense[i][j], dense[j][i], "sim[%d][%d]", i, j)
			assert.GreaterOrEqual(t, dense[i][j], 0.0)
			assert.LessOrEqual(t, dense[i][j], 1.0)
		}
	}
}

func TestBuild_Weighting(t *testing.T) {
	txns := testutil.NewTransactionBuilder(t).
		WithLine("u1", "1", 1, "A", 10, 1).
		WithLine("u1", "1", 1, "B", 1, 1).
		WithLine("u2", "2", 1, "A", 1, 1).
		WithLine("u2", "2", 1, "B", 10, 1).
		Build()

	quantity, err := Build(context.Background(), txns, Options{Weighting: WeightQuantity, MinSupport: 1})
	require.NoError(t, err)
	assert.InDelta(t, 20.0/101.0, quantity.Matrix.At(0, 1), 1e-12)

	binary, err := Build(context.Background(), txns, Options{Weighting: WeightBinary, MinSupport: 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, binary.Matrix.At(0, 1), 1e-12)

	_, err = Build(context.Background(), txns, Options{Weighting: "tfidf"})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestBuild_MinSupportExcludesSparseProducts(t *testing.T) {
	txns := testutil.NewTransactionBuilder(t).
		WithBasket("u1", "", "A", "B", "RARE").
		WithBasket("u2", "", "A", "B").
		Build()

	res, err := Build(context.Background(), txns, Options{MinSupport: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, res.Index.Names())
	assert.Equal(t, []string{"RARE"}, res.Excluded)

	_, err = Build(context.Background(), txns, Options{MinSupport: 3})
	assert.ErrorIs(t, err, common.ErrDataQuality)
}

func TestBuild_AnonymousInvoices(t *testing.T) {
	txns := testutil.NewTransactionBuilder(t).
		WithBasket("", "9001", "A", "B").
		WithBasket("u1", "", "A").
		Build()

	res, err := Build(context.Background(), txns, Options{MinSupport: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Customers)
	assert.Equal(t, []string{"A"}, res.Index.Names())

	res, err = Build(context.Background(), txns, Options{MinSupport: 1, IncludeAnonymous: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Customers)
	assert.Positive(t, res.Matrix.At(0, 1))
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(context.Background(), nil, DefaultOptions())
	assert.ErrorIs(t, err, common.ErrDataQuality)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	txns := testutil.NewTransactionBuilder(t).WithBasket("u1", "", "A").Build()
	_, err = Build(ctx, txns, Options{MinSupport: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
