package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix_AtAndNNZ(t *testing.T) {
	m := &Matrix{Rows: [][]Entry{
		{{Col: 0, Score: 1}, {Col: 2, Score: 0.5}},
		{{Col: 1, Score: 1}},
		{{Col: 0, Score: 0.5}, {Col: 2, Score: 1}},
	}}

	require.NoError(t, m.Verify(1e-12))
	assert.Equal(t, 0.5, m.At(0, 2))
	assert.Equal(t, 0.0, m.At(0, 1))
	assert.Equal(t, 5, m.NNZ())
	assert.Equal(t, 3, m.Size())
}

func TestMatrix_VerifyDetectsDefects(t *testing.T) {
	tests := []struct {
		name string
		rows [][]Entry
	}{
		{
			name: "asymmetric",
			rows: [][]Entry{
				{{Col: 0, Score: 1}, {Col: 1, Score: 0.4}},
				{{Col: 0, Score: 0.3}, {Col: 1, Score: 1}},
			},
		},
		{
			name: "missing diagonal",
			rows: [][]Entry{
				{{Col: 0, Score: 1}},
				{},
			},
		},
		{
			name: "out of range score",
			rows: [][]Entry{
				{{Col: 0, Score: 1}, {Col: 1, Score: 1.5}},
				{{Col: 0, Score: 1.5}, {Col: 1, Score: 1}},
			},
		},
		{
			name: "unsorted row",
			rows: [][]Entry{
				{{Col: 1, Score: 0.2}, {Col: 0, Score: 1}},
				{{Col: 0, Score: 0.2}, {Col: 1, Score: 1}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Matrix{Rows: tt.rows}
			assert.Error(t, m.Verify(1e-9))
		})
	}
}
