package data

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, in string) ([]Record, error) {
	t.Helper()
	out := make(chan Record)
	errc, err := StreamCSV(context.Background(), strings.NewReader(in), out, nil)
	if err != nil {
		return nil, err
	}
	var rows []Record
	for r := range out {
		rows = append(rows, r)
	}
	return rows, <-errc
}

func TestStreamCSV(t *testing.T) {
	rows, err := collect(t, "\ufeffa, b\n1,x\n2\n3,z\n")
	require.NoError(t, err)
	require.Len(t, rows, 2, "short row is skipped")
	assert.Equal(t, Record{"a": "1", "b": "x"}, rows[0])
	assert.Equal(t, "z", rows[1]["b"])
}

func TestStreamCSVEmpty(t *testing.T) {
	_, err := collect(t, "")
	assert.ErrorContains(t, err, "no header")
}

func TestStreamCSVCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Record)
	errc, err := StreamCSV(ctx, strings.NewReader("a\n1\n2\n"), out, nil)
	require.NoError(t, err)
	cancel()
	for range out {
	}
	got := <-errc
	if got != nil {
		assert.ErrorIs(t, got, context.Canceled)
	}
}

func TestBatcher(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {3}, {4}}
	y := []float64{0, 1, 0, 1, 0}
	ctx := context.Background()

	out := make(chan Batch)
	Batcher(ctx, Emit(ctx, X, y, nil, []int{4, 3, 2, 1, 0}), 2, out)

	var sizes []int
	var first []float64
	for b := range out {
		sizes = append(sizes, len(b.Y))
		if first == nil {
			first = b.X[0]
			assert.Equal(t, []float64{1, 1}, b.W)
		}
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []float64{4}, first)
}
