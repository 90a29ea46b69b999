package tiled

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomValue_Range(t *testing.T) {
	for i := 0; i < 50; i++ {
		for j := 0; j < 50; j++ {
			v := RandomValue(100, i, j)
			assert.GreaterOrEqual(t, v, -0.5)
			assert.Less(t, v, 0.5)
		}
	}
	assert.Equal(t, RandomValue(7, 3, 4), RandomValue(7, 3, 4))
	assert.NotEqual(t, RandomValue(7, 3, 4), RandomValue(7, 4, 3))
	assert.NotEqual(t, RandomValue(7, 3, 4), RandomValue(8, 3, 4))
}

func TestFillRandom_IndependentOfDistribution(t *testing.T) {
	a := NewAllocator()

	whole, err := Alloc[complex128](a, "whole", mustDesc(t, Complex128, Grid{P: 1, Q: 1}, 0, 5, 5, 12, 12))
	require.NoError(t, err)
	FillRandom(whole, 42)

	for rank := 0; rank < 4; rank++ {
		part, err := Alloc[complex128](a, "part", mustDesc(t, Complex128, Grid{P: 2, Q: 2}, rank, 3, 4, 12, 12))
		require.NoError(t, err)
		FillRandom(part, 42)
		part.Each(func(i, j int, v *complex128) {
			want, ok := whole.At(i, j)
			require.True(t, ok)
			assert.Equal(t, want, *v)
		})
		require.NoError(t, Teardown(part))
	}
	require.NoError(t, Teardown(whole))
}

func TestFillDiagonallyDominant(t *testing.T) {
	a := NewAllocator()
	m, err := Alloc[float64](a, "A", mustDesc(t, Float64, Grid{P: 1, Q: 1}, 0, 4, 4, 6, 6))
	require.NoError(t, err)
	FillDiagonallyDominant(m, 1, 10)

	for i := 0; i < 6; i++ {
		v, _ := m.At(i, i)
		assert.Greater(t, v, 9.0)
	}
	require.NoError(t, Teardown(m))
}
