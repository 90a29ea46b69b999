package tiled

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCodec_Layout(t *testing.T) {
	assert.Len(t, Encode([]complex128{1 + 2i, 3}), 32)
	assert.Len(t, Encode([]int32{1, 2, 3}), 12)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, Encode([]int32{-1}))

	dst := make([]float64, 2)
	err := Decode(Encode([]float64{1, 2, 3}), dst)
	assert.ErrorIs(t, err, ErrPayloadSize)
}

func TestProperty_CodecPreservesTiles(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		re := rapid.SliceOf(rapid.Float64()).Draw(t, "re")
		im := rapid.SliceOfN(rapid.Float64(), len(re), len(re)).Draw(t, "im")
		src := make([]complex128, len(re))
		for i := range re {
			src[i] = complex(re[i], im[i])
		}

		dst := make([]complex128, len(src))
		require.NoError(t, Decode(Encode(src), dst))
		assert.Equal(t, src, dst)

		ints := rapid.SliceOf(rapid.Int32()).Draw(t, "ints")
		back := make([]int32, len(ints))
		require.NoError(t, Decode(Encode(ints), back))
		assert.Equal(t, ints, back)
	})
}
