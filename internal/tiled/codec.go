package tiled

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrPayloadSize is returned when a payload does not match the expected
// byte layout.
var ErrPayloadSize = errors.New("payload size mismatch")

// Encode packs elements into their little-endian wire layout: float64 as
// IEEE-754 bits, complex128 as real then imaginary part, int32 as two's
// complement.
func Encode[T Scalar](src []T) []byte {
	size := TypeOf[T]().Size()
	out := make([]byte, len(src)*size)
	for i, v := range src {
		putElem(out[i*size:], v)
	}
	return out
}

// Decode unpacks a payload produced by Encode into dst. The payload must
// hold exactly len(dst) elements.
func Decode[T Scalar](payload []byte, dst []T) error {
	size := TypeOf[T]().Size()
	if len(payload) != len(dst)*size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrPayloadSize, len(payload), len(dst)*size)
	}
	for i := range dst {
		dst[i] = getElem[T](payload[i*size:])
	}
	return nil
}

func putElem[T Scalar](b []byte, v T) {
	switch x := any(v).(type) {
	case float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(x))
	case complex128:
		binary.LittleEndian.PutUint64(b, math.Float64bits(real(x)))
		binary.LittleEndian.PutUint64(b[8:], math.Float64bits(imag(x)))
	case int32:
		binary.LittleEndian.PutUint32(b, uint32(x))
	}
}

func getElem[T Scalar](b []byte) T {
	var zero T
	switch any(zero).(type) {
	case float64:
		return any(math.Float64frombits(binary.LittleEndian.Uint64(b))).(T)
	case complex128:
		re := math.Float64frombits(binary.LittleEndian.Uint64(b))
		im := math.Float64frombits(binary.LittleEndian.Uint64(b[8:]))
		return any(complex(re, im)).(T)
	case int32:
		return any(int32(binary.LittleEndian.Uint32(b))).(T)
	}
	return zero
}
