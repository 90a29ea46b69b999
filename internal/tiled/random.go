package tiled

// RandomValue returns a reproducible value in [-0.5, 0.5) for global
// element (i, j) under seed. The value depends only on its arguments, so a
// matrix fills identically whatever its tiling or distribution.
func RandomValue(seed int64, i, j int) float64 {
	x := uint64(seed)
	x = mix(x ^ uint64(i)*0x9e3779b97f4a7c15)
	x = mix(x ^ uint64(j)*0xc2b2ae3d27d4eb4f)
	return float64(x>>11)/(1<<53) - 0.5
}

// splitmix64 finalizer
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// FillRandom fills every local element of m from seed. Complex matrices
// draw the imaginary part from a second stream.
func FillRandom[T Scalar](m *Matrix[T], seed int64) {
	m.Each(func(i, j int, v *T) {
		re := RandomValue(seed, i, j)
		switch p := any(v).(type) {
		case *float64:
			*p = re
		case *complex128:
			*p = complex(re, RandomValue(^seed, i, j))
		case *int32:
			*p = int32(re * (1 << 16))
		}
	})
}

// FillDiagonallyDominant fills m like FillRandom and adds bump to every
// diagonal element, which keeps LU pivots away from zero.
func FillDiagonallyDominant[T Scalar](m *Matrix[T], seed int64, bump float64) {
	FillRandom(m, seed)
	m.Each(func(i, j int, v *T) {
		if i != j {
			return
		}
		switch p := any(v).(type) {
		case *float64:
			*p += bump
		case *complex128:
			*p += complex(bump, 0)
		case *int32:
			*p += int32(bump)
		}
	})
}
