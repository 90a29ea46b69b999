package kernel

import "math"

func cabs1(z complex128) float64 {
	return math.Abs(real(z)) + math.Abs(imag(z))
}

// PanelLU factors the m x n matrix a in place with partial pivoting,
// a = P*L*U. ipiv[j] receives the row swapped with row j, 0-based, for
// j < min(m, n). The result is the 1-based index of the first exactly zero
// pivot, or 0.
func (l *Library) PanelLU(a []complex128, lda, m, n int, ipiv []int) int {
	info := 0
	for j := 0; j < min(m, n); j++ {
		col := a[j*lda:]
		p := j
		best := cabs1(col[j])
		for i := j + 1; i < m; i++ {
			if v := cabs1(col[i]); v > best {
				p, best = i, v
			}
		}
		ipiv[j] = p

		if col[p] != 0 {
			if p != j {
				SwapRows(a, lda, n, j, p)
			}
			r := 1 / col[j]
			for i := j + 1; i < m; i++ {
				col[i] *= r
			}
		} else if info == 0 {
			info = j + 1
		}

		for c := j + 1; c < n; c++ {
			cc := a[c*lda:]
			t := cc[j]
			if t == 0 {
				continue
			}
			for i := j + 1; i < m; i++ {
				cc[i] -= col[i] * t
			}
		}
	}
	return info
}

// SwapRows exchanges rows r1 and r2 across n columns.
func SwapRows[T any](a []T, lda, n, r1, r2 int) {
	for c := 0; c < n; c++ {
		a[r1+c*lda], a[r2+c*lda] = a[r2+c*lda], a[r1+c*lda]
	}
}

// TrsmLowerUnit overwrites the m x n matrix b with inv(L)*b, where L is the
// unit lower triangle of the m x m matrix lt.
func (l *Library) TrsmLowerUnit(lt []complex128, ldl int, b []complex128, ldb, m, n int) {
	for c := 0; c < n; c++ {
		bc := b[c*ldb:]
		for k := 0; k < m; k++ {
			t := bc[k]
			if t == 0 {
				continue
			}
			lk := lt[k*ldl:]
			for i := k + 1; i < m; i++ {
				bc[i] -= t * lk[i]
			}
		}
	}
}

// GemmSub computes c -= a*b for an m x k matrix a and a k x n matrix b.
func (l *Library) GemmSub(c []complex128, ldc int, a []complex128, lda int, b []complex128, ldb, m, n, k int) {
	for j := 0; j < n; j++ {
		cj := c[j*ldc:]
		bj := b[j*ldb:]
		for p := 0; p < k; p++ {
			t := bj[p]
			if t == 0 {
				continue
			}
			ap := a[p*lda:]
			for i := 0; i < m; i++ {
				cj[i] -= ap[i] * t
			}
		}
	}
}

// LUResidual returns max|P*A - L*U| / (max|A| * n * eps) for the n x n
// matrix a factored into lu with 0-based row interchanges ipiv, applied in
// order.
func (l *Library) LUResidual(a []complex128, lu []complex128, n int, ipiv []int) float64 {
	pa := make([]complex128, n*n)
	copy(pa, a)
	for j, p := range ipiv[:n] {
		if p != j {
			SwapRows(pa, n, n, j, p)
		}
	}

	var anorm, rnorm float64
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			var s complex128
			for k := 0; k <= min(i, j); k++ {
				lik := lu[i+k*n]
				if k == i {
					lik = 1
				}
				s += lik * lu[k+j*n]
			}
			rnorm = max(rnorm, cabs1(pa[i+j*n]-s))
			anorm = max(anorm, cabs1(a[i+j*n]))
		}
	}
	if anorm == 0 {
		return rnorm
	}
	return rnorm / (anorm * float64(n) * Eps())
}
