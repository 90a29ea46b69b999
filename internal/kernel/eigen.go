package kernel

import (
	"math"
	"sort"
)

// Tridiagonalize reduces the symmetric n x n matrix a, overwritten, to a
// tridiagonal matrix with Householder reflections. It returns the diagonal
// d and subdiagonal e.
func (l *Library) Tridiagonalize(a []float64, n int) (d, e []float64) {
	at := func(i, j int) *float64 { return &a[i+j*n] }
	v := make([]float64, n)
	p := make([]float64, n)

	for k := 0; k+2 < n; k++ {
		var norm float64
		for i := k + 1; i < n; i++ {
			norm = math.Hypot(norm, *at(i, k))
		}
		if norm == 0 {
			continue
		}
		alpha := -math.Copysign(norm, *at(k+1, k))
		for i := k + 1; i < n; i++ {
			v[i] = *at(i, k)
		}
		v[k+1] -= alpha
		var vnorm float64
		for i := k + 1; i < n; i++ {
			vnorm = math.Hypot(vnorm, v[i])
		}
		if vnorm == 0 {
			continue
		}
		for i := k + 1; i < n; i++ {
			v[i] /= vnorm
		}

		// p = A22 v, K = v'p, q = p - K v
		var kk float64
		for i := k + 1; i < n; i++ {
			var s float64
			for j := k + 1; j < n; j++ {
				s += *at(i, j) * v[j]
			}
			p[i] = s
			kk += v[i] * s
		}
		for i := k + 1; i < n; i++ {
			p[i] -= kk * v[i]
		}
		for j := k + 1; j < n; j++ {
			for i := k + 1; i < n; i++ {
				*at(i, j) -= 2 * (v[i]*p[j] + p[i]*v[j])
			}
		}

		*at(k+1, k) = alpha
		*at(k, k+1) = alpha
		for i := k + 2; i < n; i++ {
			*at(i, k) = 0
			*at(k, i) = 0
		}
	}

	d = make([]float64, n)
	e = make([]float64, max(n-1, 0))
	for i := 0; i < n; i++ {
		d[i] = *at(i, i)
		if i+1 < n {
			e[i] = *at(i+1, i)
		}
	}
	return d, e
}

// sturmCount returns the number of eigenvalues of the tridiagonal (d, e)
// smaller than x.
func sturmCount(d, e []float64, x float64) int {
	count := 0
	q := d[0] - x
	for i := 0; ; i++ {
		if q < 0 {
			count++
		}
		if i+1 == len(d) {
			return count
		}
		if q == 0 {
			q = math.SmallestNonzeroFloat64 * 1e10
		}
		q = d[i+1] - x - e[i]*e[i]/q
	}
}

// TridiagEigenvalues returns the eigenvalues of the symmetric tridiagonal
// matrix with diagonal d and subdiagonal e in ascending order, computed by
// Sturm sequence bisection.
func (l *Library) TridiagEigenvalues(d, e []float64) []float64 {
	n := len(d)
	if n == 0 {
		return nil
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		var r float64
		if i > 0 {
			r += math.Abs(e[i-1])
		}
		if i+1 < n {
			r += math.Abs(e[i])
		}
		lo = min(lo, d[i]-r)
		hi = max(hi, d[i]+r)
	}
	span := max(math.Abs(lo), math.Abs(hi), math.SmallestNonzeroFloat64)
	lo -= 2 * Eps() * span
	hi += 2 * Eps() * span

	w := make([]float64, n)
	for k := 0; k < n; k++ {
		a, b := lo, hi
		for it := 0; it < 200 && b-a > 2*Eps()*max(math.Abs(a), math.Abs(b)); it++ {
			mid := a + (b-a)/2
			if mid == a || mid == b {
				break
			}
			if sturmCount(d, e, mid) > k {
				b = mid
			} else {
				a = mid
			}
		}
		w[k] = a + (b-a)/2
	}
	return w
}

// JacobiEigenvalues returns the eigenvalues of the symmetric n x n matrix a
// in ascending order using cyclic Jacobi rotations. a is overwritten.
func (l *Library) JacobiEigenvalues(a []float64, n int) []float64 {
	at := func(i, j int) *float64 { return &a[i+j*n] }

	var total float64
	for _, x := range a[:n*n] {
		total += x * x
	}
	tol := Eps() * Eps() * total

	for sweep := 0; sweep < 100; sweep++ {
		var off float64
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				if i != j {
					off += *at(i, j) * *at(i, j)
				}
			}
		}
		if off <= tol {
			break
		}
		for p := 0; p < n-1; p++ {
			for q := p + 1; q < n; q++ {
				apq := *at(p, q)
				if apq == 0 {
					continue
				}
				theta := (*at(q, q) - *at(p, p)) / (2 * apq)
				t := 1 / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				if theta < 0 {
					t = -t
				}
				c := 1 / math.Sqrt(t*t+1)
				s := t * c
				for k := 0; k < n; k++ {
					akp, akq := *at(k, p), *at(k, q)
					*at(k, p) = c*akp - s*akq
					*at(k, q) = s*akp + c*akq
				}
				for k := 0; k < n; k++ {
					apk, aqk := *at(p, k), *at(q, k)
					*at(p, k) = c*apk - s*aqk
					*at(q, k) = s*apk + c*aqk
				}
			}
		}
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = *at(i, i)
	}
	sort.Float64s(w)
	return w
}
