package harness

import "math"

// Threshold bounds the normalized eigenvalue residual of a correct run.
const Threshold = 1000.0

// Verdict is the outcome of a solution check.
type Verdict int

const (
	NotChecked Verdict = iota
	Correct
	Suspicious
)

func (v Verdict) String() string {
	switch v {
	case Correct:
		return "CORRECT"
	case Suspicious:
		return "SUSPICIOUS"
	default:
		return "no check performed"
	}
}

// Passed reports whether the verdict lets the run succeed.
func (v Verdict) Passed() bool { return v != Suspicious }

// Check is a verdict with the ratio it was decided on.
type Check struct {
	Verdict Verdict
	Ratio   float64
}

// CheckSolution compares computed eigenvalues e1 with reference values e2.
// The residual is max ||e1[i]| - |e2[i]|| over max(|e1[i]|, |e2[i]|) * eps;
// the check passes when it is finite and at most Threshold.
func CheckSolution(e1, e2 []float64, eps float64) Check {
	n := min(len(e1), len(e2))
	if n == 0 || len(e1) != len(e2) {
		return Check{Verdict: Suspicious, Ratio: math.NaN()}
	}

	var maxel, maxeig float64
	for i := 0; i < n; i++ {
		a, b := math.Abs(e1[i]), math.Abs(e2[i])
		maxel = max(maxel, math.Abs(a-b))
		maxeig = max(maxeig, a, b)
	}

	ratio := maxel / (maxeig * eps)
	if maxel == 0 {
		ratio = 0
	}
	scaled := maxel / eps
	if math.IsNaN(scaled) || math.IsInf(scaled, 0) || math.IsNaN(ratio) || ratio > Threshold {
		return Check{Verdict: Suspicious, Ratio: ratio}
	}
	return Check{Verdict: Correct, Ratio: ratio}
}
