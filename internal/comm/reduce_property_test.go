package comm

import (
	"context"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func allReduceLocal(statuses []int, op Op) []int {
	ranks := NewLocalGroup(len(statuses))
	out := make([]int, len(statuses))
	var wg sync.WaitGroup
	for i, c := range ranks {
		wg.Add(1)
		go func(i int, c *Local) {
			defer wg.Done()
			v, err := c.AllReduce(context.Background(), statuses[i], op)
			if err != nil {
				v = -1
			}
			out[i] = v
		}(i, c)
	}
	wg.Wait()
	return out
}

// TestAllReduceProperty checks that every rank sees the same result, that
// all-zero statuses reduce to zero, and that a nonzero status is visible
// under every op. Statuses are non-negative so SUM cannot cancel.
func TestAllReduceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	genStatuses := gen.SliceOfN(8, gen.IntRange(0, 3))

	for _, op := range []Op{OpSum, OpMax, OpLOr} {
		op := op
		properties.Property(op.String()+" reduction is global and faithful", prop.ForAll(
			func(statuses []int, n int) bool {
				statuses = statuses[:n]
				got := allReduceLocal(statuses, op)
				anyFailed := false
				for _, s := range statuses {
					anyFailed = anyFailed || s != 0
				}
				for _, v := range got {
					if v != got[0] {
						return false
					}
				}
				if got[0] != op.Reduce(statuses...) {
					return false
				}
				return (got[0] != 0) == anyFailed
			},
			genStatuses,
			gen.IntRange(1, 8),
		))
	}

	properties.TestingRun(t)
}
