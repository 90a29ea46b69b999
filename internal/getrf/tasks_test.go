package getrf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"yqhp/tilegraph/internal/comm"
	"yqhp/tilegraph/internal/tiled"
)

func TestPermutation_MatchesSequentialSwaps(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rows := rapid.IntRange(1, 40).Draw(t, "rows")
		base := rapid.IntRange(0, rows-1).Draw(t, "base")
		width := rapid.IntRange(1, rows-base).Draw(t, "width")

		piv := make([]int32, width)
		for j := range piv {
			piv[j] = int32(rapid.IntRange(base+j, rows-1).Draw(t, "piv"))
		}

		want := make([]int, rows)
		for i := range want {
			want[i] = i
		}
		for j, p := range piv {
			want[base+j], want[p] = want[p], want[base+j]
		}

		got := make([]int, rows)
		for i := range got {
			got[i] = i
		}
		for _, mv := range permutation(piv, base) {
			got[mv.dst] = mv.src
		}
		if !assert.ObjectsAreEqual(want, got) {
			t.Fatalf("permutation %v, sequential swaps %v", got, want)
		}
	})
}

func TestPermutation_SkipsPadding(t *testing.T) {
	assert.Empty(t, permutation([]int32{4, 5, -1, -1}, 4))
	assert.Equal(t, []move{{dst: 0, src: 2}, {dst: 2, src: 0}}, permutation([]int32{2, 1, -1}, 0))
}

func TestChunks(t *testing.T) {
	moves := make([]move, 12)
	got := chunks(moves)
	require.Len(t, got, 3)
	assert.Len(t, got[0], LDV)
	assert.Len(t, got[1], LDV)
	assert.Len(t, got[2], 2)
	assert.Empty(t, chunks(nil))
}

func TestTasks_StepStructure(t *testing.T) {
	// rank 0 of a 2x2 grid: process (0, 0)
	ranks := comm.NewLocalGroup(4)
	s, err := setupRank(ranks[0], tiled.Grid{P: 2, Q: 2}, 10, 10, 3, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.close()) }()

	g, _, err := Build(s.env, s.a, s.ipiv, 2, 2)
	require.NoError(t, err)
	tasks, err := g.Tasks()
	require.NoError(t, err)

	byName := make(map[string][]string)
	for _, task := range tasks {
		byName[task.Name] = task.After
	}
	for _, name := range []string{
		"gather/0", "panel/0", "scatter/0", "swap/0", "swapin/0", "trsm/0", "lbcast/0", "update/0", "step/0",
		"swap/1", "swapin/1", "update/1", "step/1",
		"gather/2", "panel/2", "scatter/2", "step/2",
		"swap/3", "step/3",
	} {
		assert.Contains(t, byName, name)
	}
	// process row 0 never solves row 1, process column 0 never factors
	// column 1, and nothing trails column 2 on this rank
	for _, name := range []string{"trsm/1", "panel/1", "gather/1", "panel/3", "trsm/2", "update/2"} {
		assert.NotContains(t, byName, name)
	}
	assert.Equal(t, []string{"step/0"}, byName["swap/1"])
	assert.Equal(t, []string{"swapin/1"}, byName["update/1"])
	assert.Equal(t, []string{"scatter/0"}, byName["lbcast/0"])

	// the graph was never enqueued, so it is torn down by hand
	require.NoError(t, g.ws.Teardown())
	require.NoError(t, g.arenas.UndefineAll())
}
