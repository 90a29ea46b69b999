package getrf

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/tilegraph/internal/arena"
	"yqhp/tilegraph/internal/tiled"
)

func TestWorkspaceExtents(t *testing.T) {
	tests := []struct {
		p, q, mb, nb, nt int
		v, buffer        Extents
	}{
		{
			p: 2, q: 2, mb: 128, nb: 128, nt: 8,
			v:      Extents{TileRows: 5, TileCols: 128, Rows: 10, Cols: 256},
			buffer: Extents{TileRows: 128, TileCols: 128, Rows: 256, Cols: 1024},
		},
		{
			p: 1, q: 4, mb: 64, nb: 192, nt: 10,
			v:      Extents{TileRows: 5, TileCols: 192, Rows: 5, Cols: 768},
			buffer: Extents{TileRows: 64, TileCols: 192, Rows: 64, Cols: 1920},
		},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dx%d", tt.p, tt.q), func(t *testing.T) {
			v, buffer, acopy := WorkspaceExtents(tt.p, tt.q, tt.mb, tt.nb, tt.nt)
			assert.Equal(t, tt.v, v)
			assert.Equal(t, tt.buffer, buffer)
			assert.Equal(t, tt.buffer, acopy)
		})
	}
}

func TestNewWorkspaces_Shapes(t *testing.T) {
	alloc := tiled.NewAllocator()
	grid := tiled.Grid{P: 2, Q: 2}
	a, err := tiled.NewDescriptor(tiled.Complex128, grid, 3, 4, 4, 18, 18)
	require.NoError(t, err)

	ws, err := NewWorkspaces(alloc, a, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, tiled.Counts{Buffers: 3, Descriptors: 3, Objects: 3}, alloc.Live())

	// rank 3 is process (1, 1)
	assert.Len(t, ws.V.Tile(1, 1), LDV*4)
	assert.Nil(t, ws.V.Tile(0, 0))
	assert.Len(t, ws.Buffer.Tile(1, 3), 16)
	assert.Len(t, ws.ACopy.Tile(1, 1), 16)
	assert.Equal(t, a.NT()*4, ws.Buffer.Descriptor().N)

	require.NoError(t, ws.Teardown())
	assert.Zero(t, alloc.Live().Total())
	require.NoError(t, ws.Teardown())
}

func TestBuild_AllocationFailureUnwinds(t *testing.T) {
	for k := 1; k <= 3; k++ {
		t.Run(fmt.Sprintf("fail_at_%d", k), func(t *testing.T) {
			s := setupSelf(t, 12, 12, 4)
			defer func() { require.NoError(t, s.close()) }()

			baseline := s.env.Alloc.Live()
			s.env.Alloc.Trace()
			s.env.Alloc.FailOnAlloc(k)

			g, status, err := Build(s.env, s.a, s.ipiv, 1, 1)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.Equal(t, StatusBuildFailed, status)
			assert.True(t, IsAllocationFailure(err), err.Error())
			assert.ErrorIs(t, err, tiled.ErrAllocationFailed)

			assert.Equal(t, baseline, s.env.Alloc.Live())
			assert.Zero(t, s.env.Runtime.Types().Live())

			released := 0
			for _, ev := range s.env.Alloc.Events() {
				if ev.Op == "release" {
					released++
				}
			}
			assert.Equal(t, k-1, released)
		})
	}
}

// TestArenaSizingProperty checks the extents of the three arenas for any
// tile shape and swap depth.
func TestArenaSizingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("arena extents follow tile shape", prop.ForAll(
		func(mb, nb, ldv int) bool {
			defs := Definitions(tiled.Complex128, mb, nb, ldv)
			if defs[arena.Default].Extent() != mb*nb*16 ||
				defs[arena.Swap].Extent() != ldv*nb*16 ||
				defs[arena.Pivot].Extent() != mb*4 {
				return false
			}
			for _, def := range defs {
				if def.Alignment != arena.Alignment {
					return false
				}
			}
			reg := arena.NewRegistry(arena.NewTypeTable())
			if defineArenas(reg, defs) != nil || reg.Defined() != int(arena.NumRoles) {
				return false
			}
			return reg.UndefineAll() == nil && reg.Defined() == 0
		},
		gen.IntRange(1, 512),
		gen.IntRange(1, 512),
		gen.IntRange(1, 16),
	))

	properties.TestingRun(t)
}

func TestDefineArenas_Duplicate(t *testing.T) {
	reg := arena.NewRegistry(arena.NewTypeTable())
	defs := Definitions(tiled.Complex128, 4, 4, LDV)
	require.NoError(t, defineArenas(reg, defs))

	err := defineArenas(reg, defs)
	require.Error(t, err)
	assert.True(t, IsDuplicateRegistration(err))
	assert.ErrorIs(t, err, arena.ErrDuplicateRole)
	assert.Equal(t, int(arena.NumRoles), reg.Defined())
}
