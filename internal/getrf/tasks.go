package getrf

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/duke-git/lancet/v2/maputil"
	"go.uber.org/zap"

	"yqhp/tilegraph/internal/arena"
	"yqhp/tilegraph/internal/dataflow"
	"yqhp/tilegraph/internal/tiled"
)

// message kinds
const (
	tagGather uint8 = iota + 1
	tagScatter
	tagPivot
	tagDiag
	tagSwap
	tagUpper
	tagLower
)

func taskName(kind string, k int) string {
	return fmt.Sprintf("%s/%d", kind, k)
}

// move says that after step k's interchanges global row dst holds what
// global row src held before them.
type move struct {
	dst, src int
}

// permutation replays the interchanges of one step, row base+j with
// piv[j], and returns the resulting row moves ordered by destination.
func permutation(piv []int32, base int) []move {
	perm := make(map[int]int)
	at := func(i int) int {
		if v, ok := perm[i]; ok {
			return v
		}
		return i
	}
	for j, p := range piv {
		r := base + j
		if p < 0 || int(p) == r {
			continue
		}
		a, b := at(r), at(int(p))
		perm[r], perm[int(p)] = b, a
	}
	moves := make([]move, 0, len(perm))
	for dst, src := range perm {
		if dst != src {
			moves = append(moves, move{dst: dst, src: src})
		}
	}
	sort.Slice(moves, func(i, j int) bool { return moves[i].dst < moves[j].dst })
	return moves
}

// chunks splits moves into groups of at most LDV rows.
func chunks(moves []move) [][]move {
	var out [][]move
	for len(moves) > 0 {
		n := min(LDV, len(moves))
		out = append(out, moves[:n])
		moves = moves[n:]
	}
	return out
}

// plan holds the local view of the distribution used while generating
// tasks.
type plan struct {
	d      tiled.Descriptor
	grid   tiled.Grid
	me     int
	pr, pc int
}

func (g *Graph) plan() plan {
	d := g.a.Descriptor()
	pr, pc := d.Grid.Coords(d.Rank)
	return plan{d: d, grid: d.Grid, me: d.Rank, pr: pr, pc: pc}
}

// rowsFrom lists tile rows m >= from held by process row pr.
func (p plan) rowsFrom(from int) []int {
	var rows []int
	for m := from; m < p.d.MT(); m++ {
		if m%p.grid.P == p.pr {
			rows = append(rows, m)
		}
	}
	return rows
}

// colsFrom lists tile columns n >= from held by process column pc.
func (p plan) colsFrom(from int) []int {
	var cols []int
	for n := from; n < p.d.NT(); n++ {
		if n%p.grid.Q == p.pc {
			cols = append(cols, n)
		}
	}
	return cols
}

// otherCols lists tile columns n != k held by process column pc.
func (p plan) otherCols(k int) []int {
	var cols []int
	for _, n := range p.colsFrom(0) {
		if n != k {
			cols = append(cols, n)
		}
	}
	return cols
}

func (p plan) hasRowsAfter(prow, k int) bool {
	for m := k + 1; m < p.d.MT(); m++ {
		if m%p.grid.P == prow {
			return true
		}
	}
	return false
}

func (p plan) hasColumnsAfter(pcol, k int) bool {
	for n := k + 1; n < p.d.NT(); n++ {
		if n%p.grid.Q == pcol {
			return true
		}
	}
	return false
}

// Tasks returns the local tasks of every step. Each step's tasks run after
// the previous step completed on this rank.
func (g *Graph) Tasks() ([]*dataflow.Task, error) {
	if g.a == nil {
		return nil, newLifecycleError("tasks of "+g.Name(), errors.New("graph already destroyed"))
	}
	pl := g.plan()
	kmax := min(pl.d.MT(), pl.d.NT())

	var tasks []*dataflow.Task
	var prev []string
	for k := 0; k < kmax; k++ {
		step := g.stepTasks(pl, k, prev)
		names := make([]string, len(step))
		for i, t := range step {
			names[i] = t.Name
		}
		join := &dataflow.Task{Name: taskName("step", k), Kind: "step", After: names}
		tasks = append(tasks, step...)
		tasks = append(tasks, join)
		prev = []string{join.Name}
	}
	return tasks, nil
}

func (g *Graph) stepTasks(pl plan, k int, prev []string) []*dataflow.Task {
	var step []*dataflow.Task
	inColumn := k%pl.grid.Q == pl.pc

	if inColumn {
		if rows := pl.rowsFrom(k); len(rows) > 0 {
			step = append(step, g.gatherTask(pl, k, rows, prev), g.scatterTask(pl, k, rows, prev))
		}
	}
	if pl.d.Owner(k, k) == pl.me {
		step = append(step, g.panelTask(pl, k, prev))
	}
	step = append(step, g.swapTask(pl, k, prev), g.swapInTask(pl, k))

	colsAfter := pl.colsFrom(k + 1)
	if k%pl.grid.P == pl.pr && len(colsAfter) > 0 {
		step = append(step, g.trsmTask(pl, k, colsAfter))
	}
	if inColumn {
		if rows := pl.rowsFrom(k + 1); len(rows) > 0 {
			if t := g.lbcastTask(pl, k, rows); t != nil {
				step = append(step, t)
			}
		}
	}
	if rows := pl.rowsFrom(k + 1); len(rows) > 0 && len(colsAfter) > 0 {
		step = append(step, g.updateTask(pl, k, rows, colsAfter))
	}
	return step
}

func (g *Graph) unpackInto(role arena.Role, dst []complex128) func([]byte) error {
	return func(payload []byte) error {
		return arena.Unpack(g.arenas, role, payload, dst)
	}
}

// gatherTask ships the owned tiles of column k, from the diagonal down, to
// the diagonal owner.
func (g *Graph) gatherTask(pl plan, k int, rows []int, prev []string) *dataflow.Task {
	diag := pl.d.Owner(k, k)
	return &dataflow.Task{
		Name:  taskName("gather", k),
		Kind:  "gather",
		After: prev,
		Run: func(_ context.Context, tc *dataflow.TaskContext) error {
			for _, m := range rows {
				payload, err := arena.Pack(g.arenas, arena.Default, g.a.Tile(m, k))
				if err != nil {
					return err
				}
				if err := tc.Send(diag, arena.Default, dataflow.MakeTag(tagGather, k, m, 0), payload); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// scatterTask receives the factored tiles of column k back.
func (g *Graph) scatterTask(pl plan, k int, rows []int, prev []string) *dataflow.Task {
	diag := pl.d.Owner(k, k)
	return &dataflow.Task{
		Name:  taskName("scatter", k),
		Kind:  "scatter",
		After: prev,
		Inputs: func() []dataflow.Input {
			ins := make([]dataflow.Input, len(rows))
			for i, m := range rows {
				ins[i] = dataflow.Input{
					From:    diag,
					Tag:     dataflow.MakeTag(tagScatter, k, m, 0),
					Role:    arena.Default,
					Deliver: g.unpackInto(arena.Default, g.a.Tile(m, k)),
				}
			}
			return ins
		},
	}
}

// panelTask factors column k on the diagonal owner, returns the tiles,
// broadcasts the pivots and sends the diagonal tile along process row k.
func (g *Graph) panelTask(pl plan, k int, prev []string) *dataflow.Task {
	d := pl.d
	tiles := make([][]complex128, d.MT()-k)

	return &dataflow.Task{
		Name:  taskName("panel", k),
		Kind:  "panel",
		After: prev,
		Inputs: func() []dataflow.Input {
			ins := make([]dataflow.Input, len(tiles))
			for i := range tiles {
				m := k + i
				tiles[i] = make([]complex128, d.TileElems())
				ins[i] = dataflow.Input{
					From:    d.Owner(m, k),
					Tag:     dataflow.MakeTag(tagGather, k, m, 0),
					Role:    arena.Default,
					Deliver: g.unpackInto(arena.Default, tiles[i]),
				}
			}
			return ins
		},
		Run: func(_ context.Context, tc *dataflow.TaskContext) error {
			rows, cols := d.M-k*d.MB, d.TileCols(k)
			panel := make([]complex128, rows*cols)
			for i, tile := range tiles {
				off := i * d.MB
				for c := 0; c < cols; c++ {
					copy(panel[off+c*rows:off+c*rows+d.TileRows(k+i)], tile[c*d.MB:])
				}
			}

			ipiv := make([]int, min(rows, cols))
			if info := g.lib.PanelLU(panel, rows, rows, cols, ipiv); info != 0 {
				g.setInfo(k*d.NB + info)
				tc.Logger().Warn("zero pivot", zap.Int("column", k*d.NB+info))
			}

			for i, tile := range tiles {
				m := k + i
				off := i * d.MB
				for c := 0; c < cols; c++ {
					copy(tile[c*d.MB:c*d.MB+d.TileRows(m)], panel[off+c*rows:])
				}
				payload, err := arena.Pack(g.arenas, arena.Default, tile)
				if err != nil {
					return err
				}
				if err := tc.Send(d.Owner(m, k), arena.Default, dataflow.MakeTag(tagScatter, k, m, 0), payload); err != nil {
					return err
				}
			}

			piv := make([]int32, d.MB)
			for j := range piv {
				switch {
				case j < len(ipiv):
					piv[j] = int32(k*d.MB + ipiv[j])
				case j < d.TileRows(k):
					piv[j] = int32(k*d.MB + j)
				default:
					piv[j] = -1
				}
			}
			payload, err := arena.Pack(g.arenas, arena.Pivot, piv)
			if err != nil {
				return err
			}
			for r := 0; r < pl.grid.Size(); r++ {
				if err := tc.Send(r, arena.Pivot, dataflow.MakeTag(tagPivot, k, 0, 0), payload); err != nil {
					return err
				}
			}

			diagTile, err := arena.Pack(g.arenas, arena.Default, tiles[0])
			if err != nil {
				return err
			}
			for q := 0; q < pl.grid.Q; q++ {
				if !pl.hasColumnsAfter(q, k) {
					continue
				}
				to := pl.grid.Rank(k%pl.grid.P, q)
				if err := tc.Send(to, arena.Default, dataflow.MakeTag(tagDiag, k, 0, 0), diagTile); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (g *Graph) readRow(row, n int, dst []complex128) {
	d := g.a.Descriptor()
	tile := g.a.Tile(row/d.MB, n)
	r := row % d.MB
	for c := range dst {
		dst[c] = tile[r+c*d.MB]
	}
}

func (g *Graph) writeRow(row, n int, src []complex128) {
	d := g.a.Descriptor()
	tile := g.a.Tile(row/d.MB, n)
	r := row % d.MB
	for c, v := range src {
		tile[r+c*d.MB] = v
	}
}

// exchanges groups the moves of column n whose source rows live on this
// rank (outgoing) or whose destination rows do (incoming), keyed by the
// peer rank. Moves with both ends local are returned separately.
func (pl plan) exchanges(moves []move, n int) (out, in map[int][]move, local []move) {
	out, in = make(map[int][]move), make(map[int][]move)
	for _, mv := range moves {
		src := pl.d.Owner(mv.src/pl.d.MB, n)
		dst := pl.d.Owner(mv.dst/pl.d.MB, n)
		switch {
		case src == pl.me && dst == pl.me:
			local = append(local, mv)
		case src == pl.me:
			out[dst] = append(out[dst], mv)
		case dst == pl.me:
			in[src] = append(in[src], mv)
		}
	}
	return out, in, local
}

func sortedKeys(m map[int][]move) []int {
	keys := maputil.Keys(m)
	sort.Ints(keys)
	return keys
}

// swapTask receives the pivots of step k, records them in IPIV and applies
// the interchanges to every owned column other than k. Rows leaving this
// rank are staged LDV at a time in V.
func (g *Graph) swapTask(pl plan, k int, prev []string) *dataflow.Task {
	d := pl.d
	return &dataflow.Task{
		Name:  taskName("swap", k),
		Kind:  "swap",
		After: prev,
		Inputs: func() []dataflow.Input {
			return []dataflow.Input{{
				From: d.Owner(k, k),
				Tag:  dataflow.MakeTag(tagPivot, k, 0, 0),
				Role: arena.Pivot,
				Deliver: func(payload []byte) error {
					piv := make([]int32, d.MB)
					if err := arena.Unpack(g.arenas, arena.Pivot, payload, piv); err != nil {
						return err
					}
					g.pivots[k] = piv
					return nil
				},
			}}
		},
		Run: func(_ context.Context, tc *dataflow.TaskContext) error {
			piv := g.pivots[k]
			if tile := g.ipiv.Tile(k, 0); tile != nil {
				copy(tile[:d.TileRows(k)], piv)
			}

			moves := permutation(piv, k*d.MB)
			if len(moves) == 0 {
				return nil
			}
			stage := g.ws.V.Tile(pl.pr, pl.pc)
			row := make([]complex128, d.NB)

			for _, n := range pl.otherCols(k) {
				out, _, local := pl.exchanges(moves, n)
				for _, to := range sortedKeys(out) {
					for ci, chunk := range chunks(out[to]) {
						clear(stage)
						for r, mv := range chunk {
							g.readRow(mv.src, n, row)
							for c, v := range row {
								stage[r+c*LDV] = v
							}
						}
						payload, err := arena.Pack(g.arenas, arena.Swap, stage)
						if err != nil {
							return err
						}
						if err := tc.Send(to, arena.Swap, dataflow.MakeTag(tagSwap, k, n, ci), payload); err != nil {
							return err
						}
					}
				}

				saved := make([][]complex128, len(local))
				for i, mv := range local {
					saved[i] = make([]complex128, d.NB)
					g.readRow(mv.src, n, saved[i])
				}
				for i, mv := range local {
					g.writeRow(mv.dst, n, saved[i])
				}
			}
			return nil
		},
	}
}

// swapInTask writes the rows other ranks sent for step k. Its inputs are
// derived from the pivots once swap/k completed.
func (g *Graph) swapInTask(pl plan, k int) *dataflow.Task {
	d := pl.d
	return &dataflow.Task{
		Name:  taskName("swapin", k),
		Kind:  "swap",
		After: []string{taskName("swap", k)},
		Inputs: func() []dataflow.Input {
			moves := permutation(g.pivots[k], k*d.MB)
			var ins []dataflow.Input
			for _, n := range pl.otherCols(k) {
				_, in, _ := pl.exchanges(moves, n)
				for _, from := range sortedKeys(in) {
					for ci, chunk := range chunks(in[from]) {
						ins = append(ins, dataflow.Input{
							From: from,
							Tag:  dataflow.MakeTag(tagSwap, k, n, ci),
							Role: arena.Swap,
							Deliver: func(payload []byte) error {
								block := make([]complex128, LDV*d.NB)
								if err := arena.Unpack(g.arenas, arena.Swap, payload, block); err != nil {
									return err
								}
								row := make([]complex128, d.NB)
								for r, mv := range chunk {
									for c := range row {
										row[c] = block[r+c*LDV]
									}
									g.writeRow(mv.dst, n, row)
								}
								return nil
							},
						})
					}
				}
			}
			return ins
		},
	}
}

// trsmTask solves the U tiles of row k with the diagonal tile copied into
// ACOPY and sends them down the process column into BUFFER.
func (g *Graph) trsmTask(pl plan, k int, cols []int) *dataflow.Task {
	d := pl.d
	return &dataflow.Task{
		Name:  taskName("trsm", k),
		Kind:  "trsm",
		After: []string{taskName("swapin", k)},
		Inputs: func() []dataflow.Input {
			return []dataflow.Input{{
				From: d.Owner(k, k),
				Tag:  dataflow.MakeTag(tagDiag, k, 0, 0),
				Role: arena.Default,
				Deliver: func(payload []byte) error {
					for _, n := range cols {
						if err := arena.Unpack(g.arenas, arena.Default, payload, g.ws.ACopy.Tile(pl.pr, n)); err != nil {
							return err
						}
					}
					return nil
				},
			}}
		},
		Run: func(_ context.Context, tc *dataflow.TaskContext) error {
			kb := min(d.TileRows(k), d.TileCols(k))
			for _, n := range cols {
				u := g.a.Tile(k, n)
				g.lib.TrsmLowerUnit(g.ws.ACopy.Tile(pl.pr, n), d.MB, u, d.MB, kb, d.TileCols(n))

				payload, err := arena.Pack(g.arenas, arena.Default, u)
				if err != nil {
					return err
				}
				for p := 0; p < pl.grid.P; p++ {
					if !pl.hasRowsAfter(p, k) {
						continue
					}
					if err := tc.Send(pl.grid.Rank(p, pl.pc), arena.Default, dataflow.MakeTag(tagUpper, k, n, 0), payload); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// lbcastTask sends the L tiles of column k below the diagonal across the
// process row. It returns nil when no rank of the row needs them.
func (g *Graph) lbcastTask(pl plan, k int, rows []int) *dataflow.Task {
	var targets []int
	for q := 0; q < pl.grid.Q; q++ {
		if pl.hasColumnsAfter(q, k) {
			targets = append(targets, pl.grid.Rank(pl.pr, q))
		}
	}
	if len(targets) == 0 {
		return nil
	}
	return &dataflow.Task{
		Name:  taskName("lbcast", k),
		Kind:  "lbcast",
		After: []string{taskName("scatter", k)},
		Run: func(_ context.Context, tc *dataflow.TaskContext) error {
			for _, m := range rows {
				payload, err := arena.Pack(g.arenas, arena.Default, g.a.Tile(m, k))
				if err != nil {
					return err
				}
				for _, to := range targets {
					if err := tc.Send(to, arena.Default, dataflow.MakeTag(tagLower, k, m, 0), payload); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// updateTask applies the rank-kb update A(m,n) -= L(m,k) * U(k,n) to the
// owned trailing tiles.
func (g *Graph) updateTask(pl plan, k int, rows, cols []int) *dataflow.Task {
	d := pl.d
	lower := make(map[int][]complex128, len(rows))
	return &dataflow.Task{
		Name:  taskName("update", k),
		Kind:  "update",
		After: []string{taskName("swapin", k)},
		Inputs: func() []dataflow.Input {
			ins := make([]dataflow.Input, 0, len(rows)+len(cols))
			for _, m := range rows {
				buf := make([]complex128, d.TileElems())
				lower[m] = buf
				ins = append(ins, dataflow.Input{
					From:    d.Owner(m, k),
					Tag:     dataflow.MakeTag(tagLower, k, m, 0),
					Role:    arena.Default,
					Deliver: g.unpackInto(arena.Default, buf),
				})
			}
			uFrom := pl.grid.Rank(k%pl.grid.P, pl.pc)
			for _, n := range cols {
				ins = append(ins, dataflow.Input{
					From:    uFrom,
					Tag:     dataflow.MakeTag(tagUpper, k, n, 0),
					Role:    arena.Default,
					Deliver: g.unpackInto(arena.Default, g.ws.Buffer.Tile(pl.pr, n)),
				})
			}
			return ins
		},
		Run: func(context.Context, *dataflow.TaskContext) error {
			kb := min(d.TileRows(k), d.TileCols(k))
			for _, m := range rows {
				for _, n := range cols {
					g.lib.GemmSub(g.a.Tile(m, n), d.MB, lower[m], d.MB,
						g.ws.Buffer.Tile(pl.pr, n), d.MB, d.TileRows(m), d.TileCols(n), kb)
				}
			}
			return nil
		},
	}
}
