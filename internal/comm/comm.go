// Package comm is the point-to-point and collective layer ranks use to
// exchange graph payloads and combine status values.
//
// Three communicators are provided: Self for a single process, a local group
// of in-process ranks sharing mailboxes, and a websocket network where every
// rank connects to a hub hosted by rank 0.
package comm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrClosed      = errors.New("communicator closed")
	ErrInvalidRank = errors.New("rank outside communicator")
	ErrUnknownOp   = errors.New("unknown reduction op")
)

// Communicator connects one rank to its peers. Send never waits for the
// receiver; messages with the same source and tag are delivered in order.
type Communicator interface {
	Rank() int
	Size() int
	Send(to int, tag Tag, payload []byte) error
	Recv(ctx context.Context, from int, tag Tag) ([]byte, error)
	// AllReduce combines v from every rank with op. Every rank receives the
	// same result. Collective calls must be made in the same order on all
	// ranks.
	AllReduce(ctx context.Context, v int, op Op) (int, error)
	Barrier(ctx context.Context) error
	Close() error
}

// Tag identifies a message within a graph object.
type Tag struct {
	Object uint32 `msgpack:"o"`
	Kind   uint8  `msgpack:"k"`
	K      int32  `msgpack:"s"`
	I      int32  `msgpack:"i"`
	J      int32  `msgpack:"j"`
}

func (t Tag) String() string {
	return fmt.Sprintf("obj%d/%d(%d,%d,%d)", t.Object, t.Kind, t.K, t.I, t.J)
}

// Op is a reduction operator over int status values.
type Op int

const (
	OpSum Op = iota
	OpMax
	OpLOr
)

// ParseOp maps "sum", "max" or "lor" to an Op.
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(s) {
	case "sum", "":
		return OpSum, nil
	case "max":
		return OpMax, nil
	case "lor", "or":
		return OpLOr, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOp, s)
	}
}

func (o Op) String() string {
	switch o {
	case OpSum:
		return "sum"
	case OpMax:
		return "max"
	case OpLOr:
		return "lor"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Apply combines two values.
func (o Op) Apply(a, b int) int {
	switch o {
	case OpMax:
		return max(a, b)
	case OpLOr:
		if a != 0 || b != 0 {
			return 1
		}
		return 0
	default:
		return a + b
	}
}

// Reduce folds values with o. A single value reduces to itself, except
// under OpLOr where every result is 0 or 1.
func (o Op) Reduce(values ...int) int {
	if len(values) == 0 {
		return 0
	}
	acc := values[0]
	if o == OpLOr {
		acc = o.Apply(acc, 0)
	}
	for _, v := range values[1:] {
		acc = o.Apply(acc, v)
	}
	return acc
}
