package comm

import (
	"github.com/vmihailenco/msgpack/v5"
)

type envelopeKind uint8

const (
	kindHello envelopeKind = iota + 1
	kindReady
	kindData
	kindReduce
	kindResult
	kindReject
)

// envelope is the msgpack frame exchanged between peers and the hub.
type envelope struct {
	Kind    envelopeKind `msgpack:"k"`
	From    int          `msgpack:"f"`
	To      int          `msgpack:"t"`
	Size    int          `msgpack:"n,omitempty"`
	Tag     Tag          `msgpack:"g"`
	Seq     uint64       `msgpack:"q,omitempty"`
	Op      Op           `msgpack:"o,omitempty"`
	Value   int          `msgpack:"v,omitempty"`
	Payload []byte       `msgpack:"p,omitempty"`
	Error   string       `msgpack:"e,omitempty"`
}

func (e *envelope) encode() ([]byte, error) {
	return msgpack.Marshal(e)
}

func decodeEnvelope(data []byte) (*envelope, error) {
	var e envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
