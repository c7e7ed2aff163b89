package transport

import (
	"errors"
	"fmt"
	"sync"
)

// frameOverhead is the room kept in every chunk for the frame's JSON
// envelope: op, addresses and field names.
const frameOverhead = 1024

var errPayloadLimit = errors.New("payload limit too small to carry data")

// chunkData splits data into OpData frames from id whose encoded size stays
// within maxPayload. Data travels base64-encoded, so each chunk carries at
// most three quarters of the space left after the envelope. Every frame but
// the last has More set.
func chunkData(id string, data []byte, maxPayload int64) ([]Frame, error) {
	limit := int((maxPayload - frameOverhead) * 3 / 4)
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d bytes", errPayloadLimit, maxPayload)
	}
	if len(data) <= limit {
		return []Frame{{Op: OpData, From: id, Data: data}}, nil
	}

	frames := make([]Frame, 0, (len(data)+limit-1)/limit)
	for start := 0; start < len(data); start += limit {
		end := min(start+limit, len(data))
		frames = append(frames, Frame{
			Op:   OpData,
			From: id,
			Data: data[start:end],
			More: end < len(data),
		})
	}
	return frames, nil
}

// reassembler joins chunked OpData frames per sending peer. Frames of one
// link arrive in order, so a peer has at most one message in flight.
type reassembler struct {
	mu      sync.Mutex
	pending map[string][]byte
}

func newReassembler() *reassembler {
	return &reassembler{pending: make(map[string][]byte)}
}

// add buffers f and reports the complete message once its last chunk
// arrives.
func (r *reassembler) add(f Frame) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, buffered := r.pending[f.From]
	if f.More {
		r.pending[f.From] = append(buf, f.Data...)
		return nil, false
	}
	if !buffered {
		return f.Data, true
	}
	delete(r.pending, f.From)
	return append(buf, f.Data...), true
}

// drop discards a partial message from peer.
func (r *reassembler) drop(peer string) {
	r.mu.Lock()
	delete(r.pending, peer)
	r.mu.Unlock()
}
