package transport

import (
	"encoding/json"
	"fmt"
)

// Op is a relay frame operation.
type Op string

const (
	OpRegister   Op = "register"
	OpRegistered Op = "registered"
	OpConnect    Op = "connect"
	OpOpen       Op = "open"
	OpData       Op = "data"
	OpClose      Op = "close"
	OpError      Op = "error"
)

// Relay error codes.
const (
	CodeUnavailableID   = "unavailable-id"
	CodePeerUnavailable = "peer-unavailable"
	CodeInvalidFrame    = "invalid-frame"
)

// Frame is the unit exchanged with the relay. From is filled in by the
// relay on frames it forwards; To is set by the sender. More marks an
// OpData chunk that is continued by the next frame of the same link.
type Frame struct {
	Op      Op     `json:"op"`
	ID      string `json:"id,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    []byte `json:"data,omitempty"`
	More    bool   `json:"more,omitempty"`
}

// Encode marshals f.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame parses and checks the fields each op requires.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Op {
	case OpRegister, OpRegistered, OpError:
	case OpConnect, OpOpen, OpData, OpClose:
		if f.To == "" && f.From == "" {
			return Frame{}, fmt.Errorf("decode frame: %s requires a peer", f.Op)
		}
	default:
		return Frame{}, fmt.Errorf("decode frame: unknown op %q", f.Op)
	}
	return f, nil
}

// Err converts an error frame into one of the package errors.
func (f Frame) Err() error {
	switch f.Code {
	case CodeUnavailableID:
		return fmt.Errorf("%w: %s", ErrAddressInUse, f.ID)
	case CodePeerUnavailable:
		return fmt.Errorf("%w: %s", ErrPeerUnavailable, f.ID)
	default:
		return fmt.Errorf("relay error %s: %s", f.Code, f.Message)
	}
}
