// Package protocol defines the messages stations exchange over a sync
// session and the session code that addresses a hosting station.
//
// Every message is a JSON envelope {"type": ..., "payload": ...}:
//
//	INIT       {guests, scanLogs}  host -> newly joined client, once
//	NEW_SCAN   ScanLog             any -> host, host -> all other peers
//	NEW_GUEST  Guest               any -> host, host -> all other peers
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/eventguard/internal/model"
)

// MessageType discriminates envelopes.
type MessageType string

const (
	TypeInit     MessageType = "INIT"
	TypeNewScan  MessageType = "NEW_SCAN"
	TypeNewGuest MessageType = "NEW_GUEST"
)

// ErrUnknownType is returned by Decode for an envelope whose type is not
// one of the three message types.
var ErrUnknownType = errors.New("unknown message type")

// Envelope is the wire form of every message.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message is a decoded envelope. Exactly one payload field is set,
// matching Type.
type Message struct {
	Type     MessageType
	Snapshot *model.Snapshot
	Log      *model.ScanLog
	Guest    *model.Guest
}

// EncodeInit builds an INIT message carrying the full snapshot.
func EncodeInit(s model.Snapshot) ([]byte, error) {
	if s.Guests == nil {
		s.Guests = []model.Guest{}
	}
	if s.ScanLogs == nil {
		s.ScanLogs = []model.ScanLog{}
	}
	return encode(TypeInit, s)
}

// EncodeScan builds a NEW_SCAN message.
func EncodeScan(l model.ScanLog) ([]byte, error) {
	return encode(TypeNewScan, l)
}

// EncodeGuest builds a NEW_GUEST message.
func EncodeGuest(g model.Guest) ([]byte, error) {
	return encode(TypeNewGuest, g)
}

func encode(t MessageType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// Decode parses an envelope and its payload. An INIT whose arrays are
// missing or null decodes to empty collections.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}

	msg := Message{Type: env.Type}
	switch env.Type {
	case TypeInit:
		var s model.Snapshot
		if err := unmarshalPayload(env, &s); err != nil {
			return Message{}, err
		}
		if s.Guests == nil {
			s.Guests = []model.Guest{}
		}
		if s.ScanLogs == nil {
			s.ScanLogs = []model.ScanLog{}
		}
		msg.Snapshot = &s
	case TypeNewScan:
		var l model.ScanLog
		if err := unmarshalPayload(env, &l); err != nil {
			return Message{}, err
		}
		msg.Log = &l
	case TypeNewGuest:
		var g model.Guest
		if err := unmarshalPayload(env, &g); err != nil {
			return Message{}, err
		}
		msg.Guest = &g
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return msg, nil
}

func unmarshalPayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		if env.Type == TypeInit {
			return nil
		}
		return fmt.Errorf("decode %s: missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}
