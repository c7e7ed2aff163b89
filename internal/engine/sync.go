package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/eventguard/internal/metrics"
	"github.com/roach88/eventguard/internal/model"
	"github.com/roach88/eventguard/internal/protocol"
)

var errHostClosed = errors.New("host closed the link")

// handleOpen processes a link that opened.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) handleOpen(_ context.Context, peer string) error {
	s := e.sess
	switch s.mode {
	case ModeHost:
		data, err := protocol.EncodeInit(e.registry.Snapshot())
		if err != nil {
			e.alert(AlertError, "Sync Error: "+errorType(err))
			return fmt.Errorf("encode INIT for %s: %w", peer, err)
		}
		if err := s.t.Send(peer, data); err != nil {
			rerr := NewTransportError(peer, err)
			e.alert(AlertError, "Sync Error: "+errorType(err))
			return rerr
		}
		e.metrics.SyncMessage(string(protocol.TypeInit), metrics.DirectionOut)
		e.metrics.SetPeers(len(s.t.Peers()))
		e.logger.Info("peer connected", "peer", peer, "peers", len(s.t.Peers()))

	case ModeClient:
		if peer != s.hostAddr {
			e.logger.Warn("ignoring link from a peer other than the host", "peer", peer)
			return nil
		}
		// The session becomes active once the host's INIT is applied.
		s.linked = true
		s.hostLost = false
		e.logger.Debug("link to host open, waiting for INIT", "peer", peer, "code", s.code)
	}
	return nil
}

// handleMessage applies a protocol message. A HOST forwards the identical
// bytes of every valid NEW_SCAN and NEW_GUEST to all other peers; invalid
// payloads are dropped without forwarding.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) handleMessage(ctx context.Context, peer string, data []byte) error {
	s := e.sess
	msg, err := protocol.Decode(data)
	if err != nil {
		return NewProtocolError(peer, "undecodable message", err)
	}
	e.metrics.SyncMessage(string(msg.Type), metrics.DirectionIn)

	switch msg.Type {
	case protocol.TypeInit:
		if s.mode != ModeClient || peer != s.hostAddr || !s.linked {
			e.logger.Warn("dropping INIT not sent by our host",
				"peer", peer,
				"mode", string(s.mode),
			)
			return nil
		}
		e.registry.Replace(*msg.Snapshot)
		e.persist(ctx, true, true)
		if !s.active {
			s.active = true
			s.release(nil)
			e.metrics.SetPeers(1)
		}
		e.logger.Info("connected to host",
			"peer", peer,
			"code", s.code,
			"guests", len(msg.Snapshot.Guests),
			"logs", len(msg.Snapshot.ScanLogs),
		)
		return nil

	case protocol.TypeNewScan:
		if err := msg.Log.Validate(); err != nil {
			return NewProtocolError(peer, "invalid NEW_SCAN", err)
		}
		added, guestChanged := e.registry.ApplyScan(*msg.Log)
		if added {
			e.persist(ctx, guestChanged, true)
		}
		e.logger.Debug("applied scan",
			"peer", peer,
			"log_id", msg.Log.ID,
			"added", added,
			"guest_changed", guestChanged,
		)

	case protocol.TypeNewGuest:
		if strings.TrimSpace(msg.Guest.ID) == "" {
			return NewProtocolError(peer, "invalid NEW_GUEST", model.ErrInvalidGuest)
		}
		added := e.registry.ApplyGuest(*msg.Guest)
		if added {
			e.persist(ctx, true, false)
		}
		e.logger.Debug("applied guest", "peer", peer, "guest_id", msg.Guest.ID, "added", added)

	default:
		return NewProtocolError(peer, "unexpected message type", fmt.Errorf("%w: %s", protocol.ErrUnknownType, msg.Type))
	}

	if s.mode == ModeHost {
		n := s.t.Broadcast(data, peer)
		e.metrics.SyncMessages(string(msg.Type), n)
	}
	return nil
}

// handleClose processes a link that closed.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) handleClose(peer string) {
	s := e.sess
	switch s.mode {
	case ModeHost:
		e.metrics.SetPeers(len(s.t.Peers()))
		e.logger.Info("peer disconnected", "peer", peer, "peers", len(s.t.Peers()))

	case ModeClient:
		if peer != s.hostAddr || s.hostLost {
			return
		}
		if !s.active {
			e.teardown(NewTransportError(peer, errHostClosed))
			e.alert(AlertError, MsgJoinFailed)
			return
		}
		s.hostLost = true
		e.metrics.SetPeers(0)
		e.alert(AlertWarning, MsgHostLost)
	}
}

// handleError processes a transport failure. A CLIENT that never reached
// its host goes back to ALONE; otherwise the failure is only reported.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) handleError(peer string, err error) {
	s := e.sess
	rerr := NewTransportError(peer, err)
	e.logger.Warn("sync transport error", "error", rerr, "mode", string(s.mode))

	if s.mode == ModeClient && !s.active {
		e.teardown(rerr)
		e.alert(AlertError, MsgJoinFailed)
		return
	}
	if s.mode == ModeHost {
		e.metrics.SetPeers(len(s.t.Peers()))
	}
	e.alert(AlertError, "Sync Error: "+errorType(err))
}
