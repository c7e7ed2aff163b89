package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/eventguard/internal/checkin"
	"github.com/roach88/eventguard/internal/model"
	"github.com/roach88/eventguard/internal/protocol"
)

// ImportReport is the result of BulkImport. Notice is set when a session
// is live, since imported guests are not replicated.
type ImportReport struct {
	checkin.ImportResult
	Notice string `json:"notice,omitempty"`
}

// DeleteReport is the result of DeleteGuest.
type DeleteReport struct {
	GuestID     string `json:"guestId"`
	LogsRemoved int    `json:"logsRemoved"`
}

// Scan records a scan of guestID for day and replicates the resulting log.
// Every outcome, including an unknown ticket, produces a log.
func (e *Engine) Scan(ctx context.Context, guestID string, day model.Day) (checkin.Result, error) {
	if !day.Valid() {
		return checkin.Result{}, fmt.Errorf("scan: invalid day %d", day)
	}
	guestID = strings.TrimSpace(guestID)

	var (
		res checkin.Result
		err error
	)
	if derr := e.do(ctx, func(ctx context.Context) {
		now := model.Timestamp(e.wall.Now())
		var id string
		id, err = e.logID(e.origin, e.seq.Next(), guestID, day, now)
		if err != nil {
			err = fmt.Errorf("scan: mint log id: %w", err)
			return
		}
		res = e.registry.Scan(guestID, day, now, id)
		e.persist(ctx, res.Success, true)
		e.metrics.ScanRecorded(string(res.Log.Status), int(day))

		e.logger.Info("scan recorded",
			"guest_id", guestID,
			"day", int(day),
			"status", string(res.Log.Status),
			"log_id", res.Log.ID,
		)

		data, encErr := protocol.EncodeScan(res.Log)
		if encErr != nil {
			e.logger.Error("encode NEW_SCAN failed", "error", encErr)
			return
		}
		e.broadcast(protocol.TypeNewScan, data)
	}); derr != nil {
		return checkin.Result{}, derr
	}
	if err != nil {
		return checkin.Result{}, err
	}
	return res, nil
}

// AddGuest validates g, adds it and replicates it.
func (e *Engine) AddGuest(ctx context.Context, g model.Guest) (model.Guest, error) {
	var (
		added model.Guest
		err   error
	)
	if derr := e.do(ctx, func(ctx context.Context) {
		added, err = e.registry.AddGuest(g)
		if err != nil {
			return
		}
		e.persist(ctx, true, false)
		e.logger.Info("guest added", "guest_id", added.ID)

		data, encErr := protocol.EncodeGuest(added)
		if encErr != nil {
			e.logger.Error("encode NEW_GUEST failed", "error", encErr)
			return
		}
		e.broadcast(protocol.TypeNewGuest, data)
	}); derr != nil {
		return model.Guest{}, derr
	}
	if err != nil {
		return model.Guest{}, err
	}
	return added, nil
}

// BulkImport adds every valid guest whose id is new. Imported guests are
// not replicated; when a session is live the report carries a notice
// asking the operator to reconnect clients.
func (e *Engine) BulkImport(ctx context.Context, gs []model.Guest) (ImportReport, error) {
	var rep ImportReport
	if err := e.do(ctx, func(ctx context.Context) {
		rep.ImportResult = e.registry.BulkImport(gs)
		if rep.Added > 0 {
			e.persist(ctx, true, false)
		}
		if e.sess != nil && e.sess.active {
			rep.Notice = MsgBulkNotice
			e.alert(AlertInfo, MsgBulkNotice)
		}
		e.logger.Info("bulk import", "added", rep.Added, "skipped", rep.Skipped)
	}); err != nil {
		return ImportReport{}, err
	}
	return rep, nil
}

// DeleteGuest removes a guest and its logs. The deletion is local to this
// station.
func (e *Engine) DeleteGuest(ctx context.Context, id string) (DeleteReport, error) {
	id = strings.TrimSpace(id)
	var (
		rep DeleteReport
		err error
	)
	if derr := e.do(ctx, func(ctx context.Context) {
		found, removed := e.registry.DeleteGuest(id)
		if !found {
			err = fmt.Errorf("%w: %s", checkin.ErrGuestNotFound, id)
			return
		}
		rep = DeleteReport{GuestID: id, LogsRemoved: removed}
		e.persist(ctx, true, removed > 0)
		e.logger.Info("guest deleted", "guest_id", id, "logs_removed", removed)
	}); derr != nil {
		return DeleteReport{}, derr
	}
	if err != nil {
		return DeleteReport{}, err
	}
	return rep, nil
}

// MergeLogs merges logs exported from another station. The merge is local
// to this station.
func (e *Engine) MergeLogs(ctx context.Context, logs []model.ScanLog) (checkin.MergeResult, error) {
	var res checkin.MergeResult
	if err := e.do(ctx, func(ctx context.Context) {
		res = e.registry.MergeLogs(logs)
		if res.Added > 0 {
			e.persist(ctx, res.GuestsUpdated > 0, true)
		}
		e.logger.Info("logs merged", "added", res.Added, "guests_updated", res.GuestsUpdated)
	}); err != nil {
		return checkin.MergeResult{}, err
	}
	return res, nil
}

// Reset leaves any session, empties both collections and clears the
// store.
func (e *Engine) Reset(ctx context.Context) error {
	return e.do(ctx, func(ctx context.Context) {
		e.teardown(ErrNoSession)
		e.registry.Reset()
		e.metrics.SetGuests(0)

		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := e.store.Clear(cctx); err != nil {
			e.persistFailed("storage", err)
		}
		e.logger.Info("station reset")
	})
}

// Snapshot returns a copy of both collections.
func (e *Engine) Snapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	if err := e.do(ctx, func(context.Context) {
		snap = e.registry.Snapshot()
	}); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

// Logs returns up to limit logs, newest first. limit <= 0 returns all.
func (e *Engine) Logs(ctx context.Context, limit int) ([]model.ScanLog, error) {
	var logs []model.ScanLog
	if err := e.do(ctx, func(context.Context) {
		logs = e.registry.Logs()
	}); err != nil {
		return nil, err
	}
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// Guest looks up a guest by id.
func (e *Engine) Guest(ctx context.Context, id string) (model.Guest, error) {
	var (
		g  model.Guest
		ok bool
	)
	if err := e.do(ctx, func(context.Context) {
		g, ok = e.registry.Guest(strings.TrimSpace(id))
	}); err != nil {
		return model.Guest{}, err
	}
	if !ok {
		return model.Guest{}, fmt.Errorf("%w: %s", checkin.ErrGuestNotFound, id)
	}
	return g, nil
}

// Search returns guests whose id, name or email contains q.
func (e *Engine) Search(ctx context.Context, q string) ([]model.Guest, error) {
	var gs []model.Guest
	if err := e.do(ctx, func(context.Context) {
		gs = e.registry.Search(q)
	}); err != nil {
		return nil, err
	}
	return gs, nil
}

// Stats summarizes both collections.
func (e *Engine) Stats(ctx context.Context) (checkin.Stats, error) {
	var st checkin.Stats
	if err := e.do(ctx, func(context.Context) {
		st = e.registry.Stats()
	}); err != nil {
		return checkin.Stats{}, err
	}
	return st, nil
}

// Barrier returns once every event enqueued before it has been processed.
func (e *Engine) Barrier(ctx context.Context) error {
	return e.do(ctx, func(context.Context) {})
}

// broadcast sends data to every peer of the current session.
// CRITICAL: Called only from Run() goroutine.
func (e *Engine) broadcast(t protocol.MessageType, data []byte) {
	// A CLIENT stays silent until the host's INIT has replaced its
	// collections, so nothing it sends can be lost to that replace.
	if e.sess == nil || !e.sess.active {
		return
	}
	n := e.sess.t.Broadcast(data, "")
	e.metrics.SyncMessages(string(t), n)
}
