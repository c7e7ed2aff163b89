package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/eventguard/internal/engine"
	"github.com/roach88/eventguard/internal/model"
	"github.com/roach88/eventguard/internal/store"
	"github.com/roach88/eventguard/internal/testutil"
	"github.com/roach88/eventguard/internal/transport"
)

// Harness is the scenario execution engine. It owns the stations, the
// manual relay they share and the deterministic helpers.
type Harness struct {
	hub      *transport.Hub
	rng      *rand.Rand
	clock    *testutil.DeterministicClock
	stations []*station
	byName   map[string]*station
	logger   *slog.Logger
}

type station struct {
	name   string
	engine *engine.Engine
	store  *store.Store
	code   string
	cancel context.CancelFunc
}

// Run executes a scenario on fresh stations and returns the result.
//
// Execution flow:
// 1. Start one engine per station over an in-memory store
// 2. Execute steps, settling every station after each one
// 3. Collect the final state of every station
// 4. Evaluate assertions
//
// The returned error reports harness faults (a step that could not be
// executed at all); failed expectations and assertions are recorded in the
// Result instead.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	h := newHarness(scenario)
	defer h.close()

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := h.settle(ctx); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		result.Trace = append(result.Trace, ev)
		for _, msg := range checkExpect(step, ev) {
			result.AddError(msg)
		}
	}

	states, err := h.collect(ctx)
	if err != nil {
		return nil, err
	}
	result.Stations = states

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario) *Harness {
	h := &Harness{
		hub:    transport.NewManualHub(),
		rng:    rand.New(rand.NewSource(scenario.Seed)),
		clock:  testutil.NewDeterministicClock(),
		byName: make(map[string]*station, len(scenario.Stations)),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	for i, name := range scenario.Stations {
		code := strings.Repeat(strconv.Itoa(i+1), 6)
		st := store.New(store.NewMemory())
		e := engine.New(st, h.hub.Factory(),
			engine.WithLogger(h.logger),
			engine.WithLocation(time.UTC),
			engine.WithClock(h.clock),
			engine.WithOriginGenerator(engine.NewFixedGenerator(name)),
			engine.WithLogIDFunc(testutil.SequentialLogID),
			engine.WithSessionCodes(testutil.FixedCodes(code)),
		)

		runCtx, cancel := context.WithCancel(context.Background())
		go func() { _ = e.Run(runCtx) }()

		s := &station{name: name, engine: e, store: st, cancel: cancel}
		h.stations = append(h.stations, s)
		h.byName[name] = s
	}
	return h
}

func (h *Harness) close() {
	for _, s := range h.stations {
		s.cancel()
	}
	for _, s := range h.stations {
		<-s.engine.Done()
		_ = s.store.Close()
	}
}

// execute runs one step and reports its outcome.
func (h *Harness) execute(ctx context.Context, n int, step Step) (TraceEvent, error) {
	ev := TraceEvent{Step: n, Station: step.Station, Action: step.Action()}

	if ev.Action == ActionDeliver {
		if step.Deliver == "one" {
			n := 0
			if h.hub.DeliverOne(h.rng) {
				n = 1
			}
			ev.Message = fmt.Sprintf("delivered %d", n)
			return ev, nil
		}
		delivered, err := h.deliverAll(ctx)
		if err != nil {
			return ev, err
		}
		ev.Message = fmt.Sprintf("delivered %d", delivered)
		return ev, nil
	}

	s, ok := h.byName[step.Station]
	if !ok {
		return ev, fmt.Errorf("unknown station %q", step.Station)
	}
	e := s.engine

	var err error
	switch ev.Action {
	case ActionAddGuest:
		_, err = e.AddGuest(ctx, step.AddGuest.guest())

	case ActionImport:
		gs := make([]model.Guest, 0, len(step.Import))
		for _, g := range step.Import {
			gs = append(gs, g.guest())
		}
		var rep engine.ImportReport
		rep, err = e.BulkImport(ctx, gs)
		if err == nil {
			ev.Message = fmt.Sprintf("added %d, skipped %d", rep.Added, rep.Skipped)
		}

	case ActionScan:
		res, serr := e.Scan(ctx, step.Scan.Guest, model.Day(step.Scan.Day))
		err = serr
		if err == nil {
			ev.Status = string(res.Log.Status)
			ev.Message = res.Message
			ev.Log = res.Log.ID
		}

	case ActionDelete:
		var rep engine.DeleteReport
		rep, err = e.DeleteGuest(ctx, step.Delete)
		if err == nil {
			ev.Message = fmt.Sprintf("%d logs removed", rep.LogsRemoved)
		}

	case ActionHost:
		var code string
		code, err = e.StartHosting(ctx)
		if err == nil {
			s.code = code
			ev.Message = code
		}

	case ActionJoin:
		target := h.byName[step.Join]
		if target == nil || target.code == "" {
			return ev, fmt.Errorf("join: station %q is not hosting", step.Join)
		}
		err = e.JoinSession(ctx, target.code)
		ev.Message = target.code

	case ActionJoinCode:
		err = e.JoinSession(ctx, step.JoinCode)
		ev.Message = step.JoinCode

	case ActionLeave:
		err = e.LeaveSession(ctx)

	case ActionReset:
		err = e.Reset(ctx)

	default:
		return ev, fmt.Errorf("step has no single action")
	}

	if err != nil {
		ev.Error = err.Error()
	}
	return ev, nil
}

// deliverAll delivers frames one at a time, settling every station after
// each, until no frame is queued.
func (h *Harness) deliverAll(ctx context.Context) (int, error) {
	n := 0
	for h.hub.DeliverOne(h.rng) {
		n++
		if err := h.settle(ctx); err != nil {
			return n, err
		}
	}
	return n, nil
}

// settle waits until every station has processed the events queued so far.
func (h *Harness) settle(ctx context.Context) error {
	for _, s := range h.stations {
		if err := s.engine.Barrier(ctx); err != nil {
			return fmt.Errorf("settle %s: %w", s.name, err)
		}
	}
	return nil
}

func (h *Harness) collect(ctx context.Context) ([]StationState, error) {
	out := make([]StationState, 0, len(h.stations))
	for _, s := range h.stations {
		st, err := s.engine.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("status of %s: %w", s.name, err)
		}
		snap, err := s.engine.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("snapshot of %s: %w", s.name, err)
		}
		var alerts []string
		for _, a := range s.engine.Alerts(0) {
			alerts = append(alerts, a.Message)
		}
		out = append(out, StationState{
			Name:        s.name,
			Mode:        st.Mode,
			Connections: st.Connections,
			Snapshot:    snap,
			Alerts:      alerts,
		})
	}
	return out, nil
}

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(step Step, ev TraceEvent) []string {
	prefix := fmt.Sprintf("step %d (%s)", ev.Step, ev.Action)
	x := step.Expect
	if x == nil {
		if ev.Error != "" {
			return []string{fmt.Sprintf("%s: unexpected error: %s", prefix, ev.Error)}
		}
		return nil
	}

	var errs []string
	switch {
	case x.Error != "" && !strings.Contains(ev.Error, x.Error):
		errs = append(errs, fmt.Sprintf("%s: expected error containing %q, got %q", prefix, x.Error, ev.Error))
	case x.Error == "" && ev.Error != "":
		errs = append(errs, fmt.Sprintf("%s: unexpected error: %s", prefix, ev.Error))
	}
	if x.Status != "" && x.Status != ev.Status {
		errs = append(errs, fmt.Sprintf("%s: expected status %s, got %q", prefix, x.Status, ev.Status))
	}
	if x.Message != "" && x.Message != ev.Message {
		errs = append(errs, fmt.Sprintf("%s: expected message %q, got %q", prefix, x.Message, ev.Message))
	}
	return errs
}
