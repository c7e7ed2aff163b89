package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/eventguard/internal/checkin"
	"github.com/roach88/eventguard/internal/metrics"
	"github.com/roach88/eventguard/internal/model"
	"github.com/roach88/eventguard/internal/protocol"
	"github.com/roach88/eventguard/internal/store"
	"github.com/roach88/eventguard/internal/transport"
)

// DefaultNamespace prefixes host addresses on the relay.
const DefaultNamespace = "eventguard"

// persistTimeout bounds a single collection write.
const persistTimeout = 5 * time.Second

// LogIDFunc mints the id of a locally recorded scan log.
type LogIDFunc func(origin string, seq int64, guestID string, day model.Day, ts time.Time) (string, error)

// Engine is a check-in station: it owns the guest registry, persists it
// and replicates it over at most one sync session.
//
// CRITICAL: All mutations happen in the single-writer Run loop goroutine.
// Public methods enqueue a command and wait for the loop to execute it;
// transport callbacks enqueue events and never block.
//
// Thread-safety model:
//   - public operations: safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	store    *store.Store
	factory  transport.Factory
	registry *checkin.Registry
	queue    *eventQueue

	seq    *Clock
	wall   WallClock
	origin string
	logID  LogIDFunc

	namespace string
	codes     func() string

	alerts    *AlertLog
	notifiers []Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// Owned by the Run goroutine.
	sess *session
	gen  uint64

	stopped chan struct{}
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithLocation sets the zone used to render times in operator messages.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		e.registry = checkin.NewRegistry(loc, e.region())
	}
}

// WithPhoneRegion sets the default region for guest phone numbers.
func WithPhoneRegion(region string) Option {
	return func(e *Engine) {
		e.registry = checkin.NewRegistry(e.registry.Location(), region)
	}
}

// WithNamespace sets the prefix of host addresses on the relay.
func WithNamespace(ns string) Option {
	return func(e *Engine) {
		e.namespace = ns
	}
}

// WithClock sets the wall clock that timestamps scans and alerts.
func WithClock(c WallClock) Option {
	return func(e *Engine) {
		e.wall = c
	}
}

// WithOriginGenerator sets the generator of the station's origin id.
// Default: UUIDv7Generator.
func WithOriginGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.origin = g.Generate()
	}
}

// WithLogIDFunc replaces the content-addressed log id.
// Used by the scenario harness for readable ids.
func WithLogIDFunc(f LogIDFunc) Option {
	return func(e *Engine) {
		e.logID = f
	}
}

// WithSessionCodes sets the source of session codes for StartHosting.
func WithSessionCodes(f func() string) Option {
	return func(e *Engine) {
		e.codes = f
	}
}

// WithNotifier adds a receiver of operator alerts.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifiers = append(e.notifiers, n)
	}
}

// WithMetrics enables Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine persisting to st and opening sessions with factory.
// The registry is empty until Run loads it from the store.
func New(st *store.Store, factory transport.Factory, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		factory:   factory,
		registry:  checkin.NewRegistry(time.Local, model.DefaultPhoneRegion),
		queue:     newEventQueue(),
		seq:       NewClock(),
		wall:      SystemClock{},
		logID:     model.LogID,
		namespace: DefaultNamespace,
		codes:     protocol.NewSessionCode,
		alerts:    NewAlertLog(100),
		logger:    slog.Default(),
		stopped:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.origin == "" {
		e.origin = UUIDv7Generator{}.Generate()
	}

	return e
}

func (e *Engine) region() string {
	if e.registry == nil {
		return model.DefaultPhoneRegion
	}
	return e.registry.Region()
}

// NodeID returns the station's origin id.
func (e *Engine) NodeID() string {
	return e.origin
}

// Alerts returns up to n recent alerts, newest first.
func (e *Engine) Alerts(n int) []Alert {
	return e.alerts.Recent(n)
}

// QueueLen returns the current number of pending events.
// Useful for monitoring and testing.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run loads the collections from the store and then runs the
// single-writer event loop. Blocks until ctx is cancelled or Stop is
// called; any open session is torn down before Run returns.
//
// ERROR HANDLING: a failed event is logged with its context and processing
// continues. A corrupt or unreadable store stops Run before anything is
// processed; the stored collections are left untouched so the operator can
// recover them, and every queued or later operation returns ErrStopped.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	defer e.teardown(ErrStopped)

	snap, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		lerr := NewLoadError(err)
		e.logger.Error("loading stored collections failed", "error", lerr)
		e.alert(AlertError, MsgLoadFailed)
		e.queue.Close()
		return lerr
	}
	e.registry.Replace(snap)
	e.metrics.SetGuests(len(snap.Guests))

	e.logger.Info("engine starting",
		"node", e.origin,
		"guests", len(snap.Guests),
		"logs", len(snap.ScanLogs),
	)

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				e.logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue.
			if e.queue.Len() == 0 && e.queue.Closed() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which will cause Run() to return once the
// queued events are processed.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.stopped
}

// do runs fn on the Run goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func(ctx context.Context)) error {
	done := make(chan struct{})
	ok := e.queue.Enqueue(Event{
		Type: EventTypeCommand,
		Command: func(ctx context.Context) {
			defer close(done)
			fn(ctx)
		},
	})
	if !ok {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-e.stopped:
		// The command may have completed just before Run returned.
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processEvent routes an event to the appropriate handler.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processEvent(ctx context.Context, event Event) error {
	if event.Type == EventTypeCommand {
		if event.Command == nil {
			return fmt.Errorf("command event missing command")
		}
		event.Command(ctx)
		return nil
	}

	if e.sess == nil || event.Gen != e.sess.gen {
		e.logger.Debug("discarding event from a closed session",
			"type", event.Type.String(),
			"peer", event.Peer,
			"gen", event.Gen,
		)
		return nil
	}

	switch event.Type {
	case EventTypeOpen:
		return e.handleOpen(ctx, event.Peer)
	case EventTypeMessage:
		return e.handleMessage(ctx, event.Peer, event.Data)
	case EventTypeClose:
		e.handleClose(event.Peer)
		return nil
	case EventTypeError:
		e.handleError(event.Peer, event.Err)
		return nil
	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

// persist writes the requested collections. A failed write is logged and
// raised as an alert; the in-memory state stays authoritative.
func (e *Engine) persist(ctx context.Context, guests, logs bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if guests {
		if err := e.store.SaveGuests(ctx, e.registry.Guests()); err != nil {
			e.persistFailed(store.KeyGuests, err)
		}
		e.metrics.SetGuests(e.registry.Len())
	}
	if logs {
		if err := e.store.SaveLogs(ctx, e.registry.Logs()); err != nil {
			e.persistFailed(store.KeyLogs, err)
		}
	}
}

func (e *Engine) persistFailed(slot string, err error) {
	rerr := NewPersistError(slot, err)
	e.logger.Error("persist failed", "slot", slot, "error", rerr)
	e.alert(AlertError, "Could not save "+slot+" to local storage.")
}

// alert delivers an operator alert to the alert log and every notifier.
func (e *Engine) alert(level AlertLevel, msg string) {
	a := Alert{Level: level, Message: msg, Time: model.Timestamp(e.wall.Now())}

	lvl := slog.LevelInfo
	switch level {
	case AlertWarning:
		lvl = slog.LevelWarn
	case AlertError:
		lvl = slog.LevelError
	}
	e.logger.Log(context.Background(), lvl, "alert", "message", msg)

	e.alerts.Notify(a)
	for _, n := range e.notifiers {
		n.Notify(a)
	}
	e.metrics.Alert(string(level))
}

// logEventError logs an event processing failure with full context.
func (e *Engine) logEventError(event Event, err error) {
	e.logger.Error("event processing failed",
		"error", err,
		"event_type", event.Type.String(),
		"peer", event.Peer,
		"gen", event.Gen,
		"bytes", len(event.Data),
	)
}
