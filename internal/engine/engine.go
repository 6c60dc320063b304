package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/subsheet/internal/factory"
	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/recalc"
	"github.com/roach88/subsheet/internal/row"
	"github.com/roach88/subsheet/internal/rowstore"
)

// Persistence is the row persistence API. Both calls may block on I/O.
type Persistence interface {
	FetchRows(ctx context.Context, ref row.Ref, page int) ([]row.Row, error)
	SaveRow(ctx context.Context, ref row.Ref, r row.Row) (row.Row, error)
	DeleteRow(ctx context.Context, ref row.Ref, rowID string) error
}

// Exporter writes a snapshot of a sub-table to a file.
type Exporter interface {
	Export(ctx context.Context, ref row.Ref, fields field.Set, rows []row.Row, filename string) error
}

// DefaultMaxRows is the row limit of a sub-table.
const DefaultMaxRows = 200

// DefaultAsyncLimit bounds concurrent resolver calls per recompute batch.
const DefaultAsyncLimit = 8

// Engine is the sync coordinator for one sub-table instance.
//
// All state lives in the Run goroutine. Public methods enqueue an intent
// and wait for the loop's reply, so they are safe from any goroutine and
// their effects apply in submission order. Async recomputes run on worker
// goroutines and re-enter the loop as events; a result is applied only if
// its row still exists and it carries the latest stamp for its cell.
type Engine struct {
	ref        row.Ref
	clock      *Clock
	queue      *eventQueue
	factory    *factory.Factory
	resolver   recalc.Resolver
	persist    Persistence
	exporter   Exporter
	env        recalc.Env
	maxRows    int
	asyncLimit int

	// Owned by the Run goroutine.
	fields   field.Set
	settings field.TableSettings
	store    *rowstore.Store
	stamps   stamps
	pending  map[cell]*PendingEdit
	errs     map[string]*Error
	lastEdit map[string]int64
	renamed  map[string]string
	inflight int
	settlers []Event

	// busy counts async recomputes in flight per row; flushers are Flush
	// intents parked until their row is no longer busy.
	busy     map[string]int
	flushers []Event

	workCtx context.Context
	workers sync.WaitGroup
	running atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxRows sets the row limit. Values below 1 keep the default.
func WithMaxRows(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRows = n
		}
	}
}

// WithAsyncLimit bounds concurrent resolver calls per batch.
func WithAsyncLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.asyncLimit = n
		}
	}
}

// WithResolver sets the async field resolver.
func WithResolver(r recalc.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithPersistence sets the row persistence API used by Load, Flush and DeleteRow.
func WithPersistence(p Persistence) Option {
	return func(e *Engine) { e.persist = p }
}

// WithExporter sets the export backend.
func WithExporter(x Exporter) Option {
	return func(e *Engine) { e.exporter = x }
}

// WithIDGenerator sets the source of client row ids.
func WithIDGenerator(g row.IDGenerator) Option {
	return func(e *Engine) { e.factory = factory.New(g) }
}

// WithEnv sets the caller context passed to every recompute.
func WithEnv(env recalc.Env) Option {
	return func(e *Engine) { e.env = env }
}

// WithSettings sets the parsed table settings.
func WithSettings(s field.TableSettings) Option {
	return func(e *Engine) { e.settings = s }
}

// New creates an engine for the sub-table ref with the given fields.
// Call Run before submitting intents.
func New(ref row.Ref, fields field.Set, opts ...Option) *Engine {
	e := &Engine{
		ref:        ref,
		clock:      NewClock(),
		queue:      newEventQueue(),
		factory:    factory.New(row.UUIDGenerator{}),
		resolver:   &recalc.SourceResolver{},
		maxRows:    DefaultMaxRows,
		asyncLimit: DefaultAsyncLimit,
		fields:     fields,
		settings:   field.DefaultTableSettings(),
		store:      rowstore.New(),
		stamps:     stamps{},
		pending:    make(map[cell]*PendingEdit),
		errs:       make(map[string]*Error),
		lastEdit:   make(map[string]int64),
		renamed:    make(map[string]string),
		busy:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ref returns the sub-table this engine coordinates.
func (e *Engine) Ref() row.Ref { return e.ref }

// Run processes intents until ctx is cancelled or Stop is called.
// It must be called exactly once. Before returning it cancels in-flight
// async work, waits for the workers, and fails every unprocessed intent
// with a STOPPED error.
//
// A failing intent is answered with its error; intents nobody waits on
// (async results) are logged and the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	workCtx, cancel := context.WithCancel(ctx)
	e.workCtx = workCtx
	defer func() {
		e.queue.Close()
		cancel()
		e.workers.Wait()
		e.shutdown()
	}()

	slog.Info("engine starting", "ref", e.ref.String(), "fields", e.fields.Len())

	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			e.process(ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled", "ref", e.ref.String())
			return ctx.Err()
		case <-e.queue.Wait():
			// The signal buffer may hold a wakeup for an event already
			// taken; only a closed, empty queue ends the loop.
			if e.queue.Closed() && e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed", "ref", e.ref.String())
				return nil
			}
		}
	}
}

// Stop closes the queue. Intents already queued are still processed.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) shutdown() {
	for _, ev := range e.queue.Drain() {
		ev.respond(nil, errStopped)
	}
	for _, ev := range e.settlers {
		ev.respond(nil, errStopped)
	}
	e.settlers = nil
	for _, ev := range e.flushers {
		ev.respond(nil, errStopped)
	}
	e.flushers = nil
}

// submit enqueues in and waits for the loop's reply or ctx.
func (e *Engine) submit(ctx context.Context, in intent) (any, error) {
	reply := make(chan outcome, 1)
	if !e.queue.Enqueue(Event{Intent: in, reply: reply}) {
		return nil, errStopped
	}
	select {
	case out := <-reply:
		return out.value, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func call[T any](ctx context.Context, e *Engine, in intent) (T, error) {
	var zero T
	v, err := e.submit(ctx, in)
	if v == nil {
		return zero, err
	}
	return v.(T), err
}

// process runs one event. Called only from Run.
func (e *Engine) process(ev Event) {
	switch in := ev.Intent.(type) {
	case settleIntent:
		e.handleSettle(ev)
		return
	case flushIntent:
		if rowID := e.alias(in.rowID); e.busy[rowID] > 0 {
			slog.Debug("flush waiting for recomputes", "row_id", rowID, "inflight", e.busy[rowID])
			e.flushers = append(e.flushers, ev)
			return
		}
	}
	v, err := e.handle(ev.Intent)
	if err != nil && ev.reply == nil {
		slog.Error("intent failed", "intent", ev.Intent.name(), "ref", e.ref.String(), "error", err)
	}
	ev.respond(v, err)
	e.resumeFlushes()
}

// resumeFlushes answers parked Flush intents whose row has no recomputes
// left in flight.
func (e *Engine) resumeFlushes() {
	if len(e.flushers) == 0 {
		return
	}
	kept := e.flushers[:0]
	for _, ev := range e.flushers {
		in := ev.Intent.(flushIntent)
		if e.busy[e.alias(in.rowID)] > 0 {
			kept = append(kept, ev)
			continue
		}
		ev.respond(e.handleFlush(in))
	}
	e.flushers = kept
}
