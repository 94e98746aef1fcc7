// Package scheduler runs the periodic compilation of pending rule sets.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
)

// Compiler is the interface for entities that can compile whatever rule sets
// are pending.  Compilers must handle error reporting themselves, since the
// worker ignores the returned error.
type Compiler interface {
	CompilePending(ctx context.Context) (err error)
}

// SyncState reports whether any rule sets are pending compilation.
type SyncState interface {
	IsSynced() (ok bool)
}

// Config is the configuration structure of a periodic compile worker.
type Config struct {
	// Logger is used for logging the operation of the worker.  It must not be
	// nil.
	Logger *slog.Logger

	// Compiler is the entity run on every tick.  It must not be nil.
	Compiler Compiler

	// SyncState gates the ticks: a tick that finds the state synced does
	// nothing.  It must not be nil.
	SyncState SyncState

	// Context is used to provide a context for each compile pass.  It must
	// not be nil.
	Context func() (ctx context.Context, cancel context.CancelFunc)

	// Interval is the pass interval.  It must be positive.
	Interval time.Duration
}

// Worker is a [service.Interface] implementation that compiles pending rule
// sets on a fixed interval.  Unlike a plain ticker loop, Start is idempotent
// while the worker runs, and the worker can be started again after Shutdown.
type Worker struct {
	logger  *slog.Logger
	comp    Compiler
	sync    SyncState
	context func() (ctx context.Context, cancel context.CancelFunc)
	ivl     time.Duration

	// mu protects done.
	mu *sync.Mutex

	// done, while not nil, marks the worker as running and signals the loop
	// goroutine to stop when closed.
	done chan struct{}
}

// New returns a new periodic compile worker.  c must not be nil.
func New(c *Config) (w *Worker) {
	return &Worker{
		logger:  c.Logger,
		comp:    c.Compiler,
		sync:    c.SyncState,
		context: c.Context,
		ivl:     c.Interval,
		mu:      &sync.Mutex{},
	}
}

// type check
var _ service.Interface = (*Worker)(nil)

// Start implements the [service.Interface] interface for *Worker.  Starting a
// running worker is a no-op.  err is always nil.
func (w *Worker) Start(ctx context.Context) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done != nil {
		w.logger.DebugContext(ctx, "already started")

		return nil
	}

	w.done = make(chan struct{})
	go w.compileInALoop(w.done)

	return nil
}

// Shutdown implements the [service.Interface] interface for *Worker.
// Shutting down a stopped worker is a no-op.  err is always nil.
func (w *Worker) Shutdown(ctx context.Context) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done == nil {
		return nil
	}

	close(w.done)
	w.done = nil

	w.logger.InfoContext(ctx, "shut down successfully")

	return nil
}

// compileInALoop runs a compile pass on every tick until done is closed.
func (w *Worker) compileInALoop(done <-chan struct{}) {
	ctx := context.Background()
	defer slogutil.RecoverAndLog(ctx, w.logger)

	w.logger.InfoContext(ctx, "starting compile loop", "ivl", w.ivl)

	tick := time.NewTicker(w.ivl)
	defer tick.Stop()

	for {
		select {
		case <-done:
			w.logger.InfoContext(ctx, "finished compile loop")

			return
		case <-tick.C:
			w.compile()
		}
	}
}

// compile runs a single compile pass, unless nothing is pending.
func (w *Worker) compile() {
	if w.sync.IsSynced() {
		return
	}

	ctx, cancel := w.context()
	defer cancel()

	ctx = slogutil.ContextWithLogger(ctx, w.logger)

	_ = w.comp.CompilePending(ctx)
}
