package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/Libertus-Lab/shieldcore/internal/rulesettest"
	"github.com/Libertus-Lab/shieldcore/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testInterval is the tick interval used in tests.
const testInterval = 10 * time.Millisecond

// fakeCompiler is a [scheduler.Compiler] for tests.
type fakeCompiler struct {
	onCompilePending func(ctx context.Context) (err error)
}

// CompilePending implements the [scheduler.Compiler] interface for
// *fakeCompiler.
func (c *fakeCompiler) CompilePending(ctx context.Context) (err error) {
	return c.onCompilePending(ctx)
}

// fakeSyncState is a [scheduler.SyncState] for tests.
type fakeSyncState struct {
	onIsSynced func() (ok bool)
}

// IsSynced implements the [scheduler.SyncState] interface for *fakeSyncState.
func (s *fakeSyncState) IsSynced() (ok bool) {
	return s.onIsSynced()
}

// newWorker returns a worker whose compile passes send to passCh, and which
// reports synced depending on the synced pointer.
func newWorker(passCh chan<- struct{}, synced *bool) (w *scheduler.Worker) {
	return scheduler.New(&scheduler.Config{
		Logger: slogutil.NewDiscardLogger(),
		Compiler: &fakeCompiler{
			onCompilePending: func(_ context.Context) (err error) {
				passCh <- struct{}{}

				return nil
			},
		},
		SyncState: &fakeSyncState{
			onIsSynced: func() (ok bool) { return *synced },
		},
		Context: func() (ctx context.Context, cancel context.CancelFunc) {
			return context.WithTimeout(context.Background(), rulesettest.Timeout)
		},
		Interval: testInterval,
	})
}

func TestWorker(t *testing.T) {
	passCh := make(chan struct{}, 1)
	synced := false

	w := newWorker(passCh, &synced)

	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)
	require.NoError(t, w.Start(ctx))
	testutil.CleanupAndRequireSuccess(t, func() (err error) {
		return w.Shutdown(ctx)
	})

	testutil.RequireReceive(t, passCh, rulesettest.Timeout)
}

func TestWorker_startIdempotent(t *testing.T) {
	passCh := make(chan struct{}, 1)
	synced := false

	w := newWorker(passCh, &synced)

	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx))

	testutil.RequireReceive(t, passCh, rulesettest.Timeout)

	require.NoError(t, w.Shutdown(ctx))

	// A second shutdown must also be a no-op.
	assert.NoError(t, w.Shutdown(ctx))
}

func TestWorker_restart(t *testing.T) {
	passCh := make(chan struct{}, 1)
	synced := false

	w := newWorker(passCh, &synced)

	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)
	require.NoError(t, w.Start(ctx))
	testutil.RequireReceive(t, passCh, rulesettest.Timeout)
	require.NoError(t, w.Shutdown(ctx))

	// Drain a pass that may have been produced before the shutdown.
	select {
	case <-passCh:
	default:
	}

	require.NoError(t, w.Start(ctx))
	testutil.RequireReceive(t, passCh, rulesettest.Timeout)
	require.NoError(t, w.Shutdown(ctx))
}

func TestWorker_synced(t *testing.T) {
	passCh := make(chan struct{}, 1)
	synced := true

	w := newWorker(passCh, &synced)

	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)
	require.NoError(t, w.Start(ctx))
	testutil.CleanupAndRequireSuccess(t, func() (err error) {
		return w.Shutdown(ctx)
	})

	// Give the loop a few ticks to prove that no pass happens while the state
	// is synced.
	select {
	case <-passCh:
		t.Fatal("unexpected compile pass")
	case <-time.After(5 * testInterval):
		// Go on.
	}
}
