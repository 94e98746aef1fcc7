package lifecycle_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/Libertus-Lab/shieldcore/internal/blockcache"
	"github.com/Libertus-Lab/shieldcore/internal/lifecycle"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset/compiler"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset/registry"
	"github.com/Libertus-Lab/shieldcore/internal/rulesettest"
	"github.com/Libertus-Lab/shieldcore/internal/rulestore"
	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appliedUpdate is the information about one applied update received through
// the metrics fake.
type appliedUpdate struct {
	componentID string
	recompiled  bool
}

// testEnv is the lifecycle test environment.
type testEnv struct {
	manager  *lifecycle.Manager
	registry *registry.Registry
	compiler *compiler.Compiler
	store    rulestore.Interface

	// mu protects enabled.
	mu      *sync.Mutex
	enabled map[uuid.UUID]bool

	// source, when not nil, is installed as the update source.
	source lifecycle.Source

	// legacySkips and applied receive the metrics events.
	legacySkips chan string
	applied     chan appliedUpdate
}

// build finishes the construction of env.  cacheDir may be empty.
func (env *testEnv) build(tb testing.TB, cacheDir string) {
	tb.Helper()

	local, err := rulestore.NewLocal(&rulestore.LocalConfig{
		Logger:             slogutil.NewDiscardLogger(),
		CacheManager:       blockcache.NewDefaultManager(),
		Dir:                tb.TempDir(),
		MaxRuleListSize:    1 * datasize.MB,
		ResultCacheCount:   100,
		ResultCacheEnabled: true,
	})
	require.NoError(tb, err)

	env.store = local
	env.registry = registry.New()
	env.mu = &sync.Mutex{}
	env.enabled = map[uuid.UUID]bool{}
	env.legacySkips = make(chan string, 10)
	env.applied = make(chan appliedUpdate, 10)

	errColl := &rulesettest.ErrorCollector{
		OnCollect: func(_ context.Context, _ error) {},
	}

	env.compiler = compiler.New(&compiler.Config{
		Logger:   slogutil.NewDiscardLogger(),
		Registry: env.registry,
		Store:    env.store,
		ErrColl:  errColl,
		Metrics:  ruleset.EmptyMetrics{},
		Clock:    timeutil.SystemClock{},
	})

	env.manager = lifecycle.NewManager(&lifecycle.ManagerConfig{
		Logger:   slogutil.NewDiscardLogger(),
		ErrColl:  errColl,
		Registry: env.registry,
		Store:    env.store,
		Compiler: env.compiler,
		Source:   env.source,
		Lists: &rulesettest.FilterLists{
			OnIsEnabled: func(id uuid.UUID) (ok bool) {
				env.mu.Lock()
				defer env.mu.Unlock()

				return env.enabled[id]
			},
		},
		Metrics: &rulesettest.LifecycleMetrics{
			OnObserveLegacySkip: func(_ context.Context, componentID string) {
				env.legacySkips <- componentID
			},
			OnObserveUpdate: func(_ context.Context, componentID string, recompiled bool) {
				env.applied <- appliedUpdate{
					componentID: componentID,
					recompiled:  recompiled,
				}
			},
		},
		CacheDir: cacheDir,
	})
}

// setEnabled sets the toggle state the lists fake reports for id.
func (env *testEnv) setEnabled(id uuid.UUID, enabled bool) {
	env.mu.Lock()
	defer env.mu.Unlock()

	env.enabled[id] = enabled
}

// newFilterList returns the common filter list for tests.
func newFilterList(enabled bool) (fl *lifecycle.FilterList) {
	return &lifecycle.FilterList{
		ComponentID: rulesettest.ComponentID1,
		UUID:        rulesettest.ListUUID1,
		Order:       1,
		Enabled:     enabled,
	}
}

// writeFilterSet creates a complete filter-set folder, marker included, and
// returns its path.
func writeFilterSet(tb testing.TB, root, version, text string) (dir string) {
	tb.Helper()

	dir = rulesettest.WriteFilterSetDir(tb, root, version, lifecycle.RulesFileName, text)
	rulesettest.WriteResourceFile(tb, dir, lifecycle.MarkerFileName, "{}")

	return dir
}

func TestManager_ApplyUpdate(t *testing.T) {
	env := &testEnv{}
	env.build(t, "")
	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)

	fl := newFilterList(true)
	env.setEnabled(fl.UUID, true)

	dir := writeFilterSet(t, t.TempDir(), "1.0.100", rulesettest.RulesText)
	env.manager.ApplyUpdate(ctx, fl, dir)

	upd := <-env.applied
	assert.Equal(t, rulesettest.ComponentID1, upd.componentID)
	assert.True(t, upd.recompiled)

	id := ruleset.NewFilterListID(fl.UUID)
	require.Contains(t, env.registry.Enabled(), id)
	assert.True(t, env.registry.IsSynced())

	st, ok := env.compiler.SourceType(id)
	require.True(t, ok)
	assert.Equal(t, ruleset.NewDownloadedSource("1.0.100"), st)

	ruleSets := env.compiler.RuleSets([]ruleset.ID{id})
	require.Len(t, ruleSets, 1)
	assert.Equal(t, 2, ruleSets[0].RulesCount())
}

func TestManager_ApplyUpdate_legacyLayout(t *testing.T) {
	env := &testEnv{}
	env.build(t, "")
	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)

	fl := newFilterList(true)
	env.setEnabled(fl.UUID, true)

	// No marker file, so this is the legacy layout and must be ignored
	// entirely.
	dir := rulesettest.WriteFilterSetDir(
		t,
		t.TempDir(),
		"1.0.100",
		lifecycle.RulesFileName,
		rulesettest.RulesText,
	)
	env.manager.ApplyUpdate(ctx, fl, dir)

	skipped := <-env.legacySkips
	assert.Equal(t, rulesettest.ComponentID1, skipped)

	assert.Empty(t, env.registry.Enabled())
	assert.Empty(t, env.applied)
}

func TestManager_ApplyUpdate_sameVersion(t *testing.T) {
	env := &testEnv{}
	env.build(t, "")
	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)

	fl := newFilterList(true)
	env.setEnabled(fl.UUID, true)

	dir := writeFilterSet(t, t.TempDir(), "1.0.100", rulesettest.RulesText)

	env.manager.ApplyUpdate(ctx, fl, dir)
	upd := <-env.applied
	require.True(t, upd.recompiled)

	// Drop the registration to prove that the second apply restores it even
	// though nothing is recompiled.
	id := ruleset.NewFilterListID(fl.UUID)
	env.registry.RemoveEnabled(id)

	env.manager.ApplyUpdate(ctx, fl, dir)
	upd = <-env.applied

	assert.False(t, upd.recompiled)
	assert.Contains(t, env.registry.Enabled(), id)
}

func TestManager_ApplyUpdate_newVersion(t *testing.T) {
	env := &testEnv{}
	env.build(t, "")
	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)

	fl := newFilterList(true)
	env.setEnabled(fl.UUID, true)

	root := t.TempDir()

	env.manager.ApplyUpdate(ctx, fl, writeFilterSet(t, root, "1.0.100", rulesettest.RulesText))
	<-env.applied

	const newText = "||new.example^\n"
	env.manager.ApplyUpdate(ctx, fl, writeFilterSet(t, root, "1.0.101", newText))

	upd := <-env.applied
	assert.True(t, upd.recompiled)

	id := ruleset.NewFilterListID(fl.UUID)
	st, ok := env.compiler.SourceType(id)
	require.True(t, ok)
	assert.Equal(t, ruleset.NewDownloadedSource("1.0.101"), st)

	ruleSets := env.compiler.RuleSets([]ruleset.ID{id})
	require.Len(t, ruleSets, 1)
	assert.Equal(t, 1, ruleSets[0].RulesCount())
}

func TestManager_ApplyUpdate_toggledOff(t *testing.T) {
	env := &testEnv{}
	env.build(t, "")
	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)

	fl := newFilterList(true)

	// The toggle has been flipped off while the update was in flight, so the
	// re-check must remove the registration instead of adding it.
	env.setEnabled(fl.UUID, false)

	dir := writeFilterSet(t, t.TempDir(), "1.0.100", rulesettest.RulesText)
	env.manager.ApplyUpdate(ctx, fl, dir)

	<-env.applied

	assert.Empty(t, env.registry.Enabled())
}

func TestManager_Register(t *testing.T) {
	updates := make(chan string, 1)
	subscribeCalls := 0
	subscribed := make(chan context.Context, 1)

	env := &testEnv{}
	env.source = &rulesettest.UpdateSource{
		OnSubscribe: func(
			ctx context.Context,
			componentID string,
		) (upd <-chan string, err error) {
			subscribeCalls++
			subscribed <- ctx

			return updates, nil
		},
	}
	env.build(t, "")

	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)
	fl := newFilterList(true)
	env.setEnabled(fl.UUID, true)

	require.NoError(t, env.manager.Register(ctx, fl))

	taskCtx := <-subscribed

	// A second registration for the same UUID is a no-op.
	require.NoError(t, env.manager.Register(ctx, fl))
	require.Equal(t, 1, subscribeCalls)

	// An empty update means "unavailable" and must be ignored; a real one
	// must be applied.
	updates <- ""
	updates <- writeFilterSet(t, t.TempDir(), "1.0.100", rulesettest.RulesText)

	upd, _ := testutil.RequireReceive(t, env.applied, rulesettest.Timeout)
	assert.True(t, upd.recompiled)
	assert.Contains(t, env.registry.Enabled(), ruleset.NewFilterListID(fl.UUID))

	// Unregistering cancels the subscription, which the source takes as the
	// signal to stop, and removes the registration.
	env.manager.Unregister(ctx, fl)

	testutil.RequireReceive(t, taskCtx.Done(), rulesettest.Timeout)
	assert.Eventually(t, func() (ok bool) {
		return len(env.registry.Enabled()) == 0
	}, rulesettest.Timeout, rulesettest.Timeout/100)

	// After unregistering, a new registration must subscribe again.
	require.NoError(t, env.manager.Register(ctx, fl))
	assert.Equal(t, 2, subscribeCalls)

	require.NoError(t, env.manager.Shutdown(ctx))
}

func TestManager_Register_reload(t *testing.T) {
	cacheDir := t.TempDir()

	env := &testEnv{}
	env.source = &rulesettest.UpdateSource{
		OnSubscribe: func(_ context.Context, _ string) (upd <-chan string, err error) {
			return make(chan string), nil
		},
	}
	env.build(t, cacheDir)

	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)
	fl := newFilterList(true)
	env.setEnabled(fl.UUID, true)

	writeFilterSet(
		t,
		filepath.Join(cacheDir, fl.ComponentID),
		"1.0.100",
		rulesettest.RulesText,
	)

	require.NoError(t, env.manager.Register(ctx, fl))

	upd, _ := testutil.RequireReceive(t, env.applied, rulesettest.Timeout)
	require.True(t, upd.recompiled)

	id := ruleset.NewFilterListID(fl.UUID)
	require.Len(t, env.compiler.RuleSets([]ruleset.ID{id}), 1)

	env.manager.Unregister(ctx, fl)
	assert.Eventually(t, func() (ok bool) {
		return len(env.registry.Enabled()) == 0
	}, rulesettest.Timeout, rulesettest.Timeout/100)

	// Registering again must serve the cached rules without waiting for the
	// source to push an update, and without recompiling them.
	require.NoError(t, env.manager.Register(ctx, fl))

	upd, _ = testutil.RequireReceive(t, env.applied, rulesettest.Timeout)
	assert.False(t, upd.recompiled)
	assert.Contains(t, env.registry.Enabled(), id)
	assert.Len(t, env.compiler.RuleSets([]ruleset.ID{id}), 1)

	require.NoError(t, env.manager.Shutdown(ctx))
}

func TestManager_Register_slowSource(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)

	env := &testEnv{}
	env.source = &rulesettest.UpdateSource{
		OnSubscribe: func(_ context.Context, componentID string) (upd <-chan string, err error) {
			if componentID == rulesettest.ComponentID1 {
				entered <- struct{}{}
				<-release
			}

			return make(chan string), nil
		},
	}
	env.build(t, "")

	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)

	fl := newFilterList(true)
	env.setEnabled(fl.UUID, true)

	done := make(chan struct{})
	go func() {
		defer close(done)

		assert.NoError(t, env.manager.Register(ctx, fl))
	}()

	testutil.RequireReceive(t, entered, rulesettest.Timeout)

	// A slow subscription of one list must not block the registration of
	// another.
	other := &lifecycle.FilterList{
		ComponentID: rulesettest.ComponentID2,
		UUID:        rulesettest.ListUUID2,
		Order:       2,
		Enabled:     true,
	}
	env.setEnabled(other.UUID, true)
	require.NoError(t, env.manager.Register(ctx, other))

	close(release)
	testutil.RequireReceive(t, done, rulesettest.Timeout)

	require.NoError(t, env.manager.Shutdown(ctx))
}

func TestManager_Register_error(t *testing.T) {
	failing := true

	env := &testEnv{}
	env.source = &rulesettest.UpdateSource{
		OnSubscribe: func(_ context.Context, _ string) (upd <-chan string, err error) {
			if failing {
				return nil, assert.AnError
			}

			return make(chan string), nil
		},
	}
	env.build(t, "")

	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)
	fl := newFilterList(true)
	env.setEnabled(fl.UUID, true)

	require.ErrorIs(t, env.manager.Register(ctx, fl), assert.AnError)

	// The failed registration must not occupy the UUID slot.
	failing = false
	require.NoError(t, env.manager.Register(ctx, fl))

	require.NoError(t, env.manager.Shutdown(ctx))
}

func TestManager_HandleToggle(t *testing.T) {
	subscribeCalls := 0

	env := &testEnv{}
	env.source = &rulesettest.UpdateSource{
		OnSubscribe: func(
			_ context.Context,
			_ string,
		) (upd <-chan string, err error) {
			subscribeCalls++

			return make(chan string), nil
		},
	}
	env.build(t, "")

	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)

	fl := newFilterList(true)
	env.setEnabled(fl.UUID, true)

	require.NoError(t, env.manager.HandleToggle(ctx, fl))
	require.Equal(t, 1, subscribeCalls)

	fl.Enabled = false
	env.setEnabled(fl.UUID, false)

	require.NoError(t, env.manager.HandleToggle(ctx, fl))

	fl.Enabled = true
	env.setEnabled(fl.UUID, true)

	require.NoError(t, env.manager.HandleToggle(ctx, fl))
	assert.Equal(t, 2, subscribeCalls)

	require.NoError(t, env.manager.Shutdown(ctx))
}

func TestManager_RefreshInitial(t *testing.T) {
	cacheDir := t.TempDir()

	env := &testEnv{}
	env.build(t, cacheDir)
	ctx := testutil.ContextWithTimeout(t, rulesettest.Timeout)

	fl := newFilterList(true)
	env.setEnabled(fl.UUID, true)

	// Two cached versions; the cold start must pick the newest one.
	componentRoot := filepath.Join(cacheDir, fl.ComponentID)
	writeFilterSet(t, componentRoot, "1.0.100", "||old.example^\n")
	writeFilterSet(t, componentRoot, "1.0.101", rulesettest.RulesText)

	disabled := &lifecycle.FilterList{
		ComponentID: rulesettest.ComponentID2,
		UUID:        rulesettest.ListUUID2,
		Order:       2,
		Enabled:     false,
	}

	env.manager.RefreshInitial(ctx, []*lifecycle.FilterList{fl, disabled})

	upd, _ := testutil.RequireReceive(t, env.applied, rulesettest.Timeout)
	require.Equal(t, rulesettest.ComponentID1, upd.componentID)

	id := ruleset.NewFilterListID(fl.UUID)
	ruleSets := env.compiler.RuleSets([]ruleset.ID{id})
	require.Len(t, ruleSets, 1)
	assert.Equal(t, 2, ruleSets[0].RulesCount())

	st, ok := env.compiler.SourceType(id)
	require.True(t, ok)
	assert.Equal(t, ruleset.NewDownloadedSource("1.0.101"), st)

	// Nothing for the disabled list.
	assert.Empty(t, env.applied)
	assert.NotContains(t, env.registry.Enabled(), ruleset.NewFilterListID(disabled.UUID))
}
