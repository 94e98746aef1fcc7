package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/Libertus-Lab/shieldcore/internal/errcoll"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset/compiler"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset/registry"
	"github.com/Libertus-Lab/shieldcore/internal/rulestore"
	"github.com/google/uuid"
)

// ManagerConfig is the configuration structure of a filter-list lifecycle
// manager.
type ManagerConfig struct {
	// Logger is used for logging the operation of the manager.  It must not
	// be nil.
	Logger *slog.Logger

	// ErrColl collects update failures.  It must not be nil.
	ErrColl errcoll.Interface

	// Registry tracks enabled rule-set resources.  It must not be nil.
	Registry *registry.Registry

	// Store is the durable rule-list store, checked for already compiled
	// artifacts.  It must not be nil.
	Store rulestore.Interface

	// Compiler compiles filter-set texts into rule sets.  It must not be nil.
	Compiler *compiler.Compiler

	// Source is the external update source.  It may be nil, in which case
	// registrations are no-ops.
	Source Source

	// Lists reports the current toggle state of filter lists.  It must not be
	// nil.
	Lists Lists

	// Metrics collects update statistics.  It must not be nil.
	Metrics Metrics

	// CacheDir is the root of the component cache, holding one directory per
	// component ID with versioned filter-set folders inside.  It may be
	// empty, in which case the initial refresh does nothing.
	CacheDir string
}

// Manager owns the background tasks of registered filter lists.  At most one
// task exists per filter-list UUID; the task subscribes to the update stream
// of the list's component and applies every valid update it receives.
type Manager struct {
	logger   *slog.Logger
	errColl  errcoll.Interface
	registry *registry.Registry
	store    rulestore.Interface
	compiler *compiler.Compiler
	source   Source
	lists    Lists
	metrics  Metrics
	cacheDir string

	// mu protects tasks and versions.
	mu *sync.Mutex

	// tasks maps filter-list UUIDs to their update tasks.
	tasks map[uuid.UUID]*updateTask

	// versions maps component IDs to the last versions applied for them.
	versions map[string]string
}

// updateTask is the handle of one running update task.
type updateTask struct {
	// cancel stops the task.
	cancel context.CancelFunc
}

// NewManager returns a new filter-list lifecycle manager.  c must not be nil.
func NewManager(c *ManagerConfig) (m *Manager) {
	return &Manager{
		logger:   c.Logger,
		errColl:  c.ErrColl,
		registry: c.Registry,
		store:    c.Store,
		compiler: c.Compiler,
		source:   c.Source,
		lists:    c.Lists,
		metrics:  c.Metrics,
		cacheDir: c.CacheDir,
		mu:       &sync.Mutex{},
		tasks:    map[uuid.UUID]*updateTask{},
		versions: map[string]string{},
	}
}

// Register subscribes to updates of fl's component and spawns the task that
// reloads fl's cached filter set and consumes the updates, so a list toggled
// off and back on serves its rules again without waiting for the source.  It
// is a no-op when a task for fl's UUID already exists or when no update source
// is configured.
func (m *Manager) Register(ctx context.Context, fl *FilterList) (err error) {
	if m.source == nil {
		m.logger.DebugContext(ctx, "no update source; not registering", "uuid", fl.UUID)

		return nil
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	taskCtx = slogutil.ContextWithLogger(taskCtx, m.logger)

	t := &updateTask{
		cancel: cancel,
	}

	m.mu.Lock()
	_, ok := m.tasks[fl.UUID]
	if !ok {
		m.tasks[fl.UUID] = t
	}
	m.mu.Unlock()

	if ok {
		cancel()

		return nil
	}

	// Subscribe outside of the lock, since the source may block, and version
	// lookups of other lists must not wait for it.
	updates, err := m.source.Subscribe(taskCtx, fl.ComponentID)
	if err != nil {
		m.mu.Lock()
		if m.tasks[fl.UUID] == t {
			delete(m.tasks, fl.UUID)
		}
		m.mu.Unlock()

		cancel()

		return fmt.Errorf("registering %s: subscribing: %w", fl.UUID, err)
	}

	go m.run(taskCtx, fl, updates)

	m.logger.InfoContext(ctx, "registered", "uuid", fl.UUID, "component_id", fl.ComponentID)

	return nil
}

// Unregister cancels the update task of fl, if any, which the source takes as
// the signal to stop sending updates, and asynchronously removes fl's
// resource registration.
func (m *Manager) Unregister(ctx context.Context, fl *FilterList) {
	m.mu.Lock()
	t, ok := m.tasks[fl.UUID]
	if ok {
		delete(m.tasks, fl.UUID)
	}
	m.mu.Unlock()

	if ok {
		t.cancel()
	}

	id := ruleset.NewFilterListID(fl.UUID)
	go func() {
		defer slogutil.RecoverAndLog(ctx, m.logger)

		m.registry.RemoveEnabled(id)
	}()

	m.logger.InfoContext(ctx, "unregistered", "uuid", fl.UUID)
}

// HandleToggle reacts to a change of fl's enabled flag.  It is the single
// integration point between settings changes and the background tasks.
func (m *Manager) HandleToggle(ctx context.Context, fl *FilterList) (err error) {
	if fl.Enabled {
		return m.Register(ctx, fl)
	}

	m.Unregister(ctx, fl)

	return nil
}

// type check
var _ service.Interface = (*Manager)(nil)

// Start implements the [service.Interface] interface for *Manager.  The
// update tasks are spawned by [Manager.Register], so Start only logs.  err is
// always nil.
func (m *Manager) Start(ctx context.Context) (err error) {
	m.logger.DebugContext(ctx, "started")

	return nil
}

// Shutdown implements the [service.Interface] interface for *Manager.  It
// cancels all update tasks.  err is always nil.
func (m *Manager) Shutdown(ctx context.Context) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.tasks {
		t.cancel()
		delete(m.tasks, id)
	}

	m.logger.InfoContext(ctx, "shut down successfully")

	return nil
}

// run reloads the newest cached filter set of fl and then applies its updates
// until ctx is cancelled or the stream is closed.
func (m *Manager) run(ctx context.Context, fl *FilterList, updates <-chan string) {
	defer slogutil.RecoverAndLog(ctx, m.logger)

	select {
	case <-ctx.Done():
		// Unregistered while the subscription was being set up.
		return
	default:
		// Go on.
	}

	m.refreshList(ctx, fl)

	for {
		select {
		case <-ctx.Done():
			return
		case dir, ok := <-updates:
			if !ok {
				m.logger.DebugContext(ctx, "update stream closed", "uuid", fl.UUID)

				return
			} else if dir == "" {
				// The source attempted an update but has nothing to deliver.
				continue
			}

			m.ApplyUpdate(ctx, fl, dir)
		}
	}
}

// ApplyUpdate loads the filter-set folder dir delivered for fl: it compiles
// the rules when no compiled artifact exists yet or the version has changed,
// reuses the stored artifact otherwise, and then reconciles the resource
// registration with fl's current toggle state.  Folders with the legacy
// layout are ignored entirely.
func (m *Manager) ApplyUpdate(ctx context.Context, fl *FilterList, dir string) {
	if _, err := os.Stat(filepath.Join(dir, MarkerFileName)); err != nil {
		// The update folder predates the current layout.  Skip it and wait
		// for the next proper update to supersede it.
		m.logger.WarnContext(
			ctx,
			"skipping legacy filter-set layout",
			"uuid", fl.UUID,
			"component_id", fl.ComponentID,
			"dir", dir,
		)
		m.metrics.ObserveLegacySkip(ctx, fl.ComponentID)

		return
	}

	version := filepath.Base(dir)
	id := ruleset.NewFilterListID(fl.UUID)
	res := ruleset.Resource{
		Path:   filepath.Join(dir, RulesFileName),
		Source: ruleset.NewDownloadedSource(version),
	}

	m.mu.Lock()
	prevVersion, hadPrev := m.versions[fl.ComponentID]
	m.versions[fl.ComponentID] = version
	m.mu.Unlock()

	isModified := hadPrev && prevVersion != version

	recompiled, err := m.loadRuleSet(ctx, id, res, isModified)
	if err != nil {
		errcoll.Collect(
			ctx,
			m.errColl,
			m.logger,
			fmt.Sprintf("applying update for %s", fl.UUID),
			err,
		)

		// Fall through: the registration below must still reflect the
		// current toggle state, and a cached failure outcome simply serves no
		// rules.
	}

	// The toggle may have been flipped while the update was being processed,
	// so the current state, not the one captured at registration, decides.
	if m.lists.IsEnabled(fl.UUID) {
		m.registry.SetEnabled(res, id)
		m.registry.MarkAttempted(id)
	} else {
		m.registry.RemoveEnabled(id)
	}

	m.metrics.ObserveUpdate(ctx, fl.ComponentID, recompiled)
	m.logger.InfoContext(
		ctx,
		"applied update",
		"uuid", fl.UUID,
		"version", version,
		"recompiled", recompiled,
	)
}

// loadRuleSet makes the rule set for id from res available in the compiler,
// recompiling only when there is no stored artifact yet or when isModified
// reports a version change.
func (m *Manager) loadRuleSet(
	ctx context.Context,
	id ruleset.ID,
	res ruleset.Resource,
	isModified bool,
) (recompiled bool, err error) {
	if !isModified {
		rs, ok, getErr := m.store.Get(ctx, id.Key())
		if getErr != nil {
			// Treat a store failure as a miss and recompile.
			m.logger.WarnContext(
				ctx,
				"checking stored rule set",
				"id", id,
				slogutil.KeyError, getErr,
			)
		} else if ok {
			m.compiler.SetRuleSet(id, res.Source, rs)

			return false, nil
		}
	}

	_, err = m.compiler.Compile(ctx, id, res)
	if err != nil {
		return true, fmt.Errorf("compiling %s: %w", id, err)
	}

	return true, nil
}
