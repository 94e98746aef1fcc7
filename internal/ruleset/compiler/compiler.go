// Package compiler turns block-rule resources into compiled rule sets and
// keeps the outcomes of the attempts, so that repeated requests for the same
// resource, successful or not, do not redo the work.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/Libertus-Lab/shieldcore/internal/errcoll"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset/registry"
	"github.com/Libertus-Lab/shieldcore/internal/rulestore"
)

// Config is the configuration structure of a compiler.
type Config struct {
	// Logger is used for logging the operation of the compiler.  It must not
	// be nil.
	Logger *slog.Logger

	// Registry tracks which resources are enabled and which have been
	// attempted.  It must not be nil.
	Registry *registry.Registry

	// Store persists and compiles rule-list texts.  It must not be nil.
	Store rulestore.Interface

	// ErrColl collects compile failures.  It must not be nil.
	ErrColl errcoll.Interface

	// Metrics records per-rule-set compile status.  It must not be nil.
	Metrics ruleset.Metrics

	// Clock is used to timestamp compile attempts.  It must not be nil.
	Clock timeutil.Clock
}

// Compiler compiles enabled block-rule resources into rule sets and caches
// the outcome of every attempt.  An outcome, including a failed one, is kept
// until a compile of the same rule-type ID is requested with a different
// source, so flipping a setting off and on does not recompile an unchanged
// resource and does not retry a failure that cannot succeed.  At most one
// compile is in flight per rule-type ID; concurrent requests for the same ID
// wait for it and then reuse its outcome.
type Compiler struct {
	logger   *slog.Logger
	registry *registry.Registry
	store    rulestore.Interface
	errColl  errcoll.Interface
	metrics  ruleset.Metrics
	clock    timeutil.Clock

	// mu protects outcomes and idLocks.
	mu *sync.Mutex

	// outcomes maps rule-type IDs to the results of their last compile or
	// cached-load attempts.
	outcomes map[ruleset.ID]*outcome

	// idLocks maps rule-type IDs to the locks serializing their compile and
	// cached-load attempts.
	idLocks map[ruleset.ID]*sync.Mutex
}

// outcome is the result of a compile or cached-load attempt.
type outcome struct {
	// rs is the compiled rule set.  It is nil when err is not nil.
	rs *rulestore.RuleList

	// err is the error of the attempt, if any.
	err error

	// source identifies the resource version the attempt was made for.  It is
	// meaningless when fromCache is true.
	source ruleset.SourceType

	// fromCache is true when the rule set was loaded from the durable store,
	// so its original resource is unknown and any compile must go through.
	fromCache bool
}

// New returns a new compiler.  c must not be nil.
func New(c *Config) (comp *Compiler) {
	return &Compiler{
		logger:   c.Logger,
		registry: c.Registry,
		store:    c.Store,
		errColl:  c.ErrColl,
		metrics:  c.Metrics,
		clock:    c.Clock,
		mu:       &sync.Mutex{},
		outcomes: map[ruleset.ID]*outcome{},
		idLocks:  map[ruleset.ID]*sync.Mutex{},
	}
}

// idLock returns the lock serializing the attempts for id, creating it on the
// first request.
func (c *Compiler) idLock(id ruleset.ID) (idMu *sync.Mutex) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idMu, ok := c.idLocks[id]
	if !ok {
		idMu = &sync.Mutex{}
		c.idLocks[id] = idMu
	}

	return idMu
}

// Compile compiles the resource res into the rule set for id, unless an
// attempt for the same source has already been made, in which case the cached
// outcome is returned, error included.  A concurrent compile of the same ID
// is waited for, so the same resource is never compiled twice.
func (c *Compiler) Compile(
	ctx context.Context,
	id ruleset.ID,
	res ruleset.Resource,
) (rs *rulestore.RuleList, err error) {
	idMu := c.idLock(id)
	idMu.Lock()
	defer idMu.Unlock()

	c.mu.Lock()
	prev, ok := c.outcomes[id]
	c.mu.Unlock()

	if ok && !prev.fromCache && prev.source == res.Source {
		return prev.rs, prev.err
	}

	rs, err = c.compile(ctx, id, res)

	c.mu.Lock()
	c.outcomes[id] = &outcome{
		rs:     rs,
		err:    err,
		source: res.Source,
	}
	c.mu.Unlock()

	rulesCount := 0
	if rs != nil {
		rulesCount = rs.RulesCount()
	}

	c.metrics.SetRuleSetStatus(ctx, id.Key(), c.clock.Now(), rulesCount, err)

	if err != nil {
		errcoll.Collect(ctx, c.errColl, c.logger, fmt.Sprintf("compiling %s", id), err)
	}

	return rs, err
}

// compile performs a single compile attempt for id from res.
func (c *Compiler) compile(
	ctx context.Context,
	id ruleset.ID,
	res ruleset.Resource,
) (rs *rulestore.RuleList, err error) {
	// #nosec G304 -- the path comes from the lifecycle manager or from the
	// bundled resource table, not from untrusted input.
	data, err := os.ReadFile(res.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%q: %w", res.Path, ruleset.ErrFileNotFound)
		}

		return nil, fmt.Errorf("reading %q: %w", res.Path, err)
	}

	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%q: %w", res.Path, ruleset.ErrInvalidResourceText)
	}

	rs, err = c.store.Compile(ctx, id.Key(), string(data))
	if err != nil {
		return nil, err
	} else if rs == nil {
		return nil, ruleset.ErrNoRuleSet
	}

	c.logger.DebugContext(
		ctx,
		"compiled",
		"id", id,
		"source", res.Source,
		"rules", rs.RulesCount(),
	)

	return rs, nil
}

// CompilePending compiles all resources the registry reports as pending,
// concurrently, and marks every one of them attempted, failures included.
// The returned error joins the errors of the failed attempts.
func (c *Compiler) CompilePending(ctx context.Context) (err error) {
	pending := c.registry.Pending()
	if len(pending) == 0 {
		return nil
	}

	errCh := make(chan error, len(pending))
	wg := &sync.WaitGroup{}
	for id, res := range pending {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer slogutil.RecoverAndLog(ctx, c.logger)
			defer c.registry.MarkAttempted(id)

			_, compErr := c.Compile(ctx, id, res)
			if compErr != nil {
				errCh <- fmt.Errorf("%s: %w", id, compErr)
			}
		}()
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for compErr := range errCh {
		errs = append(errs, compErr)
	}

	return errors.Annotate(errors.Join(errs...), "compiling pending: %w")
}

// LoadCached makes the rule sets persisted in the durable store available for
// the pending entries without compiling anything.  A store hit becomes a
// success outcome and the entry is marked attempted; a miss leaves the entry
// pending for the next compile pass.  Rule sets loaded this way are served by
// [RuleSets] until a compile for the same ID succeeds with a real source.
func (c *Compiler) LoadCached(ctx context.Context) (err error) {
	var errs []error
	for id := range c.registry.Pending() {
		ok, loadErr := c.loadCached(ctx, id)
		if loadErr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, loadErr))

			continue
		}

		if ok {
			c.registry.MarkAttempted(id)
		}
	}

	return errors.Annotate(errors.Join(errs...), "loading cached: %w")
}

// loadCached loads the rule set for id from the durable store, never
// shadowing an outcome that already exists.  ok is true when a rule set for
// id, loaded now or previously, is available.
func (c *Compiler) loadCached(ctx context.Context, id ruleset.ID) (ok bool, err error) {
	// Hold the per-ID lock, so that a concurrent compile of the same ID
	// cannot be shadowed by the cached load.
	idMu := c.idLock(id)
	idMu.Lock()
	defer idMu.Unlock()

	c.mu.Lock()
	prev, hasPrev := c.outcomes[id]
	c.mu.Unlock()

	if hasPrev {
		return prev.err == nil, nil
	}

	rs, ok, err := c.store.Get(ctx, id.Key())
	if err != nil {
		return false, fmt.Errorf("reading store: %w", err)
	} else if !ok {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.outcomes[id] = &outcome{
		rs:        rs,
		fromCache: true,
	}

	c.logger.DebugContext(ctx, "loaded cached", "id", id, "rules", rs.RulesCount())

	return true, nil
}

// CleanupStale removes from the durable store the rule sets whose rule-type
// IDs are no longer enabled.  Removal failures are logged and do not abort
// the cleanup.
func (c *Compiler) CleanupStale(ctx context.Context) (err error) {
	ids, err := c.store.IDs(ctx)
	if err != nil {
		return fmt.Errorf("cleaning up stale rule sets: %w", err)
	}

	enabled := container.NewMapSet[string]()
	for id := range c.registry.Enabled() {
		enabled.Add(id.Key())
	}

	for _, key := range ids {
		if enabled.Has(key) {
			continue
		}

		removeErr := c.store.Remove(ctx, key)
		if removeErr != nil {
			c.logger.WarnContext(
				ctx,
				"removing stale rule set",
				"key", key,
				slogutil.KeyError, removeErr,
			)

			continue
		}

		c.logger.InfoContext(ctx, "removed stale rule set", "key", key)
	}

	return nil
}

// RuleSets returns the successfully compiled or loaded rule sets for ids,
// keeping the order of ids.  IDs with no rule set, which includes ones whose
// last attempt failed, are skipped.
func (c *Compiler) RuleSets(ids []ruleset.ID) (ruleSets []*rulestore.RuleList) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		if o, ok := c.outcomes[id]; ok && o.err == nil && o.rs != nil {
			ruleSets = append(ruleSets, o.rs)
		}
	}

	return ruleSets
}

// SourceType returns the source of the last successful compile for id.  ok is
// false when no attempt has been recorded, the last attempt failed, or the
// rule set was loaded from the durable store.
func (c *Compiler) SourceType(id ruleset.ID) (st ruleset.SourceType, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.outcomes[id]
	if !ok || o.fromCache || o.err != nil {
		return ruleset.SourceType{}, false
	}

	return o.source, true
}

// SetRuleSet records rs as the successful outcome for id compiled from source
// st, overwriting any previous outcome.  It is used when a rule set has been
// produced outside of [Compile], for example directly from the durable store
// during a filter-list update.
func (c *Compiler) SetRuleSet(id ruleset.ID, st ruleset.SourceType, rs *rulestore.RuleList) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outcomes[id] = &outcome{
		rs:     rs,
		source: st,
	}
}
