// Package cmd is the shieldcore entry point.  It contains the on-disk
// configuration file utilities, signal processing logic, and so on.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/AdguardTeam/golibs/redisutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/Libertus-Lab/shieldcore/internal/blockcache"
	"github.com/Libertus-Lab/shieldcore/internal/debugsvc"
	"github.com/Libertus-Lab/shieldcore/internal/errcoll"
	"github.com/Libertus-Lab/shieldcore/internal/lifecycle"
	"github.com/Libertus-Lab/shieldcore/internal/metrics"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset/compiler"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset/registry"
	"github.com/Libertus-Lab/shieldcore/internal/rulestore"
	"github.com/Libertus-Lab/shieldcore/internal/scheduler"
	"github.com/Libertus-Lab/shieldcore/internal/settings"
	"github.com/Libertus-Lab/shieldcore/internal/version"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// defaultDirPerm is the default permission for the created store directories.
const defaultDirPerm = 0o700

// shutdownTimeout is the default shutdown timeout for all services.
const shutdownTimeout = 5 * time.Second

// Redis pool defaults.
const (
	redisIdleTimeout     = 30 * time.Second
	redisMaxConnLifetime = 1 * time.Minute

	redisMaxActive = 10
	redisMaxIdle   = 3
)

// Main is the entry point of application.
func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)

	envs := errors.Must(parseEnvironment())
	errors.Check(envs.Validate())

	lvl := errors.Must(slogutil.VerbosityToLevel(envs.Verbosity))
	baseLogger := slogutil.New(&slogutil.Config{
		// Don't use [slogutil.NewFormat] here, because the value is validated.
		Format:       slogutil.Format(envs.LogFormat),
		AddTimestamp: bool(envs.LogTimestamp),
		Level:        lvl,
	})

	mainLogger := baseLogger.With(slogutil.KeyPrefix, "main")

	// Signal service startup now that we have the logs set up.
	commitTime := version.CommitTime()
	buildVersion := version.Version()
	revision := version.Revision()
	mainLogger.InfoContext(
		ctx,
		"shieldcore starting",
		"version", buildVersion,
		"revision", revision,
		"commit_time", commitTime,
	)

	errColl := errors.Must(envs.buildErrColl())

	defer reportPanics(ctx, errColl, mainLogger)

	c := errors.Must(parseConfig(envs.ConfPath))

	errors.Check(c.Validate())

	// Rule-set storage

	cacheManager := blockcache.NewDefaultManager()

	store := errors.Must(newStore(envs, c, baseLogger, cacheManager))

	// Compilation pipeline

	reg := registry.New()

	comp := compiler.New(&compiler.Config{
		Logger:   baseLogger.With(slogutil.KeyPrefix, "compiler"),
		Registry: reg,
		Store:    store,
		ErrColl:  errColl,
		Metrics:  metrics.RuleSet{},
		Clock:    timeutil.SystemClock{},
	})

	settMgr := settings.NewManager(&settings.ManagerConfig{
		Logger:   baseLogger.With(slogutil.KeyPrefix, "settings"),
		Compiler: comp,
	})

	lifeMgr := lifecycle.NewManager(&lifecycle.ManagerConfig{
		Logger:   baseLogger.With(slogutil.KeyPrefix, "lifecycle"),
		ErrColl:  errColl,
		Registry: reg,
		Store:    store,
		Compiler: comp,
		Source: lifecycle.NewDirSource(&lifecycle.DirSourceConfig{
			Logger:   baseLogger.With(slogutil.KeyPrefix, "dirsource"),
			CacheDir: envs.ComponentCachePath,
			Interval: time.Duration(c.Scheduler.Interval),
		}),
		Lists:    settMgr,
		Metrics:  metrics.Lifecycle{},
		CacheDir: envs.ComponentCachePath,
	})

	enableCategories(c.Categories, reg)

	// Prime the compiler with rule sets compiled on previous runs, so that
	// they are served before the first compile pass finishes.
	err := comp.LoadCached(ctx)
	if err != nil {
		mainLogger.WarnContext(ctx, "loading cached rule sets", slogutil.KeyError, err)
	}

	flts := errors.Must(registerFilterLists(ctx, c.FilterLists, settMgr, lifeMgr))

	// Registered lists reload their cached filter sets in their own tasks;
	// this covers the enabled lists that did not get one.
	lifeMgr.RefreshInitial(ctx, flts)

	// Background compilation

	newCompileContext := func() (compCtx context.Context, cancel context.CancelFunc) {
		return context.WithTimeout(context.Background(), time.Duration(c.Scheduler.Timeout))
	}

	compileInitial(ctx, mainLogger, comp, newCompileContext)

	worker := scheduler.New(&scheduler.Config{
		Logger:    baseLogger.With(slogutil.KeyPrefix, "scheduler"),
		Compiler:  comp,
		SyncState: reg,
		Context:   newCompileContext,
		Interval:  time.Duration(c.Scheduler.Interval),
	})
	errors.Check(worker.Start(ctx))

	debugSvc := debugsvc.New(&debugsvc.Config{
		Logger: baseLogger.With(slogutil.KeyPrefix, "debugsvc"),
		Addr:   netutil.JoinHostPort(envs.ListenAddr.String(), envs.ListenPort),
	})
	errors.Check(debugSvc.Start(ctx))

	sigHdlr := service.NewSignalHandler(&service.SignalHandlerConfig{
		Logger:          baseLogger.With(slogutil.KeyPrefix, service.SignalHandlerPrefix),
		ShutdownTimeout: shutdownTimeout,
	})
	sigHdlr.AddService(worker)
	sigHdlr.AddService(lifeMgr)
	sigHdlr.AddService(debugSvc)

	// Signal that the server is started.
	metrics.SetUpGauge(buildVersion, commitTime, revision, runtime.Version())

	// Unregister the signal behavior for ctx.
	stop()
	ctx = context.WithoutCancel(ctx)

	os.Exit(sigHdlr.Handle(ctx))
}

// newStore returns the durable rule-list store described by the environment
// and the configuration, wrapped into a loaded-rule-list cache.
func newStore(
	envs *environment,
	c *configuration,
	baseLogger *slog.Logger,
	cacheManager blockcache.Manager,
) (s rulestore.Interface, err error) {
	storeLogger := baseLogger.With(slogutil.KeyPrefix, "rulestore")

	switch c.Store.Type {
	case storeTypeLocal:
		err = os.MkdirAll(envs.RuleSetCachePath, defaultDirPerm)
		if err != nil {
			return nil, fmt.Errorf("creating rule-set cache dir: %w", err)
		}

		s, err = rulestore.NewLocal(&rulestore.LocalConfig{
			Logger:             storeLogger,
			CacheManager:       cacheManager,
			Dir:                envs.RuleSetCachePath,
			MaxRuleListSize:    c.Store.MaxRuleListSize,
			ResultCacheCount:   c.Cache.ResultCacheCount,
			ResultCacheEnabled: c.Cache.ResultCacheEnabled,
		})
	case storeTypeRedis:
		s, err = newRedisStore(envs, c, storeLogger, cacheManager)
	default:
		err = fmt.Errorf("store type: %w: %q", errors.ErrBadEnumValue, c.Store.Type)
	}

	if err != nil {
		return nil, err
	}

	cache, err := blockcache.NewExpiring[string, *rulestore.RuleList](&blockcache.ExpiringConfig{
		Clock: timeutil.SystemClock{},
		Count: c.Cache.RuleListCacheCount,
	})
	if err != nil {
		return nil, fmt.Errorf("rule-list cache: %w", err)
	}

	return rulestore.NewCached(&rulestore.CachedConfig{
		Store: s,
		Cache: cache,
		TTL:   time.Duration(c.Cache.RuleListCacheTTL),
	}), nil
}

// newRedisStore returns a Redis-backed rule-list store.
func newRedisStore(
	envs *environment,
	c *configuration,
	storeLogger *slog.Logger,
	cacheManager blockcache.Manager,
) (s *rulestore.Redis, err error) {
	dialer, err := redisutil.NewDefaultDialer(&redisutil.DefaultDialerConfig{
		Addr: &netutil.HostPort{
			Host: envs.RedisAddr,
			Port: envs.RedisPort,
		},
		DBIndex: uint8(envs.RedisDBIndex),
	})
	if err != nil {
		return nil, fmt.Errorf("redis dialer: %w", err)
	}

	pool, err := redisutil.NewDefaultPool(&redisutil.DefaultPoolConfig{
		Logger:          storeLogger,
		Dialer:          dialer,
		MaxConnLifetime: redisMaxConnLifetime,
		IdleTimeout:     redisIdleTimeout,
		MaxActive:       redisMaxActive,
		MaxIdle:         redisMaxIdle,
		Wait:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis pool: %w", err)
	}

	return rulestore.NewRedis(&rulestore.RedisConfig{
		Pool:               pool,
		CacheManager:       cacheManager,
		KeyPrefix:          envs.RedisKeyPrefix,
		MaxRuleListSize:    c.Store.MaxRuleListSize,
		ResultCacheCount:   c.Cache.ResultCacheCount,
		ResultCacheEnabled: c.Cache.ResultCacheEnabled,
	})
}

// enableCategories enables the configured bundled blocking categories.
func enableCategories(conf categories, reg *registry.Registry) {
	for _, cat := range conf {
		if !cat.Enabled {
			continue
		}

		reg.SetEnabled(ruleset.Resource{
			Path:   cat.Path,
			Source: ruleset.NewBundledSource(),
		}, ruleset.NewGeneralID(ruleset.GeneralKind(cat.Kind)))
	}
}

// registerFilterLists adds the configured filter lists to the settings
// manager and registers the enabled ones with the lifecycle manager.
func registerFilterLists(
	ctx context.Context,
	conf filterLists,
	settMgr *settings.Manager,
	lifeMgr *lifecycle.Manager,
) (flts []*lifecycle.FilterList, err error) {
	var errs []error
	for _, flConf := range conf {
		fl := &lifecycle.FilterList{
			ComponentID: flConf.ComponentID,
			// The UUID has already been validated.
			UUID:    uuid.MustParse(flConf.UUID),
			Order:   flConf.Order,
			Enabled: flConf.Enabled,
		}

		settMgr.SetFilterList(fl)
		flts = append(flts, fl)

		if fl.Enabled {
			errs = append(errs, lifeMgr.Register(ctx, fl))
		}
	}

	return flts, errors.Join(errs...)
}

// compileInitial runs the first compile pass and removes the stored rule sets
// that are no longer enabled.  Compile failures have already been collected,
// so they are only logged here.
func compileInitial(
	ctx context.Context,
	logger *slog.Logger,
	comp *compiler.Compiler,
	newCompileContext func() (ctx context.Context, cancel context.CancelFunc),
) {
	compCtx, cancel := newCompileContext()
	defer cancel()

	compCtx = slogutil.ContextWithLogger(compCtx, logger)

	err := comp.CompilePending(compCtx)
	if err != nil {
		logger.WarnContext(ctx, "initial compile pass", slogutil.KeyError, err)
	}

	err = comp.CleanupStale(compCtx)
	if err != nil {
		logger.WarnContext(ctx, "initial store cleanup", slogutil.KeyError, err)
	}
}

// reportPanics reports all panics in Main using the error collector.  It
// should be called in a deferred statement.
func reportPanics(ctx context.Context, errColl errcoll.Interface, l *slog.Logger) {
	err := errors.FromRecovered(recover())
	if err == nil {
		return
	}

	errColl.Collect(ctx, err)
	if fc, ok := errColl.(errcoll.ErrorFlushCollector); ok {
		fc.Flush()
	}

	l.ErrorContext(ctx, "recovered panic", slogutil.KeyError, err)
	slogutil.PrintStack(ctx, l, slog.LevelError)

	os.Exit(osutil.ExitCodeFailure)
}
