package rulestore

import (
	"context"
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/redisutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/Libertus-Lab/shieldcore/internal/blockcache"
	"github.com/c2h5oh/datasize"
	"github.com/gomodule/redigo/redis"
)

// Redis commands and parameters not provided by redisutil.
const (
	cmdDEL      = "DEL"
	cmdSADD     = "SADD"
	cmdSMEMBERS = "SMEMBERS"
	cmdSREM     = "SREM"
)

// RedisConfig is the configuration structure of a Redis-backed rule-list
// store.
type RedisConfig struct {
	// Pool maintains a pool of Redis connections.  It must not be nil.
	Pool redisutil.Pool

	// CacheManager is the global cache manager into which the match-result
	// caches of loaded rule lists are registered.  It must not be nil.
	CacheManager blockcache.Manager

	// KeyPrefix is prepended, with a colon, to all Redis keys used by the
	// store.  It must not be empty.
	KeyPrefix string

	// MaxRuleListSize is the maximum size of a single rule-list text.  It
	// must be positive.
	MaxRuleListSize datasize.ByteSize

	// ResultCacheCount is the count of items to keep in the match-result
	// cache of a single rule list.  It must be positive if ResultCacheEnabled
	// is true.
	ResultCacheCount int

	// ResultCacheEnabled enables match-result caching of loaded rule lists.
	ResultCacheEnabled bool
}

// Redis is a durable rule-list store backed by Redis.  Rule-list texts are
// stored as string values, and the set of persisted identifiers is kept in a
// separate index set, since scanning the whole keyspace is not acceptable on
// shared instances.
type Redis struct {
	pool         redisutil.Pool
	cacheManager blockcache.Manager
	prefix       string
	maxSize      datasize.ByteSize
	cacheCount   int
	cacheEnabled bool
}

// NewRedis returns a new Redis-backed rule-list store.  c must not be nil.
func NewRedis(c *RedisConfig) (s *Redis, err error) {
	errs := []error{
		validate.NotEmpty("KeyPrefix", c.KeyPrefix),
		validate.Positive("MaxRuleListSize", c.MaxRuleListSize),
	}

	if c.ResultCacheEnabled {
		errs = append(errs, validate.Positive("ResultCacheCount", c.ResultCacheCount))
	}

	err = errors.Join(errs...)
	if err != nil {
		return nil, fmt.Errorf("rulestore: redis: %w", err)
	}

	return &Redis{
		pool:         c.Pool,
		cacheManager: c.CacheManager,
		prefix:       c.KeyPrefix,
		maxSize:      c.MaxRuleListSize,
		cacheCount:   c.ResultCacheCount,
		cacheEnabled: c.ResultCacheEnabled,
	}, nil
}

// type check
var _ Interface = (*Redis)(nil)

// key returns the Redis key of the rule-list blob for id.
func (s *Redis) key(id string) (key string) {
	return s.prefix + ":" + id
}

// indexKey returns the Redis key of the identifier index set.
func (s *Redis) indexKey() (key string) {
	return s.prefix + ":ids"
}

// IDs implements the [Interface] interface for *Redis.
func (s *Redis) IDs(ctx context.Context) (ids []string, err error) {
	defer func() { err = errors.Annotate(err, "redis: listing rule lists: %w") }()

	c, err := s.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting from pool: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, c.Close()) }()

	ids, err = redis.Strings(c.Do(cmdSMEMBERS, s.indexKey()))
	if err != nil {
		return nil, fmt.Errorf("smembers command: %w", err)
	}

	return ids, nil
}

// Get implements the [Interface] interface for *Redis.
func (s *Redis) Get(ctx context.Context, id string) (rl *RuleList, ok bool, err error) {
	defer func() { err = errors.Annotate(err, "redis: getting rule list %q: %w", id) }()

	c, err := s.pool.Get(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("getting from pool: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, c.Close()) }()

	data, err := redis.Bytes(c.Do(redisutil.CmdGET, s.key(id)))
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("get command: %w", err)
	}

	cache := newResultCache(s.cacheManager, id, s.cacheCount, s.cacheEnabled)
	rl, err = newRuleList(id, string(data), cache)
	if err != nil {
		return nil, false, err
	} else if rl == nil {
		return nil, false, nil
	}

	return rl, true, nil
}

// Compile implements the [Interface] interface for *Redis.
func (s *Redis) Compile(ctx context.Context, id string, text string) (rl *RuleList, err error) {
	defer func() { err = errors.Annotate(err, "redis: compiling rule list %q: %w", id) }()

	if l := datasize.ByteSize(len(text)); l > s.maxSize {
		return nil, fmt.Errorf("too large: got %s, want no more than %s", l, s.maxSize)
	}

	cache := newResultCache(s.cacheManager, id, s.cacheCount, s.cacheEnabled)
	rl, err = newRuleList(id, text, cache)
	if err != nil {
		return nil, err
	} else if rl == nil {
		return nil, nil
	}

	c, err := s.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting from pool: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, c.Close()) }()

	_, err = c.Do(redisutil.CmdSET, s.key(id), []byte(text))
	if err != nil {
		return nil, fmt.Errorf("set command: %w", err)
	}

	_, err = c.Do(cmdSADD, s.indexKey(), id)
	if err != nil {
		return nil, fmt.Errorf("sadd command: %w", err)
	}

	return rl, nil
}

// Remove implements the [Interface] interface for *Redis.
func (s *Redis) Remove(ctx context.Context, id string) (err error) {
	defer func() { err = errors.Annotate(err, "redis: removing rule list %q: %w", id) }()

	c, err := s.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("getting from pool: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, c.Close()) }()

	_, err = c.Do(cmdDEL, s.key(id))
	if err != nil {
		return fmt.Errorf("del command: %w", err)
	}

	_, err = c.Do(cmdSREM, s.indexKey(), id)
	if err != nil {
		return fmt.Errorf("srem command: %w", err)
	}

	return nil
}
