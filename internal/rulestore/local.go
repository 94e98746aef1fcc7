package rulestore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/Libertus-Lab/shieldcore/internal/blockcache"
	"github.com/c2h5oh/datasize"
	renameio "github.com/google/renameio/v2"
)

// ruleListFileExt is the extension of persisted rule-list files in a local
// store directory.
const ruleListFileExt = ".txt"

// LocalConfig is the configuration structure of a local rule-list store.
type LocalConfig struct {
	// Logger is used for logging the operation of the store.  It must not be
	// nil.
	Logger *slog.Logger

	// CacheManager is the global cache manager into which the match-result
	// caches of loaded rule lists are registered.  It must not be nil.
	CacheManager blockcache.Manager

	// Dir is the path to the directory where the rule-list blobs are put.  It
	// must not be empty and the directory must exist.
	Dir string

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

// Local is a durable rule-list store backed by a local directory.  Each rule
// list is persisted as a single text file named after its identifier.
type Local struct {
	logger       *slog.Logger
	cacheManager blockcache.Manager
	dir          string
	maxSize      datasize.ByteSize
	cacheCount   int
	cacheEnabled bool
}

// NewLocal returns a new local rule-list store.  c must not be nil.
func NewLocal(c *LocalConfig) (s *Local, err error) {
	errs := []error{
		validate.NotEmpty("Dir", c.Dir),
		validate.Positive("MaxRuleListSize", c.MaxRuleListSize),
	}

	if c.ResultCacheEnabled {
		errs = append(errs, validate.Positive("ResultCacheCount", c.ResultCacheCount))
	}

	err = errors.Join(errs...)
	if err != nil {
		return nil, fmt.Errorf("rulestore: local: %w", err)
	}

	return &Local{
		logger:       c.Logger,
		cacheManager: c.CacheManager,
		dir:          c.Dir,
		maxSize:      c.MaxRuleListSize,
		cacheCount:   c.ResultCacheCount,
		cacheEnabled: c.ResultCacheEnabled,
	}, nil
}

// type check
var _ Interface = (*Local)(nil)

// IDs implements the [Interface] interface for *Local.
func (s *Local) IDs(_ context.Context) (ids []string, err error) {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing rule lists: %w", err)
	}

	for _, ent := range ents {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, ruleListFileExt) {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ruleListFileExt))
	}

	return ids, nil
}

// Get implements the [Interface] interface for *Local.
func (s *Local) Get(ctx context.Context, id string) (rl *RuleList, ok bool, err error) {
	fp, err := s.filePath(id)
	if err != nil {
		return nil, false, err
	}

	// #nosec G304 -- fp is the store directory joined with a validated,
	// no-separator identifier.
	data, err := os.ReadFile(fp)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("reading rule list %q: %w", id, err)
	}

	cache := newResultCache(s.cacheManager, id, s.cacheCount, s.cacheEnabled)
	rl, err = newRuleList(id, string(data), cache)
	if err != nil {
		return nil, false, fmt.Errorf("loading rule list %q: %w", id, err)
	} else if rl == nil {
		// A persisted blob should never be empty.  Treat it as a miss so the
		// next compile replaces it.
		s.logger.WarnContext(ctx, "persisted rule list is empty", "id", id)

		return nil, false, nil
	}

	return rl, true, nil
}

// Compile implements the [Interface] interface for *Local.
func (s *Local) Compile(ctx context.Context, id string, text string) (rl *RuleList, err error) {
	fp, err := s.filePath(id)
	if err != nil {
		return nil, err
	}

	if l := datasize.ByteSize(len(text)); l > s.maxSize {
		return nil, fmt.Errorf("rule list %q: too large: got %s, want no more than %s", id, l, s.maxSize)
	}

	cache := newResultCache(s.cacheManager, id, s.cacheCount, s.cacheEnabled)
	rl, err = newRuleList(id, text, cache)
	if err != nil {
		return nil, fmt.Errorf("compiling rule list %q: %w", id, err)
	} else if rl == nil {
		return nil, nil
	}

	err = renameio.WriteFile(fp, []byte(text), 0o644)
	if err != nil {
		return nil, fmt.Errorf("persisting rule list %q: %w", id, err)
	}

	s.logger.InfoContext(ctx, "compiled rule list", "id", id, "rules", rl.RulesCount())

	return rl, nil
}

// Remove implements the [Interface] interface for *Local.
func (s *Local) Remove(_ context.Context, id string) (err error) {
	fp, err := s.filePath(id)
	if err != nil {
		return err
	}

	err = os.Remove(fp)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing rule list %q: %w", id, err)
	}

	return nil
}

// filePath returns the path of the blob file for id, making sure that id
// cannot escape the store directory.
func (s *Local) filePath(id string) (fp string, err error) {
	if strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("rulestore: bad rule-list id %q", id)
	}

	return filepath.Join(s.dir, id+ruleListFileExt), nil
}
