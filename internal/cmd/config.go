package cmd

import (
	"fmt"
	"os"
	"slices"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset"
	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

// configuration represents the on-disk configuration of the rule-set service.
type configuration struct {
	// Scheduler is the periodic compile scheduler configuration.
	Scheduler *schedulerConfig `yaml:"scheduler"`

	// Cache is the cache configuration.
	Cache *cacheConfig `yaml:"cache"`

	// Store is the durable rule-list store configuration.
	Store *storeConfig `yaml:"store"`

	// Categories are the bundled general blocking categories.
	Categories categories `yaml:"categories"`

	// FilterLists are the externally updated filter lists.
	FilterLists filterLists `yaml:"filter_lists"`
}

// type check
var _ validate.Interface = (*configuration)(nil)

// Validate implements the [validate.Interface] interface for *configuration.
func (c *configuration) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	validators := container.KeyValues[string, validate.Interface]{{
		Key:   "scheduler",
		Value: c.Scheduler,
	}, {
		Key:   "cache",
		Value: c.Cache,
	}, {
		Key:   "store",
		Value: c.Store,
	}, {
		Key:   "categories",
		Value: c.Categories,
	}, {
		Key:   "filter_lists",
		Value: c.FilterLists,
	}}

	var errs []error
	for _, kv := range validators {
		errs = validate.Append(errs, kv.Key, kv.Value)
	}

	return errors.Join(errs...)
}

// parseConfig reads the configuration.
func parseConfig(confPath string) (c *configuration, err error) {
	// #nosec G304 -- Trust the path to the configuration file that is given
	// from the environment.
	yamlFile, err := os.ReadFile(confPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	c = &configuration{}
	err = yaml.Unmarshal(yamlFile, c)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return c, nil
}

// schedulerConfig is the periodic compile scheduler configuration.
type schedulerConfig struct {
	// Interval defines how often the scheduler checks for pending rule sets.
	Interval timeutil.Duration `yaml:"interval"`

	// Timeout is the timeout for a single compile pass.
	Timeout timeutil.Duration `yaml:"timeout"`
}

// type check
var _ validate.Interface = (*schedulerConfig)(nil)

// Validate implements the [validate.Interface] interface for
// *schedulerConfig.
func (c *schedulerConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	return errors.Join(
		validate.Positive("interval", c.Interval),
		validate.Positive("timeout", c.Timeout),
	)
}

// cacheConfig is the cache configuration.
type cacheConfig struct {
	// RuleListCacheTTL is how long a loaded rule list stays cached in front
	// of the durable store.  Zero means no expiration.
	RuleListCacheTTL timeutil.Duration `yaml:"rule_list_cache_ttl"`

	// ResultCacheCount is the count of items to keep in the match-result
	// cache of a single rule set.
	ResultCacheCount int `yaml:"result_cache_count"`

	// RuleListCacheCount is the count of loaded rule lists to keep in front
	// of the durable store.
	RuleListCacheCount int `yaml:"rule_list_cache_count"`

	// ResultCacheEnabled enables match-result caching.
	ResultCacheEnabled bool `yaml:"result_cache_enabled"`
}

// type check
var _ validate.Interface = (*cacheConfig)(nil)

// Validate implements the [validate.Interface] interface for *cacheConfig.
func (c *cacheConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.Positive("rule_list_cache_count", c.RuleListCacheCount),
		validate.NotNegative("rule_list_cache_ttl", c.RuleListCacheTTL),
	}

	if c.ResultCacheEnabled {
		errs = append(errs, validate.Positive("result_cache_count", c.ResultCacheCount))
	}

	return errors.Join(errs...)
}

// Durable store types.
const (
	storeTypeLocal = "local"
	storeTypeRedis = "redis"
)

// storeConfig is the durable rule-list store configuration.
type storeConfig struct {
	// Type is the store kind, either [storeTypeLocal] or [storeTypeRedis].
	Type string `yaml:"type"`

	// MaxRuleListSize is the maximum size of a single rule-list text.
	MaxRuleListSize datasize.ByteSize `yaml:"max_rule_list_size"`
}

// type check
var _ validate.Interface = (*storeConfig)(nil)

// Validate implements the [validate.Interface] interface for *storeConfig.
func (c *storeConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.Positive("max_rule_list_size", c.MaxRuleListSize),
	}

	if c.Type != storeTypeLocal && c.Type != storeTypeRedis {
		errs = append(errs, fmt.Errorf(
			"type: %w: %q, supported: %q, %q",
			errors.ErrBadEnumValue,
			c.Type,
			storeTypeLocal,
			storeTypeRedis,
		))
	}

	return errors.Join(errs...)
}

// category is a bundled general blocking category.
type category struct {
	// Kind is the category kind.
	Kind string `yaml:"kind"`

	// Path is the path of the bundled rules file.
	Path string `yaml:"path"`

	// Enabled shows whether the category is compiled and served.
	Enabled bool `yaml:"enabled"`
}

// type check
var _ validate.Interface = (*category)(nil)

// Validate implements the [validate.Interface] interface for *category.
func (c *category) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotEmpty("path", c.Path),
	}

	if !slices.Contains(ruleset.GeneralKinds(), ruleset.GeneralKind(c.Kind)) {
		errs = append(errs, fmt.Errorf("kind: %w: %q", errors.ErrBadEnumValue, c.Kind))
	}

	return errors.Join(errs...)
}

// categories is a list of bundled general blocking categories.
type categories []*category

// type check
var _ validate.Interface = categories(nil)

// Validate implements the [validate.Interface] interface for categories.
func (cs categories) Validate() (err error) {
	var errs []error

	seen := map[string]struct{}{}
	for i, c := range cs {
		errs = validate.Append(errs, fmt.Sprintf("at index %d", i), c)

		if c == nil {
			continue
		}

		if _, ok := seen[c.Kind]; ok {
			errs = append(errs, fmt.Errorf("at index %d: kind: %w: %q", i, errors.ErrDuplicated, c.Kind))
		}
		seen[c.Kind] = struct{}{}
	}

	return errors.Join(errs...)
}

// filterList is an externally updated filter list.
type filterList struct {
	// UUID is the stable identity of the list.
	UUID string `yaml:"uuid"`

	// ComponentID is the identifier of the component that delivers updates
	// for the list.
	ComponentID string `yaml:"component_id"`

	// Order is the relative priority of the list among other filter lists.
	Order int `yaml:"order"`

	// Enabled shows whether the list is active.
	Enabled bool `yaml:"enabled"`
}

// type check
var _ validate.Interface = (*filterList)(nil)

// Validate implements the [validate.Interface] interface for *filterList.
func (c *filterList) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotEmpty("component_id", c.ComponentID),
	}

	_, err = uuid.Parse(c.UUID)
	if err != nil {
		errs = append(errs, fmt.Errorf("uuid: %w", err))
	}

	return errors.Join(errs...)
}

// filterLists is a list of externally updated filter lists.
type filterLists []*filterList

// type check
var _ validate.Interface = filterLists(nil)

// Validate implements the [validate.Interface] interface for filterLists.
func (cs filterLists) Validate() (err error) {
	var errs []error

	seen := map[string]struct{}{}
	for i, c := range cs {
		errs = validate.Append(errs, fmt.Sprintf("at index %d", i), c)

		if c == nil {
			continue
		}

		if _, ok := seen[c.UUID]; ok {
			errs = append(errs, fmt.Errorf("at index %d: uuid: %w: %q", i, errors.ErrDuplicated, c.UUID))
		}
		seen[c.UUID] = struct{}{}
	}

	return errors.Join(errs...)
}
