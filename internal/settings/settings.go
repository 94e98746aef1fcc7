// Package settings is the boundary between user-facing shield preferences and
// the rule-set subsystem.  Its queries are derived synchronously from already
// cached state and never compile anything.
package settings

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/Libertus-Lab/shieldcore/internal/lifecycle"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset/compiler"
	"github.com/Libertus-Lab/shieldcore/internal/rulestore"
	"github.com/google/uuid"
)

// BrowsingPrefs are the per-context shield flags of the built-in blocking
// categories.
type BrowsingPrefs struct {
	// BlockAds enables the ad-blocking category.
	BlockAds bool

	// BlockTrackers enables the tracker-blocking category.
	BlockTrackers bool

	// BlockCookies enables the cookie-blocking category.
	BlockCookies bool

	// BlockImages enables the image-blocking category.
	BlockImages bool
}

// ManagerConfig is the configuration structure of a settings manager.
type ManagerConfig struct {
	// Logger is used for logging the operation of the manager.  It must not
	// be nil.
	Logger *slog.Logger

	// Compiler serves the compiled rule sets.  It must not be nil.
	Compiler *compiler.Compiler
}

// Manager holds the table of known filter lists and answers which rule types
// and rule sets are active for a given set of preferences.  All methods are
// safe for concurrent use.
type Manager struct {
	logger   *slog.Logger
	compiler *compiler.Compiler

	// mu protects lists.
	mu *sync.Mutex

	// lists maps filter-list UUIDs to their current descriptions.
	lists map[uuid.UUID]lifecycle.FilterList
}

// NewManager returns a new settings manager.  c must not be nil.
func NewManager(c *ManagerConfig) (m *Manager) {
	return &Manager{
		logger:   c.Logger,
		compiler: c.Compiler,
		mu:       &sync.Mutex{},
		lists:    map[uuid.UUID]lifecycle.FilterList{},
	}
}

// type check
var _ lifecycle.Lists = (*Manager)(nil)

// SetFilterList upserts the description of a filter list.  fl must not be
// nil; the manager keeps a copy.
func (m *Manager) SetFilterList(fl *lifecycle.FilterList) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists[fl.UUID] = *fl
}

// RemoveFilterList removes the description of the filter list with the given
// UUID, if any.
func (m *Manager) RemoveFilterList(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.lists, id)
}

// FilterLists returns copies of all known filter lists, sorted by their
// relative order.
func (m *Manager) FilterLists() (fls []*lifecycle.FilterList) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedLists()
}

// IsEnabled implements the [lifecycle.Lists] interface for *Manager.
func (m *Manager) IsEnabled(id uuid.UUID) (ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fl, ok := m.lists[id]

	return ok && fl.Enabled
}

// EnabledRuleTypes returns the rule-type IDs active under prefs: the enabled
// built-in categories in their canonical order followed by the enabled filter
// lists in their relative order.
func (m *Manager) EnabledRuleTypes(prefs *BrowsingPrefs) (ids []ruleset.ID) {
	for _, kind := range ruleset.GeneralKinds() {
		if prefsEnableKind(prefs, kind) {
			ids = append(ids, ruleset.NewGeneralID(kind))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, fl := range m.sortedLists() {
		if fl.Enabled {
			ids = append(ids, ruleset.NewFilterListID(fl.UUID))
		}
	}

	return ids
}

// RuleSets returns the compiled rule sets active under prefs.  Rule types
// that have no compiled rule set yet, or whose last compile failed, are
// simply absent; the query never triggers a compile.
func (m *Manager) RuleSets(prefs *BrowsingPrefs) (ruleSets []*rulestore.RuleList) {
	return m.compiler.RuleSets(m.EnabledRuleTypes(prefs))
}

// sortedLists returns copies of the known filter lists sorted by order and,
// within equal orders, by UUID.  m.mu must be locked.
func (m *Manager) sortedLists() (fls []*lifecycle.FilterList) {
	fls = make([]*lifecycle.FilterList, 0, len(m.lists))
	for _, fl := range m.lists {
		fls = append(fls, &fl)
	}

	slices.SortFunc(fls, func(a, b *lifecycle.FilterList) (res int) {
		if a.Order != b.Order {
			return a.Order - b.Order
		}

		return strings.Compare(a.UUID.String(), b.UUID.String())
	})

	return fls
}

// prefsEnableKind reports whether prefs enable the built-in category kind.
func prefsEnableKind(prefs *BrowsingPrefs, kind ruleset.GeneralKind) (ok bool) {
	switch kind {
	case ruleset.KindBlockAds:
		return prefs.BlockAds
	case ruleset.KindBlockTrackers:
		return prefs.BlockTrackers
	case ruleset.KindBlockCookies:
		return prefs.BlockCookies
	case ruleset.KindBlockImages:
		return prefs.BlockImages
	default:
		return false
	}
}
