// Package rulestore contains the durable rule-list store interface along with
// its local directory-backed and Redis-backed implementations.  The store
// persists the translated text of compiled rule sets keyed by the stable
// rule-type identifier, so that previously compiled lists can be brought back
// without going through the full compile pipeline again.
package rulestore

import (
	"context"
)

// Interface is the durable rule-list store interface.  Implementations must
// be safe for concurrent use.
type Interface interface {
	// IDs returns the identifiers of all persisted rule lists.
	IDs(ctx context.Context) (ids []string, err error)

	// Get returns the rule list persisted under id without recompiling it.
	// ok is false when there is no entry for id.
	Get(ctx context.Context, id string) (rl *RuleList, ok bool, err error)

	// Compile translates the raw filter text into a matchable rule list,
	// persists it under id, and returns it.  If no rules survive the
	// translation, Compile returns nil rl and nil err, and nothing is
	// persisted.
	Compile(ctx context.Context, id string, text string) (rl *RuleList, err error)

	// Remove deletes the rule list persisted under id, if any.
	Remove(ctx context.Context, id string) (err error)
}

// Empty is an [Interface] implementation that persists nothing.
type Empty struct{}

// type check
var _ Interface = Empty{}

// IDs implements the [Interface] interface for Empty.  ids is always empty.
func (Empty) IDs(_ context.Context) (ids []string, err error) {
	return nil, nil
}

// Get implements the [Interface] interface for Empty.  ok is always false.
func (Empty) Get(_ context.Context, _ string) (rl *RuleList, ok bool, err error) {
	return nil, false, nil
}

// Compile implements the [Interface] interface for Empty.  rl is always nil.
func (Empty) Compile(_ context.Context, _ string, _ string) (rl *RuleList, err error) {
	return nil, nil
}

// Remove implements the [Interface] interface for Empty.
func (Empty) Remove(_ context.Context, _ string) (err error) {
	return nil
}
