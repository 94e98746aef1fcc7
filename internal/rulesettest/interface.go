package rulesettest

import (
	"context"
	"time"

	"github.com/Libertus-Lab/shieldcore/internal/errcoll"
	"github.com/Libertus-Lab/shieldcore/internal/lifecycle"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset"
	"github.com/Libertus-Lab/shieldcore/internal/rulestore"
	"github.com/google/uuid"
)

// Interface Mocks
//
// Keep entities within a package in alphabetic order.

// Package errcoll

// type check
var _ errcoll.Interface = (*ErrorCollector)(nil)

// ErrorCollector is an [errcoll.Interface] for tests.
type ErrorCollector struct {
	OnCollect func(ctx context.Context, err error)
}

// NewErrorCollector returns a new *ErrorCollector all the methods of which
// panic.
func NewErrorCollector() (c *ErrorCollector) {
	return &ErrorCollector{
		OnCollect: func(_ context.Context, err error) {
			panic("unexpected call to ErrorCollector.Collect: " + err.Error())
		},
	}
}

// Collect implements the [errcoll.Interface] interface for *ErrorCollector.
func (c *ErrorCollector) Collect(ctx context.Context, err error) {
	c.OnCollect(ctx, err)
}

// Package lifecycle

// type check
var _ lifecycle.Lists = (*FilterLists)(nil)

// FilterLists is a [lifecycle.Lists] for tests.
type FilterLists struct {
	OnIsEnabled func(id uuid.UUID) (ok bool)
}

// IsEnabled implements the [lifecycle.Lists] interface for *FilterLists.
func (l *FilterLists) IsEnabled(id uuid.UUID) (ok bool) {
	return l.OnIsEnabled(id)
}

// type check
var _ lifecycle.Metrics = (*LifecycleMetrics)(nil)

// LifecycleMetrics is a [lifecycle.Metrics] for tests.
type LifecycleMetrics struct {
	OnObserveLegacySkip func(ctx context.Context, componentID string)
	OnObserveUpdate     func(ctx context.Context, componentID string, recompiled bool)
}

// ObserveLegacySkip implements the [lifecycle.Metrics] interface for
// *LifecycleMetrics.
func (m *LifecycleMetrics) ObserveLegacySkip(ctx context.Context, componentID string) {
	m.OnObserveLegacySkip(ctx, componentID)
}

// ObserveUpdate implements the [lifecycle.Metrics] interface for
// *LifecycleMetrics.
func (m *LifecycleMetrics) ObserveUpdate(
	ctx context.Context,
	componentID string,
	recompiled bool,
) {
	m.OnObserveUpdate(ctx, componentID, recompiled)
}

// type check
var _ lifecycle.Source = (*UpdateSource)(nil)

// UpdateSource is a [lifecycle.Source] for tests.
type UpdateSource struct {
	OnSubscribe func(ctx context.Context, componentID string) (updates <-chan string, err error)
}

// Subscribe implements the [lifecycle.Source] interface for *UpdateSource.
func (s *UpdateSource) Subscribe(
	ctx context.Context,
	componentID string,
) (updates <-chan string, err error) {
	return s.OnSubscribe(ctx, componentID)
}

// Package ruleset

// type check
var _ ruleset.Metrics = (*RuleSetMetrics)(nil)

// RuleSetMetrics is a [ruleset.Metrics] for tests.
type RuleSetMetrics struct {
	OnSetRuleSetStatus func(
		ctx context.Context,
		key string,
		updTime time.Time,
		ruleCount int,
		err error,
	)
}

// SetRuleSetStatus implements the [ruleset.Metrics] interface for
// *RuleSetMetrics.
func (m *RuleSetMetrics) SetRuleSetStatus(
	ctx context.Context,
	key string,
	updTime time.Time,
	ruleCount int,
	err error,
) {
	m.OnSetRuleSetStatus(ctx, key, updTime, ruleCount, err)
}

// Package rulestore

// type check
var _ rulestore.Interface = (*Store)(nil)

// Store is a [rulestore.Interface] for tests.
type Store struct {
	OnIDs     func(ctx context.Context) (ids []string, err error)
	OnGet     func(ctx context.Context, id string) (rl *rulestore.RuleList, ok bool, err error)
	OnCompile func(ctx context.Context, id, text string) (rl *rulestore.RuleList, err error)
	OnRemove  func(ctx context.Context, id string) (err error)
}

// IDs implements the [rulestore.Interface] interface for *Store.
func (s *Store) IDs(ctx context.Context) (ids []string, err error) {
	return s.OnIDs(ctx)
}

// Get implements the [rulestore.Interface] interface for *Store.
func (s *Store) Get(
	ctx context.Context,
	id string,
) (rl *rulestore.RuleList, ok bool, err error) {
	return s.OnGet(ctx, id)
}

// Compile implements the [rulestore.Interface] interface for *Store.
func (s *Store) Compile(
	ctx context.Context,
	id string,
	text string,
) (rl *rulestore.RuleList, err error) {
	return s.OnCompile(ctx, id, text)
}

// Remove implements the [rulestore.Interface] interface for *Store.
func (s *Store) Remove(ctx context.Context, id string) (err error) {
	return s.OnRemove(ctx, id)
}
