// Package lifecycle coordinates externally updated filter lists: it owns one
// background task per registered list, consumes the update stream of the
// list's component, and drives the results into the rule-set registry and
// compiler.
package lifecycle

import (
	"context"

	"github.com/google/uuid"
)

// Filter-set folder layout.  An update is delivered as a folder named by the
// version string; the marker file distinguishes the current layout from the
// legacy one, and the rules file holds the raw filter text.
const (
	// MarkerFileName is the name of the layout marker file.
	MarkerFileName = "manifest.json"

	// RulesFileName is the name of the raw rules file.
	RulesFileName = "list.txt"
)

// FilterList is an externally supplied filter list.  Its lifecycle is owned
// by the settings collaborator; this package only reads it.
type FilterList struct {
	// ComponentID is the identifier of the component that delivers updates
	// for this list.
	ComponentID string

	// UUID is the stable identity of the list.
	UUID uuid.UUID

	// Order is the relative priority of the list among other filter lists.
	Order int

	// Enabled is the user-facing toggle state at the time of the call.
	Enabled bool
}

// Source is the external update source.  Subscribe returns a stream of
// folder paths for the given component; an empty string on the stream means
// an update was attempted but is unavailable and must be ignored.  The source
// must stop sending and release the subscription when ctx is cancelled.
type Source interface {
	Subscribe(ctx context.Context, componentID string) (updates <-chan string, err error)
}

// Lists reports the current toggle state of filter lists.  It is queried
// again after every update, since the user may have flipped the toggle while
// the update was being processed.
type Lists interface {
	IsEnabled(id uuid.UUID) (ok bool)
}

// Metrics is an interface for collecting filter-list update statistics.
type Metrics interface {
	// ObserveLegacySkip records an update that was ignored because its folder
	// had the legacy layout.
	ObserveLegacySkip(ctx context.Context, componentID string)

	// ObserveUpdate records a successfully applied update.  recompiled is
	// true when the update caused a recompile rather than a cached load.
	ObserveUpdate(ctx context.Context, componentID string, recompiled bool)
}

// EmptyMetrics is a [Metrics] implementation that does nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// ObserveLegacySkip implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveLegacySkip(_ context.Context, _ string) {}

// ObserveUpdate implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveUpdate(_ context.Context, _ string, _ bool) {}
