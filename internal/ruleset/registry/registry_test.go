package registry_test

import (
	"testing"

	"github.com/Libertus-Lab/shieldcore/internal/ruleset"
	"github.com/Libertus-Lab/shieldcore/internal/ruleset/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Common resources for tests.
var (
	testResV1 = ruleset.Resource{
		Path:   "/cache/list/1.0.100/list.txt",
		Source: ruleset.NewDownloadedSource("1.0.100"),
	}

	testResV2 = ruleset.Resource{
		Path:   "/cache/list/1.0.101/list.txt",
		Source: ruleset.NewDownloadedSource("1.0.101"),
	}
)

// testID is a common rule-type ID for tests.
var testID = ruleset.NewGeneralID(ruleset.KindBlockAds)

func TestRegistry(t *testing.T) {
	r := registry.New()

	assert.True(t, r.IsSynced())
	assert.Empty(t, r.Pending())

	r.SetEnabled(testResV1, testID)

	require.False(t, r.IsSynced())
	assert.Equal(t, map[ruleset.ID]ruleset.Resource{testID: testResV1}, r.Pending())

	r.MarkAttempted(testID)

	assert.True(t, r.IsSynced())
	assert.Empty(t, r.Pending())

	// The same resource again must not become pending.
	r.SetEnabled(testResV1, testID)
	assert.True(t, r.IsSynced())

	// A different resource for the same ID must.
	r.SetEnabled(testResV2, testID)

	require.False(t, r.IsSynced())
	assert.Equal(t, map[ruleset.ID]ruleset.Resource{testID: testResV2}, r.Pending())
}

func TestRegistry_RemoveEnabled(t *testing.T) {
	r := registry.New()

	r.SetEnabled(testResV1, testID)
	r.RemoveEnabled(testID)

	assert.True(t, r.IsSynced())
	assert.Empty(t, r.Pending())
	assert.Empty(t, r.Enabled())

	// Removing an absent entry is a no-op.
	r.RemoveEnabled(testID)
	assert.True(t, r.IsSynced())
}

func TestRegistry_MarkAttempted_lastWriterWins(t *testing.T) {
	r := registry.New()

	r.SetEnabled(testResV1, testID)

	// Simulate a newer resource arriving after a compile pass snapshotted its
	// pending work but before it marked the attempt.  The newer resource wins
	// and must not be reported as pending again.
	r.SetEnabled(testResV2, testID)
	r.MarkAttempted(testID)

	assert.True(t, r.IsSynced())
	assert.Empty(t, r.Pending())
}

func TestRegistry_MarkAttempted_disabled(t *testing.T) {
	r := registry.New()

	r.SetEnabled(testResV1, testID)
	r.RemoveEnabled(testID)

	// Marking an attempt for an ID that is no longer enabled must not
	// resurrect it.
	r.MarkAttempted(testID)

	assert.True(t, r.IsSynced())
	assert.Empty(t, r.Enabled())

	// Re-enabling afterwards must make it pending again.
	r.SetEnabled(testResV1, testID)
	assert.False(t, r.IsSynced())
}
