package rulestore_test

import (
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/AdguardTeam/urlfilter/rules"
	"github.com/Libertus-Lab/shieldcore/internal/blockcache"
	"github.com/Libertus-Lab/shieldcore/internal/rulestore"
	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// Common rule texts for tests.
const (
	testRulesText = "! comment\n||blocked.example^\n"

	testAllowRulesText = "||blocked.example^\n@@||blocked.example/allowed^\n"
)

// testListID is a common rule-list identifier for tests.
const testListID = "general-block-ads"

// newLocal returns a new local store rooted in a test directory.
func newLocal(tb testing.TB) (s *rulestore.Local) {
	tb.Helper()

	s, err := rulestore.NewLocal(&rulestore.LocalConfig{
		Logger:             slogutil.NewDiscardLogger(),
		CacheManager:       blockcache.NewDefaultManager(),
		Dir:                tb.TempDir(),
		MaxRuleListSize:    1 * datasize.MB,
		ResultCacheCount:   100,
		ResultCacheEnabled: true,
	})
	require.NoError(tb, err)

	return s
}

func TestLocal_Compile(t *testing.T) {
	s := newLocal(t)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	rl, err := s.Compile(ctx, testListID, testRulesText)
	require.NoError(t, err)
	require.NotNil(t, rl)

	assert.Equal(t, testListID, rl.ID())
	assert.Equal(t, 1, rl.RulesCount())

	assert.True(t, rl.Match(
		"https://blocked.example/script.js",
		"https://page.example/",
		rules.TypeScript,
	))
	assert.False(t, rl.Match(
		"https://other.example/script.js",
		"https://page.example/",
		rules.TypeScript,
	))
}

func TestLocal_Compile_noRules(t *testing.T) {
	s := newLocal(t)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	rl, err := s.Compile(ctx, testListID, "! only a comment\n")
	require.NoError(t, err)

	assert.Nil(t, rl)

	// Nothing must be persisted.
	_, ok, err := s.Get(ctx, testListID)
	require.NoError(t, err)

	assert.False(t, ok)
}

func TestLocal_Get(t *testing.T) {
	s := newLocal(t)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	_, ok, err := s.Get(ctx, testListID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Compile(ctx, testListID, testRulesText)
	require.NoError(t, err)

	rl, ok, err := s.Get(ctx, testListID)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 1, rl.RulesCount())
	assert.True(t, rl.Match(
		"https://blocked.example/",
		"https://page.example/",
		rules.TypeDocument,
	))
}

func TestLocal_IDs_Remove(t *testing.T) {
	const otherID = "general-block-trackers"

	s := newLocal(t)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	ids, err := s.IDs(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	_, err = s.Compile(ctx, testListID, testRulesText)
	require.NoError(t, err)

	_, err = s.Compile(ctx, otherID, testRulesText)
	require.NoError(t, err)

	ids, err = s.IDs(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{testListID, otherID}, ids)

	err = s.Remove(ctx, testListID)
	require.NoError(t, err)

	ids, err = s.IDs(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{otherID}, ids)

	// Removing an absent rule list is a no-op.
	err = s.Remove(ctx, testListID)
	assert.NoError(t, err)
}

func TestRuleList_Match_allowlist(t *testing.T) {
	s := newLocal(t)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	rl, err := s.Compile(ctx, testListID, testAllowRulesText)
	require.NoError(t, err)
	require.NotNil(t, rl)

	assert.True(t, rl.Match(
		"https://blocked.example/other",
		"https://page.example/",
		rules.TypeOther,
	))
	assert.False(t, rl.Match(
		"https://blocked.example/allowed",
		"https://page.example/",
		rules.TypeOther,
	))

	// The second match of the same request must come from the cache and
	// produce the same result.
	assert.True(t, rl.Match(
		"https://blocked.example/other",
		"https://page.example/",
		rules.TypeOther,
	))
}
