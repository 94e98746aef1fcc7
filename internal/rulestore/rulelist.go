package rulestore

import (
	"fmt"
	"hash/maphash"
	"path"
	"strings"

	"github.com/AdguardTeam/urlfilter"
	"github.com/AdguardTeam/urlfilter/filterlist"
	"github.com/AdguardTeam/urlfilter/rules"
	"github.com/Libertus-Lab/shieldcore/internal/blockcache"
)

// RuleList is a compiled, matchable content-blocking rule set.  Outside of
// this package it should be treated as an opaque artifact produced by the
// store's compile step.
type RuleList struct {
	// engine is the compiled network-rule matching engine.
	engine *urlfilter.Engine

	// cache contains cached results of matching.
	cache resultCache

	// id is the store identifier of this rule list.
	id string

	// rulesCount is the number of rules translated into the engine.
	rulesCount int
}

// resultCache is a convenient alias for the match-result cache of a rule
// list.
type resultCache = blockcache.Interface[matchKey, *matchItem]

// matchKey is the cache key type of a match-result cache.
type matchKey uint64

// matchItem is an item of a match-result cache.
type matchItem struct {
	// rawURL is the cached request URL for key collision checks.
	rawURL string

	// blocked is the cached match result.
	blocked bool
}

// hashSeed is the seed used by all match-key hashes.
var hashSeed = maphash.MakeSeed()

// newMatchKey produces a match-cache key from the request parameters.
func newMatchKey(rawURL, sourceURL string, typ rules.RequestType) (k matchKey) {
	h := &maphash.Hash{}
	h.SetSeed(hashSeed)

	_, _ = h.WriteString(rawURL)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(sourceURL)

	var buf [4]byte
	buf[0] = byte(typ)
	buf[1] = byte(typ >> 8)
	buf[2] = byte(typ >> 16)
	buf[3] = byte(typ >> 24)
	_, _ = h.Write(buf[:])

	return matchKey(h.Sum64())
}

// newResultCache returns a match-result cache with the given element count,
// registered in m under the rule-list id.  If enabled is false, it returns a
// cache that does nothing.
func newResultCache(
	m blockcache.Manager,
	id string,
	count int,
	enabled bool,
) (cache resultCache) {
	if !enabled {
		return blockcache.Empty[matchKey, *matchItem]{}
	}

	c := blockcache.NewLRU[matchKey, *matchItem](&blockcache.LRUConfig{
		Count: count,
	})
	m.Add(path.Join(cachePrefixRuleList, id), c)

	return c
}

// cachePrefixRuleList is the cache-manager prefix of rule-list match-result
// caches.
const cachePrefixRuleList = "rulelists"

// newRuleList translates text into a rule list with the given id.  If no
// rules survive the translation, it returns nil rl and nil err.
func newRuleList(id, text string, cache resultCache) (rl *RuleList, err error) {
	n := countRules(text)
	if n == 0 {
		return nil, nil
	}

	lists := []filterlist.Interface{
		filterlist.NewBytes(&filterlist.BytesConfig{
			RulesText:      []byte(text),
			IgnoreCosmetic: true,
		}),
	}

	s, err := filterlist.NewRuleStorage(lists)
	if err != nil {
		return nil, fmt.Errorf("compiling storage for rule list %q: %w", id, err)
	}

	return &RuleList{
		engine:     urlfilter.NewEngine(s),
		cache:      cache,
		id:         id,
		rulesCount: n,
	}, nil
}

// countRules returns the number of lines of text that are neither empty nor
// comments.
func countRules(text string) (n int) {
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '!' || line[0] == '[' {
			continue
		}

		n++
	}

	return n
}

// ID returns the store identifier of this rule list.
func (rl *RuleList) ID() (id string) {
	return rl.id
}

// RulesCount returns the number of rules translated into the engine.
func (rl *RuleList) RulesCount() (n int) {
	return rl.rulesCount
}

// Match reports whether a request for rawURL of type typ made by the page at
// sourceURL should be blocked.  Allowlisting rules within the same rule list
// override its blocking rules.
func (rl *RuleList) Match(rawURL, sourceURL string, typ rules.RequestType) (blocked bool) {
	var key matchKey

	// Don't waste resources on computing the cache key if the cache is not
	// enabled.
	_, noCache := rl.cache.(blockcache.Empty[matchKey, *matchItem])
	if !noCache {
		key = newMatchKey(rawURL, sourceURL, typ)
		if item, ok := rl.cache.Get(key); ok && item.rawURL == rawURL {
			return item.blocked
		}
	}

	res := rl.engine.MatchRequest(rules.NewRequest(rawURL, sourceURL, typ))
	if nr := res.GetBasicResult(); nr != nil {
		blocked = !nr.Whitelist
	}

	if !noCache {
		rl.cache.Set(key, &matchItem{
			rawURL:  rawURL,
			blocked: blocked,
		})
	}

	return blocked
}
