// Package rulesettest contains simple mocks for common interfaces and other
// test utilities.
package rulesettest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Timeout is the common timeout for tests.
const Timeout = 1 * time.Second

// Common rule texts for tests.
const (
	RulesText = "! test rules\n||blocked.example^\n||ads.example^\n"

	RulesTextComments = "! nothing here\n! at all\n"
)

// Common filter-list identifiers for tests.
var (
	ListUUID1 = uuid.MustParse("6c18f2a4-27b6-47b3-a536-8a35b95dcd02")
	ListUUID2 = uuid.MustParse("d7f9d0a8-5f5a-4f39-a8d5-6cd0a2a9c401")
)

// Common filter-list component identifiers for tests.
const (
	ComponentID1 = "cffkpbalmllkdoenhmdmpbkajipdjfam"
	ComponentID2 = "llgjaaddopeckcifdceaaadmemagkepi"
)

// WriteResourceFile writes text to a new file under dir and returns its path.
func WriteResourceFile(tb testing.TB, dir, name, text string) (fp string) {
	tb.Helper()

	fp = filepath.Join(dir, name)
	err := os.WriteFile(fp, []byte(text), 0o644)
	require.NoError(tb, err)

	return fp
}

// WriteFilterSetDir creates a versioned filter-set directory of the layout
// that component updaters produce, with the rules file filled with text, and
// returns the directory path.
func WriteFilterSetDir(tb testing.TB, root, version, rulesName, text string) (dir string) {
	tb.Helper()

	dir = filepath.Join(root, version)
	err := os.MkdirAll(dir, 0o755)
	require.NoError(tb, err)

	WriteResourceFile(tb, dir, rulesName, text)

	return dir
}
