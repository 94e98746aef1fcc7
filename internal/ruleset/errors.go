package ruleset

import "github.com/AdguardTeam/golibs/errors"

// Compile failures cached by the rule compiler.  They are never fatal to the
// caller: a failed rule type simply contributes no rules to active blocking
// until a new resource is enabled for it.
const (
	// ErrFileNotFound is returned when the resource file cannot be read.
	ErrFileNotFound errors.Error = "resource file not found"

	// ErrInvalidResourceText is returned when the resource file contents
	// cannot be decoded as UTF-8 text.
	ErrInvalidResourceText errors.Error = "invalid resource text"

	// ErrNoRuleSet is returned when the rule-list store's compile step
	// produces no rule set for the given resource.
	ErrNoRuleSet errors.Error = "no rule set produced"
)
