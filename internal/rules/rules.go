// Package rules decides whether conditional manifest entries apply to a platform.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/quasar/mcinstall/internal/core"
)

// Mode selects how a rule list is folded into a single decision.
type Mode int

const (
	// ModeLegacy ORs matching rules into the result, and a rule naming a
	// different OS resets the result to false. A later rule for another OS
	// can therefore erase an earlier allow. Arch, version and feature
	// mismatches have no effect.
	ModeLegacy Mode = iota
	// ModeAccumulate ORs matching rules into the result; non-matching rules
	// have no effect.
	ModeAccumulate
	// ModeLastMatch lets the last matching rule decide, so disallow wins
	// when it comes after an allow.
	ModeLastMatch
)

var modeNames = map[Mode]string{
	ModeLegacy:     "legacy",
	ModeAccumulate: "accumulate",
	ModeLastMatch:  "last-match",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode converts a configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return ModeLegacy, fmt.Errorf("unknown rule mode %q (want legacy, accumulate or last-match)", s)
}

// Evaluate folds rules against the platform. An empty list yields false;
// callers deciding library inclusion should use LibraryApplies.
func Evaluate(rules []core.Rule, p core.Platform, mode Mode) bool {
	return evaluate(rules, p, nil, mode)
}

// EvaluateFeatures is Evaluate for argument rules, where features may be
// declared. A rule's features match when every declared feature has the
// same value in enabled.
func EvaluateFeatures(rules []core.Rule, p core.Platform, enabled map[string]bool, mode Mode) bool {
	if enabled == nil {
		enabled = map[string]bool{}
	}
	return evaluate(rules, p, enabled, mode)
}

// LibraryApplies reports whether a library is part of the install.
// Libraries without rules always apply.
func LibraryApplies(lib *core.Library, p core.Platform, mode Mode) bool {
	if len(lib.Rules) == 0 {
		return true
	}
	return Evaluate(lib.Rules, p, mode)
}

func evaluate(rules []core.Rule, p core.Platform, features map[string]bool, mode Mode) bool {
	allowed := false
	for _, rule := range rules {
		ruleAllows := rule.Action == "allow"
		matched := matches(rule, p, features)

		switch mode {
		case ModeLastMatch:
			if matched {
				allowed = ruleAllows
			}
		case ModeAccumulate:
			if matched {
				allowed = allowed || ruleAllows
			}
		default:
			if matched {
				allowed = allowed || ruleAllows
			} else if otherOS(rule, p) {
				allowed = false
			}
		}
	}
	return allowed
}

// otherOS reports whether the rule is keyed to an OS other than p's
func otherOS(rule core.Rule, p core.Platform) bool {
	if rule.OS == nil || rule.OS.Name == "" {
		return false
	}
	return core.Platform{OS: rule.OS.Name}.OSKey() != p.OSKey()
}

func matches(rule core.Rule, p core.Platform, features map[string]bool) bool {
	if len(rule.Features) > 0 {
		// library rules never carry features
		if features == nil {
			return false
		}
		for name, want := range rule.Features {
			if features[name] != want {
				return false
			}
		}
	}

	if rule.OS == nil {
		return true
	}

	if otherOS(rule, p) {
		return false
	}

	if rule.OS.Arch != "" {
		if !strings.Contains(strings.ToLower(p.Arch), strings.ToLower(rule.OS.Arch)) {
			return false
		}
	}

	if rule.OS.Version != "" && p.Version != "" {
		re, err := regexp.Compile(rule.OS.Version)
		if err != nil || !re.MatchString(p.Version) {
			return false
		}
	}

	return true
}
