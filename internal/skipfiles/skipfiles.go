// Package skipfiles implements the blackbox manager (spec.md §4.G): an
// ordered list of glob rules deciding whether the engine should suppress
// pauses within a given source. Grounded directly on
// internal/engine/matcher.go's gobwas/glob compilation and
// internal/engine/rules.go's ordered-list-with-toggle-merge shape,
// adapted from "match a tool call" to "match a source path or URL".
package skipfiles

import "github.com/gobwas/glob"

// Rule is one `{glob, skip?}` entry. Skip is a pointer so a rule can
// explicitly clear an earlier match (spec.md §4.G: "negative rules
// permitted") without that being indistinguishable from "no opinion".
type Rule struct {
	Pattern string
	Skip    *bool
}

type compiledRule struct {
	g    glob.Glob
	skip bool
}

// Manager evaluates should_skip (spec.md §4.G) against a compiled,
// ordered rule list and tracks which source adapters are currently
// blackboxed on the engine side, so callers can detect and correct a
// mismatch.
type Manager struct {
	rules     []compiledRule
	blackbox  map[string]bool // path/URL -> last computed skip? decision
}

// NewManager compiles rules in the given order. An invalid glob pattern
// is dropped (logged by the caller) rather than failing the whole list —
// one bad skipFiles entry in a launch config should not disable
// blackboxing entirely.
func NewManager(rules []Rule) (*Manager, []error) {
	m := &Manager{blackbox: make(map[string]bool)}
	var errs []error
	for _, r := range rules {
		g, err := glob.Compile(r.Pattern, '/')
		if err != nil {
			errs = append(errs, err)
			continue
		}
		skip := true
		if r.Skip != nil {
			skip = *r.Skip
		}
		m.rules = append(m.rules, compiledRule{g: g, skip: skip})
	}
	return m, errs
}

// ShouldSkip implements spec.md §4.G's should_skip: the last matching
// rule wins; ok is false when no rule expresses an opinion.
func (m *Manager) ShouldSkip(path string) (skip bool, ok bool) {
	for i := len(m.rules) - 1; i >= 0; i-- {
		if m.rules[i].g.Match(path) {
			return m.rules[i].skip, true
		}
	}
	return false, false
}

// MatchKey is the subset of a source adapter's identity should_skip
// consults, in priority order (spec.md §4.G: "path else generated-URL
// else URL, with query strings stripped").
type MatchKey struct {
	Path         string
	GeneratedURL string
	URL          string
}

// Decide resolves a source adapter's skip? decision by trying Path, then
// GeneratedURL, then URL, stripping any query string from whichever
// candidate is tried. Returns false, false if no candidate matches and no
// rule expresses an opinion, meaning the engine's existing blackbox state
// for this source is left alone.
func (m *Manager) Decide(key MatchKey) (skip bool, ok bool) {
	for _, candidate := range []string{key.Path, key.GeneratedURL, key.URL} {
		if candidate == "" {
			continue
		}
		if skip, ok := m.ShouldSkip(stripQuery(candidate)); ok {
			return skip, true
		}
	}
	return false, false
}

// Reconcile records the computed decision for identity and reports
// whether it disagrees with the engine's currently known blackbox state
// for that source, so the caller knows whether to call Source.SetBlackbox
// (spec.md §4.G: "if the adapter's current blackbox state disagrees, flip
// it and propagate").
func (m *Manager) Reconcile(identity string, currentlyBlackboxed bool, decided bool, decidedOK bool) (flip bool) {
	if !decidedOK {
		return false
	}
	m.blackbox[identity] = decided
	return decided != currentlyBlackboxed
}

func stripQuery(s string) string {
	for i, c := range s {
		if c == '?' || c == '#' {
			return s[:i]
		}
	}
	return s
}
