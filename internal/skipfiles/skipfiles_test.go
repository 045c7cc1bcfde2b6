package skipfiles

import "testing"

func TestShouldSkipLastMatchWins(t *testing.T) {
	no := false
	m, errs := NewManager([]Rule{
		{Pattern: "**/lib/**"},
		{Pattern: "**/lib/vendor/**", Skip: &no},
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected compile errors: %v", errs)
	}

	if skip, ok := m.ShouldSkip("/app/lib/a.js"); !ok || !skip {
		t.Fatalf("lib/a.js: got skip=%v ok=%v, want true/true", skip, ok)
	}
	if skip, ok := m.ShouldSkip("/app/lib/vendor/x.js"); !ok || skip {
		t.Fatalf("lib/vendor/x.js: got skip=%v ok=%v, want false/true (negative rule wins)", skip, ok)
	}
	if _, ok := m.ShouldSkip("/app/src/main.js"); ok {
		t.Fatalf("src/main.js: expected no opinion")
	}
}

func TestNewManagerDropsInvalidPatternOnly(t *testing.T) {
	m, errs := NewManager([]Rule{
		{Pattern: "["},
		{Pattern: "**/lib/**"},
	})
	if len(errs) != 1 {
		t.Fatalf("expected exactly one compile error, got %d", len(errs))
	}
	if skip, ok := m.ShouldSkip("/app/lib/a.js"); !ok || !skip {
		t.Fatalf("valid rule should still be active despite the dropped one")
	}
}

func TestDecidePrefersPathThenGeneratedURLThenURL(t *testing.T) {
	m, _ := NewManager([]Rule{{Pattern: "**/lib/**"}})

	skip, ok := m.Decide(MatchKey{Path: "/app/lib/a.js", GeneratedURL: "http://x/src/a.js"})
	if !ok || !skip {
		t.Fatalf("expected path candidate to match")
	}

	skip, ok = m.Decide(MatchKey{GeneratedURL: "http://x/lib/a.js", URL: "http://x/src/a.js"})
	if !ok || !skip {
		t.Fatalf("expected generated-URL candidate to match when path is absent")
	}

	if _, ok := m.Decide(MatchKey{URL: "http://x/app.js"}); ok {
		t.Fatalf("expected no opinion when nothing matches")
	}
}

func TestDecideStripsQueryString(t *testing.T) {
	m, _ := NewManager([]Rule{{Pattern: "**/lib/a.js"}})
	skip, ok := m.Decide(MatchKey{URL: "http://x/lib/a.js?cachebust=123"})
	if !ok || !skip {
		t.Fatalf("expected query string to be stripped before matching, got skip=%v ok=%v", skip, ok)
	}
}

func TestReconcileFlipsOnlyOnDisagreement(t *testing.T) {
	m, _ := NewManager([]Rule{{Pattern: "**/lib/**"}})

	if flip := m.Reconcile("a1", false, true, true); !flip {
		t.Fatalf("expected flip: engine says not-blackboxed, decision says skip")
	}
	if flip := m.Reconcile("a2", true, true, true); flip {
		t.Fatalf("expected no flip: engine and decision agree")
	}
	if flip := m.Reconcile("a3", true, false, false); flip {
		t.Fatalf("expected no flip when the decision has no opinion")
	}
}
