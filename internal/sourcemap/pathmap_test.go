package sourcemap

import "testing"

func TestPathMapperLongestPrefix(t *testing.T) {
	m := CompilePathMappings([]PathMapping{
		{URLPattern: "webpack:///", PathPrefix: "/repo/"},
		{URLPattern: "webpack:///./src/", PathPrefix: "/repo/src/"},
	})

	path, ok := m.Resolve("webpack:///./src/index.js")
	if !ok {
		t.Fatalf("expected a match")
	}
	if path != "/repo/src/index.js" {
		t.Fatalf("expected the more specific mapping to win, got %q", path)
	}

	path, ok = m.Resolve("webpack:///other/file.js")
	if !ok {
		t.Fatalf("expected a match")
	}
	if path != "/repo/other/file.js" {
		t.Fatalf("expected the general mapping to apply, got %q", path)
	}
}

func TestPathMapperNoMatch(t *testing.T) {
	m := CompilePathMappings([]PathMapping{{URLPattern: "moz-extension://abc/", PathPrefix: "/ext/"}})
	if _, ok := m.Resolve("https://example.com/app.js"); ok {
		t.Fatalf("expected no match for an unrelated URL")
	}
}

func TestPathMapperFirstRegisteredWinsOnDuplicatePrefix(t *testing.T) {
	m := CompilePathMappings([]PathMapping{
		{URLPattern: "webpack:///", PathPrefix: "/first/"},
		{URLPattern: "webpack:///", PathPrefix: "/second/"},
	})
	path, ok := m.Resolve("webpack:///x.js")
	if !ok || path != "/first/x.js" {
		t.Fatalf("expected the first-registered mapping to win, got %q (ok=%v)", path, ok)
	}
}

func TestDefaultPathMappings(t *testing.T) {
	mappings := DefaultPathMappings("/tmp/ext")
	m := CompilePathMappings(mappings)
	if path, ok := m.Resolve("moz-extension://background.js"); !ok || path != "/tmp/ext/background.js" {
		t.Fatalf("expected default extension mapping, got %q (ok=%v)", path, ok)
	}
	if _, ok := m.Resolve("webpack:///./index.js"); !ok {
		t.Fatalf("expected default webpack mapping to match")
	}
}
