package sourcemap

import (
	"context"
	"testing"
)

// trivialSourceMap maps every generated position back to line 1, column 0
// of foo.js — enough to exercise resolution plumbing without needing a
// real bundler's output.
const trivialSourceMap = `{
	"version": 3,
	"file": "out.js",
	"sources": ["foo.js"],
	"names": [],
	"mappings": "AAAA"
}`

func fetchFromMap(contents map[string][]byte) Fetcher {
	return func(_ context.Context, url string) ([]byte, error) {
		if b, ok := contents[url]; ok {
			return b, nil
		}
		return nil, errNotFound
	}
}

func TestManagerResolvesSourceMapLazily(t *testing.T) {
	mapper := CompilePathMappings(nil)
	fetch := fetchFromMap(map[string][]byte{"out.js.map": []byte(trivialSourceMap)})
	m := NewManager(fetch, mapper, nil, nil)

	sa := m.RegisterSource("source1", "https://example.com/out.js")
	if sa.OriginalURL != sa.GeneratedURL {
		t.Fatalf("expected OriginalURL to default to the generated URL before resolution")
	}

	loc, ok := m.FindOriginalLocation(context.Background(), sa, "out.js.map", []byte("//# irrelevant"), 1, 0)
	if !ok {
		t.Fatalf("expected a resolved original location")
	}
	if loc.URL != "foo.js" {
		t.Fatalf("expected original source foo.js, got %q", loc.URL)
	}
}

func TestManagerCachesDecodedMap(t *testing.T) {
	mapper := CompilePathMappings(nil)
	fetchCount := 0
	fetch := func(_ context.Context, url string) ([]byte, error) {
		fetchCount++
		return []byte(trivialSourceMap), nil
	}
	m := NewManager(fetch, mapper, nil, nil)

	sa := m.RegisterSource("source1", "https://example.com/out.js")
	if _, ok := m.FindOriginalLocation(context.Background(), sa, "out.js.map", nil, 1, 0); !ok {
		t.Fatalf("expected resolution to succeed")
	}
	if _, ok := m.FindOriginalLocation(context.Background(), sa, "out.js.map", nil, 1, 0); !ok {
		t.Fatalf("expected resolution to succeed on second call")
	}
	if fetchCount != 1 {
		t.Fatalf("expected the source-map to be fetched once and reused in-process, got %d fetches", fetchCount)
	}
}

func TestApplyToFrameLeavesUnresolvedUnchanged(t *testing.T) {
	mapper := CompilePathMappings(nil)
	m := NewManager(fetchFromMap(nil), mapper, nil, nil)
	sa := m.RegisterSource("source1", "https://example.com/out.js")

	loc := FrameLocation{URL: sa.GeneratedURL, Line: 5, Column: 2}
	out := m.ApplyToFrame(loc, sa)
	if out != loc {
		t.Fatalf("expected unresolved adapter to leave the frame location unchanged, got %+v", out)
	}
}

func TestFindGeneratedLocationReversesOriginalLine(t *testing.T) {
	mapper := CompilePathMappings(nil)
	fetch := fetchFromMap(map[string][]byte{"out.js.map": []byte(trivialSourceMap)})
	m := NewManager(fetch, mapper, nil, nil)
	sa := m.RegisterSource("source1", "https://example.com/out.js")

	loc, ok := m.FindGeneratedLocation(context.Background(), sa, "out.js.map", []byte("var x = 1;\n"), 1)
	if !ok {
		t.Fatalf("expected a resolved generated location")
	}
	if loc.Line != 1 {
		t.Fatalf("expected generated line 1, got %d", loc.Line)
	}
}

func TestFindGeneratedLocationNoSourceMap(t *testing.T) {
	mapper := CompilePathMappings(nil)
	m := NewManager(fetchFromMap(nil), mapper, nil, nil)
	sa := m.RegisterSource("source1", "https://example.com/out.js")

	if _, ok := m.FindGeneratedLocation(context.Background(), sa, "", nil, 1); ok {
		t.Fatalf("expected no resolution for a source with no source-map")
	}
}

func TestExtractSourceMappingURLRelative(t *testing.T) {
	body := []byte("var x = 1;\n//# sourceMappingURL=out.js.map\n")
	got := ExtractSourceMappingURL(body, "https://example.com/dir/out.js")
	want := "https://example.com/dir/out.js.map"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExtractSourceMappingURLAbsent(t *testing.T) {
	if got := ExtractSourceMappingURL([]byte("var x = 1;\n"), "https://example.com/out.js"); got != "" {
		t.Fatalf("expected empty string when no sourceMappingURL comment is present, got %q", got)
	}
}

func TestLookupByURLResolvesRegisteredAdapter(t *testing.T) {
	m := NewManager(fetchFromMap(nil), CompilePathMappings(nil), nil, nil)
	sa := m.RegisterSource("source1", "https://example.com/out.js")

	got, ok := m.LookupByURL("https://example.com/out.js")
	if !ok || got != sa {
		t.Fatalf("expected LookupByURL to resolve the registered adapter")
	}
	if _, ok := m.LookupByURL("https://example.com/missing.js"); ok {
		t.Fatalf("expected no match for an unregistered URL")
	}
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "sourcemap: not found" }

var errNotFound = notFoundErr{}
