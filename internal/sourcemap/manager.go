// Package sourcemap owns the two indexes spec.md §4.E describes — actor
// name to SourceAdapter and resolved original URL to SourceAdapter — plus
// source-map-backed position translation and the path-mapping index that
// turns a generated URL into a local filesystem path.
package sourcemap

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	neturl "net/url"
	"regexp"
	"strings"
	"sync"

	gosourcemap "github.com/go-sourcemap/sourcemap"
)

// FrameLocation is the position data the pause state machine and DAP
// layer exchange; ApplyToFrame returns it rewritten to the original
// source position when a source-map resolves one (spec.md §4.E
// `apply_source_map_to_frame`).
type FrameLocation struct {
	URL    string
	Line   int // 1-based
	Column int // 0-based
}

// Fetcher retrieves the raw bytes of a source-map document (or of a
// generated source's body, to scan for a `sourceMappingURL` comment).
// cmd/dbgbridge supplies an http.Client-backed implementation, which does
// not read file:// URLs; tests supply a map-backed one. Fetching itself is explicitly out of
// scope for this package (spec.md Non-goals): it only consumes bytes.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// SourceAdapter is the bridge's view of one engine source actor: its
// generated URL, the actor name that produced it, the resolved original
// URL (once a source-map, if any, has been consulted), and the local path
// computed from the path-mapping index.
type SourceAdapter struct {
	Actor            string
	GeneratedURL     string
	OriginalURL      string // equals GeneratedURL until a source-map resolves one
	LocalPath        string
	IsBlackBoxed     bool
	IntroductionType string // e.g. "debuggerEval"; from the newSource resource, spec.md §4.H step 5

	consumer     *gosourcemap.Consumer     // nil until lazily resolved; guarded by Manager.mu
	reverseIndex map[int]FrameLocation // original line -> generated position; guarded by Manager.mu
}

// Manager owns the actor→adapter and url→adapter maps plus the
// source-map cache and path-mapping index. Unlike internal/rdp, this
// package is reached from three different goroutines in practice — the
// connection dispatcher (pause.go's pause-gate lookups), the DAP request
// loop (SetBreakpoints, StackTrace), and the session's own async
// dispatcher (handleNewSource) — so mu guards every field on both Manager
// and SourceAdapter that any of those paths touch, including the
// per-adapter consumer and reverseIndex.
type Manager struct {
	fetch   Fetcher
	mapper  *PathMapper
	cache   *Cache
	log     *slog.Logger
	mu      sync.Mutex
	byActor map[string]*SourceAdapter
	byURL   map[string]*SourceAdapter
	byPath  map[string][]*SourceAdapter
}

// NewManager constructs a Manager. cache may be nil to disable
// persistence (falls back to resolving every source-map from scratch).
func NewManager(fetch Fetcher, mapper *PathMapper, cache *Cache, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		fetch:   fetch,
		mapper:  mapper,
		cache:   cache,
		log:     log,
		byActor: make(map[string]*SourceAdapter),
		byURL:   make(map[string]*SourceAdapter),
		byPath:  make(map[string][]*SourceAdapter),
	}
}

// RegisterSource records a newly-announced source actor and computes its
// local path immediately from the path-mapping index (falling back to a
// URL-derived path); the source-map itself, if any, is resolved lazily on
// first use by FindOriginalLocation or ApplyToFrame (spec.md §4.E:
// "consulted lazily").
func (m *Manager) RegisterSource(actor, generatedURL string) *SourceAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byActor[actor]; ok {
		return existing
	}

	local, ok := m.mapper.Resolve(generatedURL)
	if !ok {
		local = pathFromURL(generatedURL)
	}

	sa := &SourceAdapter{Actor: actor, GeneratedURL: generatedURL, OriginalURL: generatedURL, LocalPath: local}
	m.byActor[actor] = sa
	m.byURL[generatedURL] = sa
	m.byPath[local] = append(m.byPath[local], sa)
	return sa
}

// Lookup returns the adapter registered for actor, if any.
func (m *Manager) Lookup(actor string) (*SourceAdapter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sa, ok := m.byActor[actor]
	return sa, ok
}

// LookupByURL returns the adapter registered for a generated or resolved
// original URL, if any. Used by the pause gate to resolve the pausing
// frame's source straight from a pause notification's already-decoded
// actualLocation.url, without an extra actor round trip (spec.md §4.H
// step 4).
func (m *Manager) LookupByURL(url string) (*SourceAdapter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sa, ok := m.byURL[url]
	return sa, ok
}

// AdaptersForPath returns every source adapter currently mapped to the
// given local path — spec.md §4.F step 2: "for every source adapter
// currently mapped to path, call the session BreakpointList to install".
// More than one adapter can share a path when the same original source is
// loaded into more than one target (e.g. a shared module in two workers).
func (m *Manager) AdaptersForPath(path string) []*SourceAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*SourceAdapter, len(m.byPath[path]))
	copy(out, m.byPath[path])
	return out
}

// resolveSourceMap lazily fetches and decodes sa's source-map, caching
// the raw map JSON on disk keyed by (generated URL, content hash) so a
// reconnect (scenario S5) need not re-fetch a map it has already seen; a
// map taken from the cache is still parsed again.
func (m *Manager) resolveSourceMap(ctx context.Context, sa *SourceAdapter, mapURL string, generatedBody []byte) {
	m.mu.Lock()
	already := sa.consumer != nil
	m.mu.Unlock()
	if already || mapURL == "" {
		return
	}

	hash := contentHash(generatedBody)
	if m.cache != nil {
		if raw, ok := m.cache.Get(sa.GeneratedURL, hash); ok {
			if consumer, err := gosourcemap.Parse(mapURL, raw); err == nil {
				m.mu.Lock()
				sa.consumer = consumer
				m.mu.Unlock()
				m.applyOriginalURL(sa)
				return
			}
		}
	}

	raw, err := m.fetch(ctx, mapURL)
	if err != nil {
		m.log.Debug("source-map fetch failed", "url", mapURL, "error", err)
		return
	}
	consumer, err := gosourcemap.Parse(mapURL, raw)
	if err != nil {
		m.log.Debug("source-map parse failed", "url", mapURL, "error", err)
		return
	}
	m.mu.Lock()
	sa.consumer = consumer
	m.mu.Unlock()
	m.applyOriginalURL(sa)
	if m.cache != nil {
		m.cache.Put(sa.GeneratedURL, hash, raw)
	}
}

func (m *Manager) applyOriginalURL(sa *SourceAdapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, _, _, _, ok := sa.consumer.Source(1, 0)
	if !ok || src == "" {
		return
	}
	if sa.OriginalURL != sa.GeneratedURL {
		delete(m.byURL, sa.OriginalURL)
	}
	sa.OriginalURL = src
	if local, ok := m.mapper.Resolve(src); ok && local != sa.LocalPath {
		m.removeFromPathLocked(sa.LocalPath, sa)
		sa.LocalPath = local
		m.byPath[local] = append(m.byPath[local], sa)
	}
	m.byURL[src] = sa
}

func (m *Manager) removeFromPathLocked(path string, sa *SourceAdapter) {
	list := m.byPath[path]
	for i, v := range list {
		if v == sa {
			m.byPath[path] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// FindOriginalLocation consults sa's cached source-map (resolving it
// first if needed) for the original position behind a generated one.
// mapURL and generatedBody are supplied by the caller (the Source actor
// proxy), since fetching the generated document's `sourceMappingURL`
// comment is a transport concern this package stays out of.
func (m *Manager) FindOriginalLocation(ctx context.Context, sa *SourceAdapter, mapURL string, generatedBody []byte, line, col int) (FrameLocation, bool) {
	m.resolveSourceMap(ctx, sa, mapURL, generatedBody)
	m.mu.Lock()
	defer m.mu.Unlock()
	if sa.consumer == nil {
		return FrameLocation{}, false
	}
	src, _, origLine, origCol, ok := sa.consumer.Source(line, col)
	if !ok {
		return FrameLocation{}, false
	}
	return FrameLocation{URL: src, Line: origLine, Column: origCol}, true
}

// ApplyToFrame rewrites loc to its original-source position if sa has a
// resolved source-map, leaving it unchanged otherwise (spec.md §4.E
// `apply_source_map_to_frame`).
func (m *Manager) ApplyToFrame(loc FrameLocation, sa *SourceAdapter) FrameLocation {
	if sa == nil {
		return loc
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sa.consumer == nil {
		return loc
	}
	if src, _, origLine, origCol, ok := sa.consumer.Source(loc.Line, loc.Column); ok && src != "" {
		return FrameLocation{URL: src, Line: origLine, Column: origCol}
	}
	return loc
}

// FindGeneratedLocation consults sa's cached source-map (resolving it
// first if needed) for the generated-source position behind an
// original-source line, the reverse of FindOriginalLocation — needed
// because breakpoints are installed against the generated source actor
// (spec.md §4.F) while the editor supplies original-source positions.
// go-sourcemap/sourcemap exposes no reverse API, so this builds a
// line-granularity index by scanning every generated line once and
// keeping the first one that maps back to each original line; ok is
// false when sa has no source-map, meaning the caller should install at
// the editor-supplied position unchanged.
func (m *Manager) FindGeneratedLocation(ctx context.Context, sa *SourceAdapter, mapURL string, generatedBody []byte, originalLine int) (FrameLocation, bool) {
	m.resolveSourceMap(ctx, sa, mapURL, generatedBody)

	m.mu.Lock()
	defer m.mu.Unlock()
	if sa.consumer == nil {
		return FrameLocation{}, false
	}
	if sa.reverseIndex == nil {
		sa.reverseIndex = buildReverseIndex(sa.consumer, generatedBody)
	}
	loc, ok := sa.reverseIndex[originalLine]
	return loc, ok
}

func buildReverseIndex(consumer *gosourcemap.Consumer, generatedBody []byte) map[int]FrameLocation {
	index := make(map[int]FrameLocation)
	lineCount := bytes.Count(generatedBody, []byte("\n")) + 1
	for genLine := 1; genLine <= lineCount; genLine++ {
		_, _, origLine, _, ok := consumer.Source(genLine, 0)
		if !ok {
			continue
		}
		if _, seen := index[origLine]; !seen {
			index[origLine] = FrameLocation{Line: genLine, Column: 0}
		}
	}
	return index
}

var sourceMappingURLPattern = regexp.MustCompile(`//[#@]\s*sourceMappingURL=(\S+)`)

// ExtractSourceMappingURL scans a generated source's text for a trailing
// `//# sourceMappingURL=` comment (or the legacy `//@` form) and resolves
// it against baseURL when it's relative. Returns "" when no comment is
// present, meaning the source carries no source-map.
func ExtractSourceMappingURL(generatedBody []byte, baseURL string) string {
	m := sourceMappingURLPattern.FindSubmatch(generatedBody)
	if m == nil {
		return ""
	}
	ref := string(m[1])
	u, err := neturl.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	base, err := neturl.Parse(baseURL)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func contentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// pathFromURL derives a fallback local-looking path from a generated URL
// when no path-mapping entry applies, stripping the scheme and any query
// string (spec.md §4.G notes the same query-stripping rule for blackbox
// matching; applied here for consistency when skipfiles falls back to
// this path).
func pathFromURL(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		url = url[i+3:]
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return url
}
