package sourcemap

import "strings"

// PathMapping is one `{url-pattern, path-prefix}` entry from the
// configuration layer's path-mappings list (spec.md §4.E, §6). URLPattern
// is matched as a literal prefix of the source URL; PathPrefix replaces
// that prefix to produce a local filesystem path.
type PathMapping struct {
	URLPattern string `yaml:"url"`
	PathPrefix string `yaml:"path"`
}

type pathMapNode struct {
	children map[string]*pathMapNode
	mapping  *PathMapping // set if a pattern ends exactly here
}

// PathMapper resolves generated-source URLs to local filesystem paths via
// a prefix trie compiled once at load time, giving O(length-of-URL)
// lookup instead of a linear scan of the ordered pattern list — spec.md
// §4.E's "dedicated mapping index allows O(1) prefix hit". Compiled the
// way the teacher's compileMatcher in internal/engine/matcher.go
// pre-compiles glob/regex patterns once instead of per-evaluation.
type PathMapper struct {
	root *pathMapNode
}

// CompilePathMappings builds a PathMapper from an ordered mapping list.
// Lookup resolves to the longest registered pattern that prefixes the
// URL, whatever its position in the list. List order decides only between
// two entries with the identical pattern, where the first one registered
// wins. A shorter pattern listed before a longer matching one therefore
// does not win, as it would under a first-match scan of the list.
func CompilePathMappings(mappings []PathMapping) *PathMapper {
	root := &pathMapNode{children: make(map[string]*pathMapNode)}
	for _, m := range mappings {
		node := root
		for _, r := range m.URLPattern {
			key := string(r)
			child, ok := node.children[key]
			if !ok {
				child = &pathMapNode{children: make(map[string]*pathMapNode)}
				node.children[key] = child
			}
			node = child
		}
		if node.mapping == nil {
			mCopy := m
			node.mapping = &mCopy
		}
	}
	return &PathMapper{root: root}
}

// Resolve returns the local path for url under the longest matching
// registered prefix, or ("", false) if no mapping applies.
func (p *PathMapper) Resolve(url string) (string, bool) {
	node := p.root
	var best *PathMapping
	var bestLen int
	for i, r := range url {
		child, ok := node.children[string(r)]
		if !ok {
			break
		}
		node = child
		if node.mapping != nil {
			best = node.mapping
			bestLen = i + 1
		}
	}
	if best == nil {
		return "", false
	}
	return best.PathPrefix + strings.TrimPrefix(url[bestLen:], "/"), true
}

// DefaultPathMappings returns the built-in mappings the configuration
// layer installs unless overridden (spec.md §4.E: "web-extension addon
// ids and webpack:// sources have default mappings").
func DefaultPathMappings(extensionRoot string) []PathMapping {
	var out []PathMapping
	if extensionRoot != "" {
		out = append(out, PathMapping{URLPattern: "moz-extension://", PathPrefix: extensionRoot + "/"})
	}
	out = append(out, PathMapping{URLPattern: "webpack:///./", PathPrefix: ""})
	out = append(out, PathMapping{URLPattern: "webpack:///", PathPrefix: ""})
	return out
}
