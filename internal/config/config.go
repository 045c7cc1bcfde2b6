// Package config loads the bridge's launch configuration (spec.md §6):
// the editor-supplied `launch.json`-equivalent settings that drive a
// debug session's target selection, path mappings, skip-files list, and
// terminate behavior.
//
// Kept in the teacher's shape (Load/WriteDefault/applyDefaults/validate
// over a YAML-tagged struct tree) from the original internal/config/
// config.go, generalized from the proxy's server/providers/streaming
// schema to the §6 launch-configuration schema.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dbgbridge/dbgbridge/internal/session"
	"github.com/dbgbridge/dbgbridge/internal/skipfiles"
	"github.com/dbgbridge/dbgbridge/internal/sourcemap"
)

// Config is the on-disk launch configuration (spec.md §6). The editor
// may instead supply an equivalent structure directly in a DAP "launch"
// request body (dap.LaunchArguments) — Load is used for the `dbgbridge
// serve --config` CLI path and for writing a starter file via `dbgbridge
// config generate`.
type Config struct {
	Request                 string          `yaml:"request"` // "launch" or "attach"
	Host                    string          `yaml:"host"`
	Port                    int             `yaml:"port"`
	Addon                   string          `yaml:"addon,omitempty"`
	PathMappings            []PathMapping   `yaml:"pathMappings,omitempty"`
	FilesToSkip             []SkipRule      `yaml:"filesToSkip,omitempty"`
	TabFilter               TabFilter       `yaml:"tabFilter,omitempty"`
	ReloadOnChange          bool            `yaml:"reloadOnChange,omitempty"`
	Terminate               bool            `yaml:"terminate,omitempty"`
	ReAttach                bool            `yaml:"reAttach,omitempty"`
	ClearConsoleOnReload    bool            `yaml:"clearConsoleOnReload,omitempty"`
	ShowConsoleCallLocation bool            `yaml:"showConsoleCallLocation,omitempty"`
	Trace                   TraceConfig     `yaml:"trace,omitempty"`
	Dashboard               DashboardConfig `yaml:"dashboard,omitempty"`
}

// PathMapping is one `{url, path}` entry (spec.md §4.E, §6).
type PathMapping struct {
	URL  string `yaml:"url"`
	Path string `yaml:"path"`
}

// SkipRule is one blackbox glob rule (spec.md §4.G, §6). Skip defaults to
// true when omitted; set explicitly false for a negative ("never skip")
// rule.
type SkipRule struct {
	Pattern string `yaml:"pattern"`
	Skip    *bool  `yaml:"skip,omitempty"`
}

// TabFilter restricts which tabs/targets the session attaches to.
type TabFilter struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// TraceConfig controls the ambient protocol trace log (spec.md §4.J).
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// DashboardConfig controls the ambient live dashboard (spec.md §4.K).
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Load reads and parses a launch configuration file. A missing file
// yields defaults, matching the teacher's "no config file is normal on
// first run" behavior.
func Load(path string) (*Config, error) {
	cfg := applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes a default launch configuration with a comment
// header, used by `dbgbridge config generate`.
func WriteDefault(path string) error {
	cfg := applyDefaults()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	header := `# dbgbridge launch configuration (spec.md §6)
#
# request: "launch" or "attach"
# host/port: where the engine's remote debugging server listens
# addon: web-extension id to attach to (omit to attach to the default tab)
# pathMappings: [{url, path}] generated-URL prefix -> local path
# filesToSkip: [{pattern, skip}] blackbox glob rules, last match wins
# tabFilter: {include, exclude} URL substrings restricting target discovery
# terminate: read but not acted on; the bridge never kills the engine process

`
	return os.WriteFile(path, []byte(header+string(data)), 0o644)
}

func applyDefaults() *Config {
	return &Config{
		Request: "launch",
		Host:    "localhost",
		Port:    6000,
		Trace:   TraceConfig{Enabled: false},
		Dashboard: DashboardConfig{
			Enabled: false, Host: "127.0.0.1", Port: 7000,
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Request != "launch" && cfg.Request != "attach" {
		return fmt.Errorf("request must be \"launch\" or \"attach\", got %q", cfg.Request)
	}
	if cfg.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range (1-65535)", cfg.Port)
	}
	for i, m := range cfg.PathMappings {
		if m.URL == "" {
			return fmt.Errorf("pathMappings[%d]: url must not be empty", i)
		}
	}
	for i, r := range cfg.FilesToSkip {
		if r.Pattern == "" {
			return fmt.Errorf("filesToSkip[%d]: pattern must not be empty", i)
		}
	}
	return nil
}

// SourceMapPathMappings converts the configuration's path mappings to
// sourcemap.PathMapping, appending the built-in extension/webpack
// defaults (spec.md §4.E) unless the config already maps that prefix.
func (c *Config) SourceMapPathMappings() []sourcemap.PathMapping {
	out := make([]sourcemap.PathMapping, 0, len(c.PathMappings)+2)
	seen := make(map[string]bool, len(c.PathMappings))
	for _, m := range c.PathMappings {
		out = append(out, sourcemap.PathMapping{URLPattern: m.URL, PathPrefix: m.Path})
		seen[m.URL] = true
	}
	for _, d := range sourcemap.DefaultPathMappings(c.Addon) {
		if !seen[d.URLPattern] {
			out = append(out, d)
		}
	}
	return out
}

// SkipFilesRules converts the configuration's skip-files list to
// skipfiles.Rule.
func (c *Config) SkipFilesRules() []skipfiles.Rule {
	out := make([]skipfiles.Rule, len(c.FilesToSkip))
	for i, r := range c.FilesToSkip {
		out[i] = skipfiles.Rule{Pattern: r.Pattern, Skip: r.Skip}
	}
	return out
}

// SessionTabFilter converts the configuration's tab filter to
// session.TabFilter.
func (c *Config) SessionTabFilter() session.TabFilter {
	return session.TabFilter{Include: c.TabFilter.Include, Exclude: c.TabFilter.Exclude}
}
