package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load with nonexistent file should not error: %v", err)
	}
	if cfg.Request != "launch" || cfg.Host != "localhost" || cfg.Port != 6000 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadParsesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launch.yaml")
	body := `
request: attach
host: 127.0.0.1
port: 6100
addon: my-addon@example.com
pathMappings:
  - url: webpack:///src/
    path: /home/user/project/src
filesToSkip:
  - pattern: "**/node_modules/**"
tabFilter:
  include: ["localhost:3000"]
terminate: true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Request != "attach" || cfg.Port != 6100 || cfg.Addon != "my-addon@example.com" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.PathMappings) != 1 || cfg.PathMappings[0].Path != "/home/user/project/src" {
		t.Fatalf("unexpected path mappings: %+v", cfg.PathMappings)
	}
	if !cfg.Terminate {
		t.Fatal("expected terminate to be true")
	}
}

func TestLoadRejectsInvalidRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launch.yaml")
	if err := os.WriteFile(path, []byte("request: frobnicate\nhost: localhost\nport: 6000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid request kind")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launch.yaml")
	if err := os.WriteFile(path, []byte("request: launch\nhost: localhost\nport: 99999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestValidateAllCases(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", *applyDefaults(), false},
		{"bad request", Config{Request: "frobnicate", Host: "x", Port: 1}, true},
		{"empty host", Config{Request: "launch", Host: "", Port: 1}, true},
		{"port 0", Config{Request: "launch", Host: "x", Port: 0}, true},
		{"port 65536", Config{Request: "launch", Host: "x", Port: 65536}, true},
		{
			"empty path mapping url", Config{
				Request: "launch", Host: "x", Port: 1,
				PathMappings: []PathMapping{{URL: "", Path: "/a"}},
			}, true,
		},
		{
			"empty skip pattern", Config{
				Request: "launch", Host: "x", Port: 1,
				FilesToSkip: []SkipRule{{Pattern: ""}},
			}, true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(&tt.cfg)
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestWriteDefaultRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launch.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not created: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load after WriteDefault: %v", err)
	}
	if cfg.Port != 6000 || cfg.Request != "launch" {
		t.Errorf("roundtrip mismatch: %+v", cfg)
	}
}

func TestSourceMapPathMappingsAppendsDefaults(t *testing.T) {
	cfg := &Config{
		Addon: "my-addon",
		PathMappings: []PathMapping{
			{URL: "webpack:///src/", Path: "/proj/src"},
		},
	}
	mappings := cfg.SourceMapPathMappings()
	if len(mappings) < 2 {
		t.Fatalf("expected configured mapping plus defaults, got %+v", mappings)
	}
	if mappings[0].URLPattern != "webpack:///src/" {
		t.Fatalf("expected configured mapping first, got %+v", mappings[0])
	}
}

func TestSkipFilesRulesAndTabFilterConvert(t *testing.T) {
	skipTrue := true
	cfg := &Config{
		FilesToSkip: []SkipRule{{Pattern: "**/vendor/**", Skip: &skipTrue}},
		TabFilter:   TabFilter{Include: []string{"example.com"}},
	}
	rules := cfg.SkipFilesRules()
	if len(rules) != 1 || rules[0].Pattern != "**/vendor/**" {
		t.Fatalf("unexpected skip rules: %+v", rules)
	}
	tf := cfg.SessionTabFilter()
	if len(tf.Include) != 1 || tf.Include[0] != "example.com" {
		t.Fatalf("unexpected tab filter: %+v", tf)
	}
}
