// Package main is the CLI entry point for dbgbridge — a debug adapter
// bridge that translates a generic editor debugging session into a
// browser engine's actor-based remote debugging protocol.
//
// Architecture overview:
//
//	Editor (DAP client) --> dbgbridge (this binary) --> Browser engine (RDP)
//	                          |                              |
//	                          +-- decode launch config -------+
//	                          |-- connect over RDP, discover targets
//	                          |-- install breakpoints, drive pause state
//	                          |-- emit DAP-shaped events (stdout/dashboard)
//	                          +-- trace every packet (if enabled)
//
// CLI commands (cobra):
//
//	dbgbridge serve   - connect to the engine and run one debug session
//	dbgbridge doctor  - print resolved paths and check engine reachability
//	dbgbridge config  - view/generate the launch configuration file
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbgbridge/dbgbridge/internal/config"
	"github.com/dbgbridge/dbgbridge/internal/dap"
	"github.com/dbgbridge/dbgbridge/internal/dashboard"
	"github.com/dbgbridge/dbgbridge/internal/session"
	"github.com/dbgbridge/dbgbridge/internal/sourcemap"
	"github.com/dbgbridge/dbgbridge/internal/trace"
	"github.com/dbgbridge/dbgbridge/internal/transport"
)

// Build-time variables injected via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

// defaultStateDir returns ~/.dbgbridge/, where the source-map cache and
// protocol trace live.
func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dbgbridge"
	}
	return filepath.Join(home, ".dbgbridge")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var (
	configPath string
	stateDir   string
)

var rootCmd = &cobra.Command{
	Use:     "dbgbridge",
	Short:   "dbgbridge — debug adapter bridge for a browser's remote debugging protocol",
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "launch.yaml", "Path to the launch configuration file")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", defaultStateDir(), "Path to the source-map cache / trace directory")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(configCmd)
}

// ============================================================================
// dbgbridge serve — connect to the engine and run one debug session
// ============================================================================

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the engine and run one debug session",
	Long: `Connect to the browser engine's remote debugging server, discover
targets, and bridge breakpoints/pause state/evaluation until the engine
disconnects or a signal is received.

DAP events are written as newline-delimited JSON to stdout
(the editor-side DAP transport framing is out of scope for this bridge —
see spec §1 — an external transport layer adapts these events to the
real wire format).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// runServe wires together every long-lived component in dependency
// order, then blocks on signals — the same shape as the teacher's
// runStart: load config, build components, start serving, shut down
// gracefully on SIGINT/SIGTERM.
func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", stateDir, err)
	}

	cache, err := sourcemap.OpenCache(filepath.Join(stateDir, "sourcemaps.db"))
	if err != nil {
		return fmt.Errorf("opening source-map cache: %w", err)
	}

	var traceLog *trace.Log
	if cfg.Trace.Enabled {
		dir := cfg.Trace.Dir
		if dir == "" {
			dir = filepath.Join(stateDir, "trace")
		}
		traceLog, err = trace.Open(dir)
		if err != nil {
			return fmt.Errorf("opening trace log: %w", err)
		}
		defer traceLog.Close()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	fmt.Printf("[dbgbridge] dialing engine at %s...\n", addr)
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to engine at %s: %w", addr, err)
	}
	defer conn.Close()
	framer := transport.New(conn)

	var sink dap.EventSink = stdoutSink{}
	var dash *dashboard.Dashboard
	if cfg.Dashboard.Enabled {
		dash = dashboard.New(dashboard.Options{Trace: traceLog, Forward: sink})
		sink = dash
	}

	sess, err := session.Open(ctx, framer, session.Options{
		Log:                     nil, // defaults to slog.Default()
		Sink:                    sink,
		AddonID:                 cfg.Addon,
		TabFilter:               cfg.SessionTabFilter(),
		PathMappings:            cfg.SourceMapPathMappings(),
		SourceFetcher:           httpFetcher(),
		SourceCache:             cache,
		SkipFiles:               cfg.SkipFilesRules(),
		Terminate:               cfg.Terminate,
		ShowConsoleCallLocation: cfg.ShowConsoleCallLocation,
		Trace:                   traceLog,
	})
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	if dash != nil {
		dash.SetSession(sess)
	}

	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	fmt.Printf("[dbgbridge] session running (state=%s)\n", sess.State())

	if cfg.Dashboard.Enabled {
		go serveDashboardHTTP(cfg, dash)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		fmt.Println("\n[dbgbridge] shutting down (signal received)...")
	case <-sess.Connection().Done():
		fmt.Println("[dbgbridge] engine disconnected")
	}

	sess.Terminate(context.Background())
	fmt.Println("[dbgbridge] stopped")
	return nil
}

// serveDashboardHTTP mounts and runs the dashboard's HTTP server. Runs
// until the process exits; errors are logged, not fatal, since the
// dashboard is purely an optional observability surface (spec §4.K).
func serveDashboardHTTP(cfg *config.Config, dash *dashboard.Dashboard) {
	mux := http.NewServeMux()
	mux.Handle("/dashboard", dash)
	mux.Handle("/dashboard/", dash)
	mux.Handle("/dashboard/ws", dash.WebSocketHandler())
	mux.Handle("/api/", dash.APIHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Dashboard.Host, cfg.Dashboard.Port)
	fmt.Printf("[dbgbridge] dashboard at http://%s/dashboard\n", addr)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "[dbgbridge] dashboard server error: %v\n", err)
	}
}

// stdoutSink writes each DAP event as one JSON line to stdout. This is
// the seam an external editor-side transport adapts to the real DAP wire
// format (Content-Length-framed JSON-RPC) — framing that, per spec §1,
// this bridge does not implement itself.
type stdoutSink struct{}

func (stdoutSink) Send(event string, body any) {
	line, err := json.Marshal(struct {
		Event string `json:"event"`
		Body  any    `json:"body"`
	}{event, body})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[dbgbridge] failed to marshal %s event: %v\n", event, err)
		return
	}
	fmt.Println(string(line))
}

// httpFetcher retrieves a source-map document (or a generated source's
// body, when resolving an inline `//# sourceMappingURL=`) over plain
// HTTP. Tuned the way the teacher tunes its upstream LLM client: modest
// connection reuse, no read timeout beyond the per-request context since
// fetches are small and infrequent compared to a debug session's
// lifetime.
func httpFetcher() sourcemap.Fetcher {
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     60 * time.Second,
		},
	}
	return func(ctx context.Context, url string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building request for %s: %w", url, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching %s: status %s", url, resp.Status)
		}
		buf := make([]byte, 0, 4096)
		for {
			chunk := make([]byte, 4096)
			n, rerr := resp.Body.Read(chunk)
			buf = append(buf, chunk[:n]...)
			if rerr != nil {
				break
			}
		}
		return buf, nil
	}
}

// ============================================================================
// dbgbridge doctor — check connectivity and print resolved paths
// ============================================================================

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Print resolved paths and check engine reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor(cmd.Context())
	},
}

func runDoctor(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Printf("config file:       %s\n", configPath)
	fmt.Printf("state directory:   %s\n", stateDir)
	fmt.Printf("source-map cache:  %s\n", filepath.Join(stateDir, "sourcemaps.db"))
	traceDir := cfg.Trace.Dir
	if traceDir == "" {
		traceDir = filepath.Join(stateDir, "trace")
	}
	fmt.Printf("trace log:         %s (enabled=%v)\n", traceDir, cfg.Trace.Enabled)
	fmt.Printf("request:           %s\n", cfg.Request)
	fmt.Printf("addon:             %s\n", cfg.Addon)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	fmt.Printf("engine address:    %s\n", addr)

	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var d net.Dialer
	c, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		fmt.Printf("engine reachable:  no (%v)\n", err)
		return nil
	}
	c.Close()
	fmt.Println("engine reachable:  yes")
	return nil
}

// ============================================================================
// dbgbridge config — view/generate the launch configuration
// ============================================================================

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or generate the launch configuration file",
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGenerateCmd)
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved launch configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Printf("No config file found at %s\n", configPath)
				fmt.Println("Run 'dbgbridge config generate' to write a starter file.")
				return nil
			}
			return fmt.Errorf("reading config: %w", err)
		}
		fmt.Print(strings.TrimRight(string(data), "\n") + "\n")
		return nil
	},
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a starter launch configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(configPath); err != nil {
			return fmt.Errorf("writing default config: %w", err)
		}
		fmt.Printf("[dbgbridge] wrote %s\n", configPath)
		return nil
	},
}
