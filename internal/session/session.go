// Package session implements the bridge's top-level orchestrator
// (spec.md §4.I): the Connecting -> Initialized -> Discovering -> Running
// -> Terminating lifecycle, target discovery in both modern (trait-based)
// and legacy (tabOpened/tabListChanged) modes, target filtering by addon
// id and tab URL, and the thread registry used for DAP request routing.
//
// Grounded on cmd/ctrlai/main.go's runStart wiring sequence (load config,
// build every long-lived component in dependency order, then block on
// signals) and on internal/proxy/router.go's pure-filter style, here
// repurposed from "classify a URL path into provider/agent/apiType" to
// "decide whether a discovered tab's URL passes the launch config's
// include/exclude filters".
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dbgbridge/dbgbridge/internal/breakpoints"
	"github.com/dbgbridge/dbgbridge/internal/dap"
	"github.com/dbgbridge/dbgbridge/internal/pause"
	"github.com/dbgbridge/dbgbridge/internal/rdp"
	"github.com/dbgbridge/dbgbridge/internal/skipfiles"
	"github.com/dbgbridge/dbgbridge/internal/sourcemap"
	"github.com/dbgbridge/dbgbridge/internal/trace"
	"github.com/dbgbridge/dbgbridge/internal/transport"
)

// State enumerates the orchestrator lifecycle (spec.md §4.I).
type State string

const (
	StateConnecting  State = "connecting"
	StateInitialized State = "initialized"
	StateDiscovering State = "discovering"
	StateRunning     State = "running"
	StateTerminating State = "terminating"
)

// TabFilter restricts which discovered tabs/targets the session attaches
// to, by URL substring (spec.md §6 tabFilter).
type TabFilter struct {
	Include []string
	Exclude []string
}

// matches reports whether url passes the filter: excluded if it contains
// any Exclude substring, otherwise included only if Include is empty or
// it contains at least one Include substring.
func (f TabFilter) matches(url string) bool {
	for _, ex := range f.Exclude {
		if ex != "" && strings.Contains(url, ex) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, in := range f.Include {
		if in != "" && strings.Contains(url, in) {
			return true
		}
	}
	return false
}

// Options configures a Session.
type Options struct {
	Log              *slog.Logger
	Sink             dap.EventSink
	AddonID          string // empty attaches to the default target (tab or process)
	TabFilter        TabFilter
	PathMappings     []sourcemap.PathMapping
	SourceFetcher    sourcemap.Fetcher
	SourceCache      *sourcemap.Cache
	SkipFiles        []skipfiles.Rule
	Terminate        bool // carried from the config; the session never reads it and never kills the engine process
	ShowConsoleCallLocation bool
	Trace            *trace.Log // ambient protocol trace (spec.md §4.J); nil disables it
}

// breakpointInstaller adapts *rdp.BreakpointList to breakpoints.Installer,
// translating the editor's original-source line into the generated-
// source position the engine expects before install (spec.md §4.F):
// SetBreakpoints only ever receives original-source coordinates (that's
// all the editor has), but the engine's breakpoint actor addresses
// generated-source positions, so installing the original line/column
// unchanged lands on the wrong statement in any webpack/TS source-mapped
// file.
type breakpointInstaller struct {
	bl     *rdp.BreakpointList
	conn   *rdp.Connection
	srcMgr *sourcemap.Manager
}

func (i breakpointInstaller) SetBreakpoint(ctx context.Context, loc breakpoints.InstallLocation, opts breakpoints.Options) (breakpoints.InstallResult, error) {
	line, col := loc.Line, loc.Column
	if genLoc, ok := i.resolveGeneratedPosition(ctx, loc.SourceActor, line); ok {
		line, col = genLoc.Line, genLoc.Column
	}
	res, err := i.bl.SetBreakpoint(ctx, rdp.BreakpointLocation{
		SourceID: loc.SourceActor, Line: line, Column: col,
	}, rdp.BreakpointOptions{Condition: opts.Condition, LogMessage: opts.LogMessage})
	if err != nil {
		return breakpoints.InstallResult{}, err
	}
	return breakpoints.InstallResult{
		ActualLine:   res.ActualLocation.Line,
		ActualColumn: res.ActualLocation.Column,
	}, nil
}

// resolveGeneratedPosition looks up sourceActor's source-map (if any) and
// translates originalLine into a generated line/column via the manager's
// reverse index. ok is false for a source with no active source-map, in
// which case the caller installs at the editor-supplied position
// unchanged — the common case for a source with no build step.
func (i breakpointInstaller) resolveGeneratedPosition(ctx context.Context, sourceActor string, originalLine int) (sourcemap.FrameLocation, bool) {
	sa, ok := i.srcMgr.Lookup(sourceActor)
	if !ok {
		return sourcemap.FrameLocation{}, false
	}
	src, err := rdp.NewSource(i.conn, sourceActor)
	if err != nil {
		return sourcemap.FrameLocation{}, false
	}
	body, err := src.LoadSource(ctx)
	if err != nil {
		return sourcemap.FrameLocation{}, false
	}
	mapURL := sourcemap.ExtractSourceMappingURL([]byte(body), sa.GeneratedURL)
	if mapURL == "" {
		return sourcemap.FrameLocation{}, false
	}
	return i.srcMgr.FindGeneratedLocation(ctx, sa, mapURL, []byte(body), originalLine)
}

func (i breakpointInstaller) RemoveBreakpoint(ctx context.Context, loc breakpoints.InstallLocation) error {
	return i.bl.RemoveBreakpoint(ctx, rdp.BreakpointLocation{SourceID: loc.SourceActor, Line: loc.Line, Column: loc.Column})
}

// sourceAdapterRef adapts *sourcemap.SourceAdapter to breakpoints.SourceAdapter.
type sourceAdapterRef struct{ sa *sourcemap.SourceAdapter }

func (r sourceAdapterRef) ActorName() string { return r.sa.Actor }

// threadEntry pairs a discovered target's actor proxies with its pause
// adapter, indexed by the bridge-assigned numeric thread id.
type threadEntry struct {
	target  *rdp.Target
	thread  *rdp.Thread
	console *rdp.Console
	adapter *pause.Adapter
}

// Session owns one debug session over one engine connection: the actor
// registry, every discovered thread, the shared breakpoint/source-map/
// blackbox managers, and the lifecycle state machine.
type Session struct {
	opts Options
	log  *slog.Logger

	conn *rdp.Connection

	mu          sync.Mutex
	state       State
	nextID      int
	threads     map[int]*threadEntry
	actorToID   map[string]int
	threadByBP  *rdp.BreakpointList
	threadConf  *rdp.ThreadConfiguration
	activeID    int // most recently paused thread, used for REPL evaluate with no frameId

	bpMgr    *breakpoints.Manager
	srcMgr   *sourcemap.Manager
	skipMgr  *skipfiles.Manager

	frameRefs    map[int]frameRef
	nextFrameRef int
	varRefs      map[int]varRef
	nextVarRefID int

	root   *rdp.Root
	traits rdp.Traits

	reloadDone bool // never read or written; the session does not reload tabs

	asyncCh chan func()
}

// async hands fn off to the session's own dispatcher goroutine (runAsync)
// instead of running it inline. Every RDP event-handler callback wired off
// Connection/Watcher/Target (handleTargetAvailable, handleNewSource, pause
// notifications) is invoked synchronously from Connection.loop's own
// dispatcher goroutine (spec.md §5) — issuing a blocking actor RPC from
// inside that call chain deadlocks the bridge, because the response can
// only be delivered by the very goroutine that's stuck waiting for it.
// async is the only safe way for such a callback to then call back into
// Connection.send.
func (s *Session) async(fn func()) {
	select {
	case s.asyncCh <- fn:
	case <-s.conn.Done():
	}
}

// runAsync drains asyncCh on a goroutine distinct from the connection's
// dispatcher, so deferred event-handler work can freely issue blocking
// actor RPCs. Mirrors rdp.Connection's own cmdCh/loop pattern.
func (s *Session) runAsync() {
	for {
		select {
		case fn := <-s.asyncCh:
			fn()
		case <-s.conn.Done():
			return
		}
	}
}

// tracingSink wraps a dap.EventSink so every outbound DAP event is
// recorded to the protocol trace log (spec.md §4.J) on its way to the
// editor, mirroring how internal/dashboard wraps the sink to fan events
// out to viewers.
type tracingSink struct {
	inner dap.EventSink
	log   *trace.Log
}

func (t tracingSink) Send(event string, body any) {
	if raw, err := json.Marshal(body); err == nil {
		t.log.Record(trace.DirEditorEvent, "", event, raw)
	}
	t.inner.Send(event, body)
}

// traceObserver adapts a *trace.Log to rdp.PacketObserver, classifying
// inbound packets as an event (has a "type") or a response (doesn't) and
// tolerating a nil log (tracing disabled).
func traceObserver(t *trace.Log) rdp.PacketObserver {
	if t == nil {
		return nil
	}
	return func(inbound bool, actor, kind string, body []byte) {
		if !inbound {
			t.Record(trace.DirEngineRequest, actor, kind, body)
			return
		}
		if kind != "" {
			t.Record(trace.DirEngineEvent, actor, kind, body)
		} else {
			t.Record(trace.DirEngineResponse, actor, kind, body)
		}
	}
}

// Open establishes the connection, waits for the engine's init packet, and
// returns a Session in StateInitialized. Target discovery itself happens
// in Start, so callers can register DAP handlers against the Session
// before any "thread" events can fire.
func Open(ctx context.Context, framer *transport.Framer, opts Options) (*Session, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	mappings := opts.PathMappings
	skipMgr, skipErrs := skipfiles.NewManager(opts.SkipFiles)
	for _, e := range skipErrs {
		log.Warn("dropping invalid skipFiles pattern", "error", e)
	}

	if opts.Trace != nil && opts.Sink != nil {
		opts.Sink = tracingSink{inner: opts.Sink, log: opts.Trace}
	}

	s := &Session{
		opts:    opts,
		log:     log,
		conn:    rdp.Open(framer, log, traceObserver(opts.Trace)),
		state:     StateConnecting,
		threads:   make(map[int]*threadEntry),
		actorToID: make(map[string]int),
		bpMgr:     breakpoints.NewManager(),
		srcMgr:    sourcemap.NewManager(opts.SourceFetcher, sourcemap.CompilePathMappings(mappings), opts.SourceCache, log),
		skipMgr:   skipMgr,
		frameRefs: make(map[int]frameRef),
		varRefs:   make(map[int]varRef),
		asyncCh:   make(chan func(), 64),
	}
	go s.runAsync()

	root, err := rdp.NewRoot(s.conn)
	if err != nil {
		return nil, fmt.Errorf("session: root actor: %w", err)
	}
	traits, err := root.WaitForInit(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: awaiting engine init: %w", err)
	}
	s.log.Info("engine init observed", "modernTargets", traits.SupportsEnableWindowGlobalThreadActors)
	s.state = StateInitialized

	s.root = root
	s.traits = traits
	return s, nil
}

// State reports the orchestrator's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connection exposes the underlying RDP connection for components (e.g.
// cmd/dbgbridge's serve command) that need its Done channel.
func (s *Session) Connection() *rdp.Connection { return s.conn }
