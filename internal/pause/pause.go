// Package pause owns the thread adapter and pause/resume state machine
// (spec.md §4.H): stop-reason classification, the blackbox/hit-count/
// debugger-eval gates, pause-lifetime proxy disposal, and stack-frame
// prefetch.
//
// Grounded on internal/agent/killswitch.go for the shape of guarded
// in-memory state transitions driven by an external event (there: a
// killed.yaml reload; here: a thread-state resource notification), and
// on internal/dashboard/websocket.go's hub for the fan-out ordering rule
// this package must enforce — resume disposal strictly precedes the
// "continued" broadcast, mirroring the hub's unregister-then-close-
// channel sequencing.
package pause

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dbgbridge/dbgbridge/internal/dap"
	"github.com/dbgbridge/dbgbridge/internal/grip"
	"github.com/dbgbridge/dbgbridge/internal/rdp"
	"github.com/dbgbridge/dbgbridge/internal/sourcemap"
)

// State is one of the three states spec.md §3 names for a Thread
// adapter: Running -> Paused(reason) -> Running -> ... -> Exited.
type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateExited  State = "exited"
)

// why is the decoded `why` field of a thread-state "paused" notification.
type why struct {
	Type           string          `json:"type"`
	ActualLocation *actualLocation `json:"actualLocation,omitempty"`
	Exception      json.RawMessage `json:"exception,omitempty"`
}

type actualLocation struct {
	SourceURL string `json:"url"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
}

// SourceLookup is the subset of internal/sourcemap.Manager the thread
// adapter needs: resolving the source adapter behind a pausing frame's
// URL, without an actor round trip.
type SourceLookup interface {
	LookupByURL(url string) (*sourcemap.SourceAdapter, bool)
}

// Adapter is the bridge-side state for one Target (spec.md §3's Thread).
//
// handleThreadState (and therefore handlePaused/handleResumed) runs
// inline on the connection's single dispatcher goroutine (spec.md §5) —
// it is invoked straight off Target.handleResources, itself called from
// Connection.dispatchInbound. Nothing in the synchronous pause-gate path
// may issue a blocking actor request: the response could only ever be
// delivered by this same goroutine, which would then be stuck waiting on
// itself. Any RPC handlePaused wants (frame prefetch, auto-resume) is
// handed off to async instead.
type Adapter struct {
	ID      int
	Name    string
	TypeTag string

	thread  *rdp.Thread
	target  *rdp.Target
	console *rdp.Console
	sources SourceLookup
	async   func(func())

	sink dap.EventSink
	log  *slog.Logger

	state  State
	reason string

	// pauseLifetime holds the actor names of every object/long-string
	// grip proxy obtained during the current pause — spec.md §3's
	// invariant that these MUST be disposed on every resume.
	pauseLifetime []string

	mu        sync.Mutex
	frames    []rdp.Frame
	framesGen int // bumped on every resume, so a stale async prefetch is discarded

	onBreakpointStop func(path string, line, col int) (suppress bool)
	onStopped        func(threadID int)
	onContinued      func(threadID int)
}

// Options configures the gates an Adapter consults on each stop. The
// breakpoint-hit-count gate is optional; a nil gate never suppresses.
// OnStopped and OnContinued, also optional, let the session orchestrator
// keep its own bookkeeping (active-thread tracking, variablesReference
// registries) in step with the state machine without reaching into
// Adapter internals. Async hands a closure off to the session
// orchestrator's own dispatcher goroutine — required for any RPC a gate
// or post-pause step needs to issue, since this Adapter's event handling
// runs on the connection's dispatcher goroutine instead.
type Options struct {
	Sink             dap.EventSink
	Log              *slog.Logger
	Sources          SourceLookup
	Async            func(func())
	OnBreakpointStop func(path string, line, col int) (suppress bool)
	OnStopped        func(threadID int)
	OnContinued      func(threadID int)
}

// New constructs a Thread adapter for a newly discovered target. The
// caller (session orchestrator) assigns id per spec.md §3's "stable
// numeric id (assigned by the bridge)".
func New(id int, name, typeTag string, target *rdp.Target, thread *rdp.Thread, console *rdp.Console, opts Options) *Adapter {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	async := opts.Async
	if async == nil {
		async = func(fn func()) { go fn() }
	}
	a := &Adapter{
		ID: id, Name: name, TypeTag: typeTag,
		thread: thread, target: target, console: console,
		sources: opts.Sources, async: async, sink: opts.Sink, log: log,
		state:            StateRunning,
		onBreakpointStop: opts.OnBreakpointStop,
		onStopped:        opts.OnStopped,
		onContinued:      opts.OnContinued,
	}
	target.OnThreadState(a.handleThreadState)
	return a
}

// State reports the adapter's current pause state.
func (a *Adapter) State() State { return a.state }

// Frames returns the frames prefetched on the most recent pause, or nil
// if the prefetch (spec.md §4.H step 6, asynchronous) hasn't completed
// yet — callers on the DAP request path should prefer EnsureFrames.
func (a *Adapter) Frames() []rdp.Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

// EnsureFrames returns the frames for the current pause, fetching them
// synchronously if the background prefetch from handlePaused hasn't
// completed yet. Safe to call from the DAP request-handling goroutine;
// must never be called from the connection's dispatcher goroutine, since
// GetFrames is a blocking actor request.
func (a *Adapter) EnsureFrames(ctx context.Context) ([]rdp.Frame, error) {
	a.mu.Lock()
	frames, gen := a.frames, a.framesGen
	a.mu.Unlock()
	if frames != nil {
		return frames, nil
	}
	fetched, err := a.thread.GetFrames(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.framesGen != gen {
		// a resume (and possibly a new pause) raced this fetch; the
		// caller's frameIndex references are no longer meaningful.
		return a.frames, nil
	}
	if a.frames == nil {
		a.frames = fetched
	}
	return a.frames, nil
}

// TrackPauseLifetime registers an actor name (an ObjectGrip or
// LongStringGrip) as scoped to the current pause, so it is invalidated on
// the next resume — spec.md Testable Property 3.
func (a *Adapter) TrackPauseLifetime(actorName string) {
	a.pauseLifetime = append(a.pauseLifetime, actorName)
}

// IsPauseLifetimeValid reports whether actorName was registered during
// the pause still in effect — false once that pause has been resumed.
func (a *Adapter) IsPauseLifetimeValid(actorName string) bool {
	if a.state != StatePaused {
		return false
	}
	for _, n := range a.pauseLifetime {
		if n == actorName {
			return true
		}
	}
	return false
}

// handleThreadState is the sole entry point for pause/resume observation
// in modern trait mode (spec.md §4.D: "the engine never attaches
// explicitly").
func (a *Adapter) handleThreadState(ts rdp.ThreadState) {
	switch ts.State {
	case "paused":
		a.handlePaused(ts.Why)
	case "resumed":
		a.handleResumed()
	}
}

func (a *Adapter) handlePaused(rawWhy json.RawMessage) {
	var w why
	_ = json.Unmarshal(rawWhy, &w)

	// Step 6: prefetching the full frame list is purely an optimization
	// for stackTrace/scopes requests the editor hasn't made yet (spec.md
	// §4.H step 6: "asynchronously ... optimization") — it must never gate
	// the stop decision below, and fetching it inline here would deadlock
	// this goroutine (the connection's dispatcher) against its own
	// response, so it runs on the session orchestrator's goroutine.
	a.asyncPrefetchFrames()

	// Steps 1-2: resolve the pausing frame's source adapter straight from
	// the pause notification's own actualLocation — already decoded off
	// the wire, so no GetFrames round trip is needed to gate the stop.
	var topLoc sourcemap.FrameLocation
	var topSA *sourcemap.SourceAdapter
	if w.ActualLocation != nil {
		topLoc = sourcemap.FrameLocation{Line: w.ActualLocation.Line, Column: w.ActualLocation.Column}
		if a.sources != nil {
			topSA, _ = a.sources.LookupByURL(w.ActualLocation.SourceURL)
		}
	}

	// Step 3: blackbox gate, read straight off the resolved adapter.
	if topSA != nil && topSA.IsBlackBoxed {
		a.log.Debug("auto-resuming stop into blackboxed source", "thread", a.ID)
		a.asyncAutoResume()
		return
	}

	// Step 4: hit-count gate, only for breakpoint stops. topLoc and the
	// realized breakpoint's ActualLine/ActualColumn are both generated-
	// source coordinates straight from the engine — neither side is
	// source-map-rewritten, so they compare in the same space.
	if w.Type == "breakpoint" && topSA != nil && a.onBreakpointStop != nil {
		if a.onBreakpointStop(topSA.LocalPath, topLoc.Line, topLoc.Column) {
			a.log.Debug("auto-resuming suppressed hit-count stop", "thread", a.ID)
			a.asyncAutoResume()
			return
		}
	}

	// Step 5: debugger-eval exception gate, decided from the pausing
	// source's introductionType, recorded at newSource time — no frame
	// fetch needed.
	if w.Type == "exception" && topSA != nil && topSA.IntroductionType == "debuggerEval" {
		a.log.Debug("auto-resuming exception inside debugger eval", "thread", a.ID)
		a.asyncAutoResume()
		return
	}

	// Step 6-7: record reason, emit stopped.
	a.state = StatePaused
	a.reason = classifyStopReason(w.Type)

	var text string
	if w.Type == "exception" && len(w.Exception) > 0 {
		text = grip.PreviewText(w.Exception)
	}

	if a.onStopped != nil {
		a.onStopped(a.ID)
	}
	if a.sink != nil {
		a.sink.Send("stopped", dap.StoppedEvent{
			Reason:            a.reason,
			ThreadID:          a.ID,
			Text:              text,
			AllThreadsStopped: false,
		})
	}
}

func (a *Adapter) handleResumed() {
	// spec.md §5 ordering invariant: dispose pause-lifetime proxies
	// synchronously before emitting "continued".
	a.pauseLifetime = nil
	a.mu.Lock()
	a.frames = nil
	a.framesGen++
	a.mu.Unlock()
	a.state = StateRunning

	if a.onContinued != nil {
		a.onContinued(a.ID)
	}
	if a.sink != nil {
		a.sink.Send("continued", dap.ContinuedEvent{ThreadID: a.ID})
	}
}

// asyncAutoResume asks the engine to resume and suppresses the stop
// entirely — no "stopped" event is ever emitted for it (spec.md Testable
// Property 4). The eventual thread-state "resumed" notification still
// drives handleResumed normally. Resume is itself a blocking request, so
// it runs off the connection's dispatcher goroutine via async, same as
// the frame prefetch.
func (a *Adapter) asyncAutoResume() {
	a.async(func() {
		if err := a.thread.Resume(context.Background()); err != nil {
			if aerr, ok := err.(*rdp.ActorError); !ok || !aerr.Benign() {
				a.log.Warn("auto-resume failed", "thread", a.ID, "error", err)
			}
		}
	})
}

func (a *Adapter) asyncPrefetchFrames() {
	a.mu.Lock()
	gen := a.framesGen
	a.mu.Unlock()

	a.async(func() {
		frames, err := a.thread.GetFrames(context.Background(), 0, 0)
		if err != nil {
			a.log.Debug("frame prefetch failed", "thread", a.ID, "error", err)
			return
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.framesGen != gen {
			return // a resume (and possibly a new pause) raced this fetch
		}
		a.frames = frames
	})
}

// classifyStopReason maps an engine stop reason to its DAP equivalent
// (spec.md §4.H).
func classifyStopReason(engineReason string) string {
	switch engineReason {
	case "exception":
		return "exception"
	case "breakpoint":
		return "breakpoint"
	case "debuggerStatement":
		return "debugger statement"
	default:
		return "interrupt"
	}
}

// Resume, Step, and Interrupt delegate to the underlying Thread proxy; a
// "wrongState" error racing an already-in-flight resume is benign per
// spec.md §7 and swallowed here.
func (a *Adapter) Resume(ctx context.Context) error {
	return swallowBenign(a.thread.Resume(ctx))
}

func (a *Adapter) Step(ctx context.Context, kind rdp.StepKind) error {
	return swallowBenign(a.thread.Step(ctx, kind))
}

func (a *Adapter) Interrupt(ctx context.Context) error {
	return swallowBenign(a.thread.Interrupt(ctx))
}

func swallowBenign(err error) error {
	if aerr, ok := err.(*rdp.ActorError); ok && aerr.Benign() {
		return nil
	}
	return err
}
