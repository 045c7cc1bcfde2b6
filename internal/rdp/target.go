package rdp

import (
	"encoding/json"
	"sync"
)

// ThreadState is the payload of a `thread-state` resource notification —
// the sole signal the bridge uses to observe pause/resume in the modern
// (trait-based) attachment mode, since the engine never sends an explicit
// "attached" acknowledgement (spec.md §4.D).
type ThreadState struct {
	State string          `json:"state"` // "paused" or "resumed"
	Why   json.RawMessage `json:"why,omitempty"`
}

// ConsoleMessage and ErrorMessage are the resource payloads forwarded by
// a Target for its console/error streams.
type ConsoleMessage struct {
	Level     string          `json:"level"`
	Arguments json.RawMessage `json:"arguments"`
	TimeStamp float64         `json:"timeStamp"`
}

type ErrorMessage struct {
	ErrorMessage string `json:"errorMessage"`
	SourceName   string `json:"sourceName"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

// NewSourceInfo is the resource payload announcing a newly loaded source.
type NewSourceInfo struct {
	Actor            string `json:"actor"`
	URL              string `json:"url"`
	GeneratedURL     string `json:"generatedUrl"`
	IsBlackBoxed     bool   `json:"isBlackBoxed"`
	IntroductionType string `json:"introductionType,omitempty"`
}

// Target is the bridge-side proxy for a concrete execution context —
// a document frame, worker, iframe, content script, or background
// script (spec.md §3). It fans resource events out to the owning
// Thread adapter.
//
// handleResources is invoked inline from the connection's dispatcher
// goroutine (spec.md §5), but the On* setters are called from the
// session orchestrator's own goroutine once target discovery is handed
// off there (see Session.async) rather than from the dispatcher itself —
// mu guards the four callback fields across that boundary.
type Target struct {
	base *ActorProxyBase

	destroyed bool

	mu               sync.Mutex
	onThreadState    func(ThreadState)
	onConsoleMessage func(ConsoleMessage)
	onErrorMessage   func(ErrorMessage)
	onNewSource      func(NewSourceInfo)
}

// NewTarget constructs the Target proxy for the given actor name.
func NewTarget(conn *Connection, name string) (*Target, error) {
	return GetOrCreate(conn, name, func(base *ActorProxyBase) *Target {
		t := &Target{base: base}
		base.onEvent("resource-available-form", t.handleResources)
		base.onEvent("tabDetached", func(json.RawMessage) { t.destroyed = true })
		return t
	})
}

// Destroyed reports whether the engine has torn this target down.
func (t *Target) Destroyed() bool { return t.destroyed }

// ActorName returns the wire actor name this Target proxies.
func (t *Target) ActorName() string { return t.base.Name() }

func (t *Target) OnThreadState(fn func(ThreadState)) {
	t.mu.Lock()
	t.onThreadState = fn
	t.mu.Unlock()
}

func (t *Target) OnConsoleMessage(fn func(ConsoleMessage)) {
	t.mu.Lock()
	t.onConsoleMessage = fn
	t.mu.Unlock()
}

func (t *Target) OnErrorMessage(fn func(ErrorMessage)) {
	t.mu.Lock()
	t.onErrorMessage = fn
	t.mu.Unlock()
}

func (t *Target) OnNewSource(fn func(NewSourceInfo)) {
	t.mu.Lock()
	t.onNewSource = fn
	t.mu.Unlock()
}

// handleResources demultiplexes the single "resource-available-form"
// event type into the four resource kinds a Target can carry, since the
// wire protocol batches heterogeneous resources under one event.
func (t *Target) handleResources(body json.RawMessage) {
	var raw struct {
		Resources []json.RawMessage `json:"resources"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return
	}

	t.mu.Lock()
	onThreadState, onConsoleMessage, onErrorMessage, onNewSource := t.onThreadState, t.onConsoleMessage, t.onErrorMessage, t.onNewSource
	t.mu.Unlock()

	for _, r := range raw.Resources {
		var kind struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(r, &kind); err != nil {
			continue
		}
		switch ResourceKind(kind.ResourceType) {
		case ResourceThreadState:
			if onThreadState == nil {
				continue
			}
			var ts ThreadState
			if json.Unmarshal(r, &ts) == nil {
				onThreadState(ts)
			}
		case ResourceConsoleMessage:
			if onConsoleMessage == nil {
				continue
			}
			var cm ConsoleMessage
			if json.Unmarshal(r, &cm) == nil {
				onConsoleMessage(cm)
			}
		case ResourceErrorMessage:
			if onErrorMessage == nil {
				continue
			}
			var em ErrorMessage
			if json.Unmarshal(r, &em) == nil {
				onErrorMessage(em)
			}
		case ResourceSource:
			if onNewSource == nil {
				continue
			}
			var ns NewSourceInfo
			if json.Unmarshal(r, &ns) == nil {
				onNewSource(ns)
			}
		}
	}
}
