package rdp

import (
	"context"
	"encoding/json"
)

// TargetKind enumerates the execution-context kinds a Watcher can be
// asked to discover (spec.md §4.D).
type TargetKind string

const (
	TargetFrame         TargetKind = "frame"
	TargetWorker         TargetKind = "worker"
	TargetContentScript  TargetKind = "content_script"
)

// ResourceKind enumerates the resource streams a Watcher can subscribe
// to (spec.md §4.D).
type ResourceKind string

const (
	ResourceConsoleMessage ResourceKind = "console-message"
	ResourceErrorMessage   ResourceKind = "error-message"
	ResourceSource         ResourceKind = "source"
	ResourceThreadState    ResourceKind = "thread-state"
)

// TargetInfo names the actors discovered for one execution context.
type TargetInfo struct {
	Target  string `json:"target"`
	Thread  string `json:"thread"`
	Console string `json:"console"`
	Type    string `json:"type"`
	URL     string `json:"url"`
	AddonID string `json:"addonId,omitempty"`
}

// Watcher brokers target discovery and resource subscriptions for one
// Descriptor, plus the session-wide ThreadConfiguration and
// BreakpointList actors (spec.md §4.D).
type Watcher struct {
	base *ActorProxyBase

	onTargetAvailable func(TargetInfo)
	onTargetDestroyed func(actorName string)
}

// NewWatcher constructs the Watcher proxy for the given actor name.
func NewWatcher(conn *Connection, name string) (*Watcher, error) {
	return GetOrCreate(conn, name, func(base *ActorProxyBase) *Watcher {
		w := &Watcher{base: base}
		base.onEvent("target-available-form", w.handleTargetAvailable)
		base.onEvent("target-destroyed-form", w.handleTargetDestroyed)
		return w
	})
}

// OnTargetAvailable registers the callback fired for each newly
// discovered execution context.
func (w *Watcher) OnTargetAvailable(fn func(TargetInfo)) { w.onTargetAvailable = fn }

// OnTargetDestroyed registers the callback fired when the engine tears
// down an execution context. spec.md §9 Open Question: an unknown actor
// name here is logged and ignored by the caller, not treated as an error.
func (w *Watcher) OnTargetDestroyed(fn func(actorName string)) { w.onTargetDestroyed = fn }

func (w *Watcher) handleTargetAvailable(body json.RawMessage) {
	var env struct {
		Target TargetInfo `json:"target"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return
	}
	if w.onTargetAvailable != nil {
		w.onTargetAvailable(env.Target)
	}
}

func (w *Watcher) handleTargetDestroyed(body json.RawMessage) {
	var env struct {
		Actor string `json:"actor"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return
	}
	if w.onTargetDestroyed != nil {
		w.onTargetDestroyed(env.Actor)
	}
}

// WatchTargets subscribes to discovery of the given target kind. The
// engine will emit target-available events for matching execution
// contexts, including ones that already exist.
func (w *Watcher) WatchTargets(ctx context.Context, kind TargetKind) error {
	payload, _ := json.Marshal(map[string]any{
		"to": w.base.Name(), "type": "watchTargets", "targetType": kind,
	})
	resp, err := w.base.sendRequest(ctx, payload)
	if err != nil {
		return err
	}
	return resp.AsError(w.base.Name())
}

// WatchResources subscribes to the given resource streams. spec.md §9
// Open Question: in modern mode the bridge only calls this after
// WatchTargets has registered the parent-process target, to avoid
// missing early events — enforced by the session orchestrator's call
// order, not by this method.
func (w *Watcher) WatchResources(ctx context.Context, kinds []ResourceKind) error {
	payload, _ := json.Marshal(map[string]any{
		"to": w.base.Name(), "type": "watchResources", "resourceTypes": kinds,
	})
	resp, err := w.base.sendRequest(ctx, payload)
	if err != nil {
		return err
	}
	return resp.AsError(w.base.Name())
}

// GetBreakpointListActor fetches (and memoizes) the session-wide
// BreakpointList actor brokered by this Watcher.
func (w *Watcher) GetBreakpointListActor(ctx context.Context, conn *Connection) (*BreakpointList, error) {
	payload, _ := json.Marshal(map[string]any{"to": w.base.Name(), "type": "getBreakpointListActor"})
	return sendCachedRequest(ctx, w.base, "getBreakpointListActor", payload, func(resp Response) (*BreakpointList, error) {
		var out struct {
			Actor string `json:"actor"`
		}
		if err := json.Unmarshal(resp.Raw, &out); err != nil {
			return nil, err
		}
		return NewBreakpointList(conn, out.Actor)
	})
}

// GetThreadConfigurationActor fetches (and memoizes) the session-wide
// ThreadConfiguration actor brokered by this Watcher.
func (w *Watcher) GetThreadConfigurationActor(ctx context.Context, conn *Connection) (*ThreadConfiguration, error) {
	payload, _ := json.Marshal(map[string]any{"to": w.base.Name(), "type": "getThreadConfigurationActor"})
	return sendCachedRequest(ctx, w.base, "getThreadConfigurationActor", payload, func(resp Response) (*ThreadConfiguration, error) {
		var out struct {
			Actor string `json:"actor"`
		}
		if err := json.Unmarshal(resp.Raw, &out); err != nil {
			return nil, err
		}
		return NewThreadConfiguration(conn, out.Actor)
	})
}
