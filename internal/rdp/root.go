package rdp

import (
	"context"
	"encoding/json"
	"sync"
)

// Traits carries the subset of the engine's init-packet traits the bridge
// consults (spec.md §6): which mode to discover targets in, and whether
// the engine meets minimum requirements.
type Traits struct {
	WebExtensionAddonConnect               bool `json:"webExtensionAddonConnect"`
	NativeLogpoints                        bool `json:"nativeLogpoints"`
	SupportsEnableWindowGlobalThreadActors bool `json:"supportsEnableWindowGlobalThreadActors"`
	ContentScript                           bool `json:"-"`
}

// Root is the well-known bootstrap actor every connection starts on. It
// emits exactly one `init` event; requests made before that event is seen
// are queued by the dispatcher's normal FIFO behavior (they simply wait
// for the eventual response, same as any other actor).
type Root struct {
	base *ActorProxyBase

	initCh chan Traits

	mu               sync.Mutex
	onTabOpened      func(TabSummary)
	onTabListChanged func()
}

// NewRoot constructs the Root proxy bound to actor name "root" and
// registers it on conn.
func NewRoot(conn *Connection) (*Root, error) {
	return GetOrCreate(conn, "root", func(base *ActorProxyBase) *Root {
		r := &Root{base: base, initCh: make(chan Traits, 1)}
		base.onEvent("init", r.handleInit)
		base.onEvent("tabOpened", r.handleTabOpened)
		base.onEvent("tabListChanged", r.handleTabListChanged)
		return r
	})
}

// OnTabOpened registers the callback fired when the engine reports a new
// tab in legacy discovery mode (spec.md §4.I step 3). Invoked inline from
// the connection's dispatcher goroutine (spec.md §5) — a callback that
// needs to attach the tab (a blocking RPC chain) must hand off via the
// session orchestrator's async dispatcher, never call back into
// Connection.send directly.
func (r *Root) OnTabOpened(fn func(TabSummary)) {
	r.mu.Lock()
	r.onTabOpened = fn
	r.mu.Unlock()
}

// OnTabListChanged registers the callback fired when the engine's tab
// list changes in legacy mode; the event carries no payload, so the
// handler is expected to re-fetch FetchRoot and diff against what it has
// already attached. Same dispatcher-goroutine caveat as OnTabOpened.
func (r *Root) OnTabListChanged(fn func()) {
	r.mu.Lock()
	r.onTabListChanged = fn
	r.mu.Unlock()
}

func (r *Root) handleTabOpened(body json.RawMessage) {
	var env struct {
		Tab TabSummary `json:"tab"`
	}
	if json.Unmarshal(body, &env) != nil {
		return
	}
	r.mu.Lock()
	fn := r.onTabOpened
	r.mu.Unlock()
	if fn != nil {
		fn(env.Tab)
	}
}

func (r *Root) handleTabListChanged(json.RawMessage) {
	r.mu.Lock()
	fn := r.onTabListChanged
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (r *Root) handleInit(body json.RawMessage) {
	var env struct {
		Traits            Traits `json:"traits"`
		WatcherTraits     struct {
			ContentScript bool `json:"content_script"`
		} `json:"watcherTraits"`
	}
	_ = json.Unmarshal(body, &env)
	env.Traits.ContentScript = env.WatcherTraits.ContentScript
	select {
	case r.initCh <- env.Traits:
	default:
	}
}

// WaitForInit blocks until the `init` event has been observed, or ctx is
// cancelled. Per spec.md §4.I, the session orchestrator's Initialized
// state is exactly "await Root init".
func (r *Root) WaitForInit(ctx context.Context) (Traits, error) {
	select {
	case t := <-r.initCh:
		r.initCh <- t // allow repeat observation
		return t, nil
	case <-ctx.Done():
		return Traits{}, ctx.Err()
	}
}

// RootList is the decoded body of a listTabs/getRoot response: the set of
// top-level sub-actors and, in legacy mode, the open tabs.
type RootList struct {
	PreferenceActor string       `json:"preferenceActor"`
	AddonsActor     string       `json:"addonsActor"`
	DeviceActor     string       `json:"deviceActor"`
	Tabs            []TabSummary `json:"tabs"`
}

// TabSummary is one entry from a legacy-mode tab listing.
type TabSummary struct {
	Actor string `json:"actor"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// FetchRoot enumerates the top-level sub-actors (preference, addons,
// device) and, in legacy mode, currently open tabs.
func (r *Root) FetchRoot(ctx context.Context) (RootList, error) {
	payload, _ := json.Marshal(map[string]any{"to": "root", "type": "getRoot"})
	resp, err := r.base.sendRequest(ctx, payload)
	if err != nil {
		return RootList{}, err
	}
	if aerr := resp.AsError("root"); aerr != nil {
		return RootList{}, aerr
	}
	var out RootList
	if err := json.Unmarshal(resp.Raw, &out); err != nil {
		return RootList{}, err
	}
	return out, nil
}
