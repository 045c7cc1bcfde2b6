package rdp

import (
	"context"
	"encoding/json"
)

// Descriptor represents a debuggable scope — a tab, a web-extension, or a
// process — and owns exactly one Watcher (spec.md §3).
type Descriptor struct {
	base *ActorProxyBase

	onDestroyed func()
}

// NewDescriptor constructs the Descriptor proxy for the given actor name.
func NewDescriptor(conn *Connection, name string) (*Descriptor, error) {
	return GetOrCreate(conn, name, func(base *ActorProxyBase) *Descriptor {
		d := &Descriptor{base: base}
		base.onEvent("descriptor-destroyed", func(json.RawMessage) {
			if d.onDestroyed != nil {
				d.onDestroyed()
			}
		})
		return d
	})
}

// OnDestroyed registers the callback fired when the engine destroys this
// descriptor. Per spec.md §3, destruction cascades to every thread under
// it — the caller (session orchestrator) is responsible for that cascade.
func (d *Descriptor) OnDestroyed(fn func()) { d.onDestroyed = fn }

// GetWatcher fetches (and memoizes) this descriptor's single Watcher
// actor — spec.md §4.D: "get_watcher() (cached)".
func (d *Descriptor) GetWatcher(ctx context.Context, conn *Connection) (*Watcher, error) {
	payload, _ := json.Marshal(map[string]any{"to": d.base.Name(), "type": "getWatcher"})
	return sendCachedRequest(ctx, d.base, "getWatcher", payload, func(resp Response) (*Watcher, error) {
		var out struct {
			Watcher string `json:"watcher"`
		}
		if err := json.Unmarshal(resp.Raw, &out); err != nil {
			return nil, err
		}
		return NewWatcher(conn, out.Watcher)
	})
}

// Reload asks the engine to reload the document under this descriptor.
func (d *Descriptor) Reload(ctx context.Context) error {
	payload, _ := json.Marshal(map[string]any{"to": d.base.Name(), "type": "reload"})
	resp, err := d.base.sendRequest(ctx, payload)
	if err != nil {
		return err
	}
	return resp.AsError(d.base.Name())
}
