package rdp

import (
	"context"
	"encoding/json"
)

// BreakpointLocation identifies where a breakpoint should land on the
// engine side: a source URL (or source actor) plus line and optional
// column.
type BreakpointLocation struct {
	SourceURL string `json:"sourceUrl,omitempty"`
	SourceID  string `json:"sourceId,omitempty"`
	Line      int    `json:"line"`
	Column    int    `json:"column,omitempty"`
}

// BreakpointOptions carries the optional condition/logMessage behavior
// attached to a breakpoint (spec.md §3). Hit counts are not sent to the
// engine; internal/breakpoints enforces them on the bridge side.
type BreakpointOptions struct {
	Condition  string `json:"condition,omitempty"`
	LogMessage string `json:"logValue,omitempty"`
}

// SetBreakpointResult is the realized location the engine actually used,
// which may differ from the requested one (e.g. snapped to the nearest
// valid statement).
type SetBreakpointResult struct {
	ActualLocation BreakpointLocation `json:"actualLocation"`
	Verified       bool               `json:"-"`
}

// BreakpointList is the session-wide actor that installs/removes
// breakpoints across every source the engine knows about (spec.md §4.D).
type BreakpointList struct {
	base *ActorProxyBase
}

// NewBreakpointList constructs the proxy for the given actor name.
func NewBreakpointList(conn *Connection, name string) (*BreakpointList, error) {
	return GetOrCreate(conn, name, func(base *ActorProxyBase) *BreakpointList {
		return &BreakpointList{base: base}
	})
}

// SetBreakpoint installs a breakpoint at loc with the given options.
func (b *BreakpointList) SetBreakpoint(ctx context.Context, loc BreakpointLocation, opts BreakpointOptions) (SetBreakpointResult, error) {
	payload, _ := json.Marshal(map[string]any{
		"to": b.base.Name(), "type": "setBreakpoint",
		"location": loc, "options": opts,
	})
	resp, err := b.base.sendRequest(ctx, payload)
	if err != nil {
		return SetBreakpointResult{}, err
	}
	if aerr := resp.AsError(b.base.Name()); aerr != nil {
		return SetBreakpointResult{}, aerr
	}
	var out SetBreakpointResult
	if err := json.Unmarshal(resp.Raw, &out); err != nil {
		return SetBreakpointResult{}, err
	}
	out.Verified = true
	return out, nil
}

// RemoveBreakpoint uninstalls a previously set breakpoint.
func (b *BreakpointList) RemoveBreakpoint(ctx context.Context, loc BreakpointLocation) error {
	payload, _ := json.Marshal(map[string]any{
		"to": b.base.Name(), "type": "removeBreakpoint", "location": loc,
	})
	resp, err := b.base.sendRequest(ctx, payload)
	if err != nil {
		return err
	}
	return resp.AsError(b.base.Name())
}
