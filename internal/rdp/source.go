package rdp

import (
	"context"
	"encoding/json"
	"fmt"
)

// BreakpointPosition is one column offset at which a breakpoint can
// validly land on a given line, as reported by getBreakpointPositions.
type BreakpointPosition struct {
	Line    int   `json:"line"`
	Columns []int `json:"columns"`
}

// Source is the proxy for one source actor (spec.md §4.D, §3).
type Source struct {
	base *ActorProxyBase
}

// NewSource constructs the Source proxy for the given actor name.
func NewSource(conn *Connection, name string) (*Source, error) {
	return GetOrCreate(conn, name, func(base *ActorProxyBase) *Source {
		return &Source{base: base}
	})
}

// SetBlackbox flips the engine-side blackbox flag for this source.
func (s *Source) SetBlackbox(ctx context.Context, blackboxed bool) error {
	typ := "unblackbox"
	if blackboxed {
		typ = "blackbox"
	}
	payload, _ := json.Marshal(map[string]any{"to": s.base.Name(), "type": typ})
	resp, err := s.base.sendRequest(ctx, payload)
	if err != nil {
		return err
	}
	return resp.AsError(s.base.Name())
}

// GetBreakpointPositions returns the valid breakpoint columns for each
// line in range [startLine, endLine], memoized per (startLine, endLine)
// pair since a source's breakpoint positions never change after load.
func (s *Source) GetBreakpointPositions(ctx context.Context, startLine, endLine int) ([]BreakpointPosition, error) {
	payload, _ := json.Marshal(map[string]any{
		"to": s.base.Name(), "type": "getBreakpointPositions",
		"query": map[string]int{"start": startLine, "end": endLine},
	})
	key := fmt.Sprintf("positions:%d:%d", startLine, endLine)
	return sendCachedRequest(ctx, s.base, key, payload, func(resp Response) ([]BreakpointPosition, error) {
		var out struct {
			Positions []BreakpointPosition `json:"positions"`
		}
		if err := json.Unmarshal(resp.Raw, &out); err != nil {
			return nil, err
		}
		return out.Positions, nil
	})
}

// Prettify asks the engine to pretty-print a minified source, returning
// only the reformatted text (no source-map from pretty to original
// positions). Memoized — prettifying is deterministic per source.
func (s *Source) Prettify(ctx context.Context) (string, error) {
	payload, _ := json.Marshal(map[string]any{"to": s.base.Name(), "type": "prettyPrint"})
	return sendCachedRequest(ctx, s.base, "prettyPrint", payload, func(resp Response) (string, error) {
		var out struct {
			Source string `json:"source"`
		}
		if err := json.Unmarshal(resp.Raw, &out); err != nil {
			return "", err
		}
		return out.Source, nil
	})
}

// LoadSource fetches the full text of this source. Memoized.
func (s *Source) LoadSource(ctx context.Context) (string, error) {
	payload, _ := json.Marshal(map[string]any{"to": s.base.Name(), "type": "source"})
	return sendCachedRequest(ctx, s.base, "source", payload, func(resp Response) (string, error) {
		var out struct {
			Source struct {
				Text string `json:"text"`
			} `json:"source"`
		}
		if err := json.Unmarshal(resp.Raw, &out); err != nil {
			return "", err
		}
		return out.Source.Text, nil
	})
}
