package rdp

import (
	"context"
	"encoding/json"
)

// GripProperty is one own-property of an object grip, as returned by
// enumOwnProperties.
type GripProperty struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// ObjectGrip is the proxy for a server-side object reference. Its
// lifetime is tied to either the pause that produced it or the owning
// thread, per the grip's `lifetime` tag on the wire (spec.md GLOSSARY).
type ObjectGrip struct {
	base *ActorProxyBase
}

// NewObjectGrip constructs the proxy for the given actor name.
func NewObjectGrip(conn *Connection, name string) (*ObjectGrip, error) {
	return GetOrCreate(conn, name, func(base *ActorProxyBase) *ObjectGrip {
		return &ObjectGrip{base: base}
	})
}

// Properties fetches this object's own properties for variable display.
func (g *ObjectGrip) Properties(ctx context.Context) ([]GripProperty, error) {
	payload, _ := json.Marshal(map[string]any{"to": g.base.Name(), "type": "enumOwnProperties"})
	resp, err := g.base.sendRequest(ctx, payload)
	if err != nil {
		return nil, err
	}
	if aerr := resp.AsError(g.base.Name()); aerr != nil {
		return nil, aerr
	}
	var out struct {
		OwnProperties map[string]struct {
			Value json.RawMessage `json:"value"`
		} `json:"ownProperties"`
	}
	if err := json.Unmarshal(resp.Raw, &out); err != nil {
		return nil, err
	}
	props := make([]GripProperty, 0, len(out.OwnProperties))
	for name, v := range out.OwnProperties {
		props = append(props, GripProperty{Name: name, Value: v.Value})
	}
	return props, nil
}

// LongStringGrip is the proxy for a truncated string value; Substring
// fetches the remainder on demand.
type LongStringGrip struct {
	base *ActorProxyBase
}

// NewLongStringGrip constructs the proxy for the given actor name.
func NewLongStringGrip(conn *Connection, name string) (*LongStringGrip, error) {
	return GetOrCreate(conn, name, func(base *ActorProxyBase) *LongStringGrip {
		return &LongStringGrip{base: base}
	})
}

// Substring fetches characters [start, end) of the full string.
func (g *LongStringGrip) Substring(ctx context.Context, start, end int) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"to": g.base.Name(), "type": "substring", "start": start, "end": end,
	})
	resp, err := g.base.sendRequest(ctx, payload)
	if err != nil {
		return "", err
	}
	if aerr := resp.AsError(g.base.Name()); aerr != nil {
		return "", aerr
	}
	var out struct {
		Substring string `json:"substring"`
	}
	if err := json.Unmarshal(resp.Raw, &out); err != nil {
		return "", err
	}
	return out.Substring, nil
}
