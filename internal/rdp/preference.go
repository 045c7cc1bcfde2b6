package rdp

import (
	"context"
	"encoding/json"
)

// Preference is a thin proxy over the engine's preference actor, for
// reading/setting engine-level debugging preferences. No other package in
// the bridge constructs it, so settings such as showConsoleCallLocation
// are not pushed to the engine.
type Preference struct {
	base *ActorProxyBase
}

// NewPreference constructs the proxy for the given actor name.
func NewPreference(conn *Connection, name string) (*Preference, error) {
	return GetOrCreate(conn, name, func(base *ActorProxyBase) *Preference {
		return &Preference{base: base}
	})
}

// GetBoolPref reads a boolean preference by name.
func (p *Preference) GetBoolPref(ctx context.Context, name string) (bool, error) {
	payload, _ := json.Marshal(map[string]any{"to": p.base.Name(), "type": "getBoolPref", "value": name})
	resp, err := p.base.sendRequest(ctx, payload)
	if err != nil {
		return false, err
	}
	if aerr := resp.AsError(p.base.Name()); aerr != nil {
		return false, aerr
	}
	var out struct {
		Value bool `json:"value"`
	}
	if err := json.Unmarshal(resp.Raw, &out); err != nil {
		return false, err
	}
	return out.Value, nil
}

// SetBoolPref writes a boolean preference by name.
func (p *Preference) SetBoolPref(ctx context.Context, name string, value bool) error {
	payload, _ := json.Marshal(map[string]any{
		"to": p.base.Name(), "type": "setBoolPref", "name": name, "value": value,
	})
	resp, err := p.base.sendRequest(ctx, payload)
	if err != nil {
		return err
	}
	return resp.AsError(p.base.Name())
}
