package rdp

import (
	"context"
	"encoding/json"
)

// Addons is a thin proxy over the engine's addons actor, offering
// InstallTemporaryAddon. No other package in the bridge constructs it;
// in particular Session.Terminate installs no "terminator" helper addon.
type Addons struct {
	base *ActorProxyBase
}

// NewAddons constructs the proxy for the given actor name.
func NewAddons(conn *Connection, name string) (*Addons, error) {
	return GetOrCreate(conn, name, func(base *ActorProxyBase) *Addons {
		return &Addons{base: base}
	})
}

// InstallTemporaryAddon installs the addon at path (unpacked extension
// directory or packed file) for the duration of this connection.
func (a *Addons) InstallTemporaryAddon(ctx context.Context, path string) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"to": a.base.Name(), "type": "installTemporaryAddon", "addonPath": path,
	})
	resp, err := a.base.sendRequest(ctx, payload)
	if err != nil {
		return "", err
	}
	if aerr := resp.AsError(a.base.Name()); aerr != nil {
		return "", aerr
	}
	var out struct {
		AddonID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Raw, &out); err != nil {
		return "", err
	}
	return out.AddonID, nil
}
