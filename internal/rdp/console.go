package rdp

import (
	"context"
	"encoding/json"
)

// EvalResult is the decoded result of a Console.evaluate call: either a
// grip describing the resulting value, or a thrown exception's grip.
type EvalResult struct {
	Result    json.RawMessage `json:"result"`
	Exception json.RawMessage `json:"exception,omitempty"`
	Timestamp float64         `json:"timestamp"`
}

// Console is the proxy for a target's console actor: expression
// evaluation (spec.md §4.D). It holds no console-API-call subscription;
// console messages arrive as the owning Target's console-message
// resources.
type Console struct {
	base *ActorProxyBase
}

// NewConsole constructs the Console proxy for the given actor name.
func NewConsole(conn *Connection, name string) (*Console, error) {
	return GetOrCreate(conn, name, func(base *ActorProxyBase) *Console {
		return &Console{base: base}
	})
}

// Evaluate runs expression in the paused frame (or the global scope if
// not paused) and returns its resulting grip.
func (c *Console) Evaluate(ctx context.Context, expression string, frameActorID string) (EvalResult, error) {
	req := map[string]any{
		"to": c.base.Name(), "type": "evaluateJSAsync", "text": expression,
	}
	if frameActorID != "" {
		req["frameActor"] = frameActorID
	}
	payload, _ := json.Marshal(req)
	resp, err := c.base.sendRequest(ctx, payload)
	if err != nil {
		return EvalResult{}, err
	}
	if aerr := resp.AsError(c.base.Name()); aerr != nil {
		return EvalResult{}, aerr
	}
	var out EvalResult
	if err := json.Unmarshal(resp.Raw, &out); err != nil {
		return EvalResult{}, err
	}
	return out, nil
}
