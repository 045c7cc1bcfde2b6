// Package grip renders a server-side object grip's preview into the
// short human text the pause state machine needs for an exception stop
// (spec.md §4.H: "exception text derived from grip preview when
// object-typed") without a full evaluate() round trip.
//
// Grounded on internal/extractor's style of probing a small set of known
// JSON shapes and incrementally accumulating a structured result instead
// of trusting one fixed schema (internal/extractor/anthropic.go vs
// openai.go vs openai_responses.go each decode a different envelope
// around the same logical tool call); here the envelopes are the grip
// variants the engine can send for a thrown value — an Error-shaped
// object, a plain string, or a bare primitive.
package grip

import "encoding/json"

// errorPreview is the shape of an object grip's `preview` field when the
// underlying value is (or subclasses) Error.
type errorPreview struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// objectGripEnvelope is the minimal shape common to every object grip on
// the wire, regardless of class.
type objectGripEnvelope struct {
	Type    string       `json:"type"` // "object"
	Class   string       `json:"class"`
	Preview *errorPreview `json:"preview,omitempty"`
}

// primitiveGrip covers non-object exception values: strings, numbers,
// booleans, null, undefined.
type primitiveGrip struct {
	Type string          `json:"type"`
	Text json.RawMessage `json:"-"`
}

// PreviewText renders raw (the `exception` or `why.exception` field off a
// pause/evaluate packet) into the short text spec.md §4.H wants for a
// DAP stopped event: "Name: message" for an Error-shaped object grip,
// the literal value for a primitive, and the raw JSON as a last resort.
func PreviewText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var env objectGripEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Type == "object" {
		if env.Preview != nil && env.Preview.Name != "" {
			if env.Preview.Message != "" {
				return env.Preview.Name + ": " + env.Preview.Message
			}
			return env.Preview.Name
		}
		if env.Class != "" {
			return "[object " + env.Class + "]"
		}
	}

	// Not an object grip (or one without a usable preview) — try the
	// handful of primitive shapes the wire protocol uses directly rather
	// than wrapping every value in an object grip.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "true"
		}
		return "false"
	}

	return string(raw)
}
