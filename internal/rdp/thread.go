package rdp

import (
	"context"
	"encoding/json"
)

// StepKind enumerates the engine's stepping granularities.
type StepKind string

const (
	StepNext   StepKind = "next"
	StepInto   StepKind = "step"
	StepFinish StepKind = "finish"
)

// Thread is the RDP-side proxy for a target's thread actor. Pause/resume
// itself is observed through the owning Target's thread-state resource,
// not through this proxy — in the modern trait mode the engine never
// sends an explicit attach acknowledgement (spec.md §4.D).
type Thread struct {
	base *ActorProxyBase
}

// NewThread constructs the Thread proxy for the given actor name.
func NewThread(conn *Connection, name string) (*Thread, error) {
	return GetOrCreate(conn, name, func(base *ActorProxyBase) *Thread {
		return &Thread{base: base}
	})
}

// Resume asks the engine to resume execution.
func (t *Thread) Resume(ctx context.Context) error {
	payload, _ := json.Marshal(map[string]any{"to": t.base.Name(), "type": "resume"})
	resp, err := t.base.sendRequest(ctx, payload)
	if err != nil {
		return err
	}
	if aerr, ok := resp.AsError(t.base.Name()).(*ActorError); ok && !aerr.Benign() {
		return aerr
	}
	return nil
}

// Step asks the engine to resume with the given step granularity.
func (t *Thread) Step(ctx context.Context, kind StepKind) error {
	payload, _ := json.Marshal(map[string]any{
		"to": t.base.Name(), "type": "resume", "resumeLimit": map[string]string{"type": string(kind)},
	})
	resp, err := t.base.sendRequest(ctx, payload)
	if err != nil {
		return err
	}
	return resp.AsError(t.base.Name())
}

// Interrupt asks the engine to pause at the next opportunity.
func (t *Thread) Interrupt(ctx context.Context) error {
	payload, _ := json.Marshal(map[string]any{"to": t.base.Name(), "type": "interrupt"})
	resp, err := t.base.sendRequest(ctx, payload)
	if err != nil {
		return err
	}
	return resp.AsError(t.base.Name())
}

// FrameLocation is the decoded `where` field of one stack frame.
type FrameLocation struct {
	SourceActor string `json:"actor"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
}

// Frame is one entry of a getFrames response.
type Frame struct {
	ActorID         string          `json:"actor"`
	Type            string          `json:"type"` // "call", "global", "eval", ...
	Where           FrameLocation   `json:"where"`
	DisplayName     string          `json:"displayName"`
	This            json.RawMessage `json:"this,omitempty"`
	IntroductionType string         `json:"introductionType,omitempty"`
}

// GetFrames fetches up to count frames starting at start (0 = innermost),
// called once per pause to prefetch the stack for stackTrace/scopes
// requests the editor has not yet made (spec.md §4.H step 6).
func (t *Thread) GetFrames(ctx context.Context, start, count int) ([]Frame, error) {
	payload, _ := json.Marshal(map[string]any{
		"to": t.base.Name(), "type": "frames", "start": start, "count": count,
	})
	resp, err := t.base.sendRequest(ctx, payload)
	if err != nil {
		return nil, err
	}
	if aerr := resp.AsError(t.base.Name()); aerr != nil {
		return nil, aerr
	}
	var out struct {
		Frames []Frame `json:"frames"`
	}
	if err := json.Unmarshal(resp.Raw, &out); err != nil {
		return nil, err
	}
	return out.Frames, nil
}

// ThreadConfiguration is the session-wide actor used to pre-stage a
// thread's pause-on-exceptions mode, skip-breakpoints flag, and event
// breakpoints before it is ever resumed (spec.md §3's ThreadConfigurator).
type ThreadConfiguration struct {
	base *ActorProxyBase
}

// NewThreadConfiguration constructs the proxy for the given actor name.
func NewThreadConfiguration(conn *Connection, name string) (*ThreadConfiguration, error) {
	return GetOrCreate(conn, name, func(base *ActorProxyBase) *ThreadConfiguration {
		return &ThreadConfiguration{base: base}
	})
}

// ExceptionMode selects which uncaught/caught exceptions pause execution.
type ExceptionMode struct {
	PauseOnExceptions      bool `json:"pauseOnExceptions"`
	IgnoreCaughtExceptions bool `json:"ignoreCaughtExceptions"`
}

// UpdateConfiguration pushes a batch of thread-wide options (exception
// mode, skip-breakpoints, event breakpoints) in one request.
func (c *ThreadConfiguration) UpdateConfiguration(ctx context.Context, options map[string]any) error {
	payload, _ := json.Marshal(map[string]any{
		"to": c.base.Name(), "type": "updateConfiguration", "configuration": options,
	})
	resp, err := c.base.sendRequest(ctx, payload)
	if err != nil {
		return err
	}
	return resp.AsError(c.base.Name())
}
