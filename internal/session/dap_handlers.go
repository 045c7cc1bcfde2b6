package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dbgbridge/dbgbridge/internal/breakpoints"
	"github.com/dbgbridge/dbgbridge/internal/dap"
	"github.com/dbgbridge/dbgbridge/internal/grip"
	"github.com/dbgbridge/dbgbridge/internal/rdp"
	"github.com/dbgbridge/dbgbridge/internal/sourcemap"
)

// frameRef resolves a DAP stackFrame id back to the owning thread and
// frame index within its last-prefetched stack.
type frameRef struct {
	threadID   int
	frameIndex int
}

// varRef resolves a DAP variablesReference back to the object grip actor
// it should be enumerated against, and the thread whose pause it is
// scoped to (spec.md §3's pause-lifetime invariant).
type varRef struct {
	threadID int
	actor    string
}

func (s *Session) entry(threadID int) (*threadEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("session: unknown thread %d", threadID)
	}
	return e, nil
}

// SetBreakpoints implements the "setBreakpoints" DAP request (spec.md
// §4.F): diffs against the manager's desired set for the source's local
// path and installs/removes across every source adapter currently mapped
// to it.
func (s *Session) SetBreakpoints(ctx context.Context, args dap.SetBreakpointsArguments) (dap.SetBreakpointsResponse, error) {
	path := args.Source.Path
	desired := make([]breakpoints.Desired, 0, len(args.Breakpoints))
	for _, bp := range args.Breakpoints {
		hitLimit, _ := strconv.Atoi(bp.HitCondition) // non-numeric or empty: 0, unconditional
		desired = append(desired, breakpoints.Desired{
			Location: breakpoints.Location{Path: path, Line: bp.Line, Column: bp.Column},
			Options:  breakpoints.Options{Condition: bp.Condition, LogMessage: bp.LogMessage, HitLimit: hitLimit},
		})
	}

	adapters := s.srcMgr.AdaptersForPath(path)
	refs := make([]breakpoints.SourceAdapter, len(adapters))
	for i, a := range adapters {
		refs[i] = sourceAdapterRef{sa: a}
	}

	s.mu.Lock()
	bpList := s.threadByBP
	s.mu.Unlock()
	if bpList == nil {
		return dap.SetBreakpointsResponse{}, fmt.Errorf("session: breakpoint list actor not yet available")
	}

	realized, err := s.bpMgr.SetBreakpoints(ctx, path, desired, refs, breakpointInstaller{bl: bpList, conn: s.conn, srcMgr: s.srcMgr})
	if err != nil {
		return dap.SetBreakpointsResponse{}, err
	}

	out := dap.SetBreakpointsResponse{Breakpoints: make([]dap.Breakpoint, len(realized))}
	for i, r := range realized {
		out.Breakpoints[i] = dap.Breakpoint{
			Verified: r.Verified, Line: r.ActualLine, Column: r.ActualColumn,
			Source: &dap.Source{Path: path},
		}
	}
	return out, nil
}

// Continue implements the "continue" DAP request.
func (s *Session) Continue(ctx context.Context, threadID int) error {
	e, err := s.entry(threadID)
	if err != nil {
		return err
	}
	return e.adapter.Resume(ctx)
}

// Next/StepIn/StepOut implement their respective DAP requests.
func (s *Session) Next(ctx context.Context, threadID int) error   { return s.step(ctx, threadID, rdp.StepNext) }
func (s *Session) StepIn(ctx context.Context, threadID int) error { return s.step(ctx, threadID, rdp.StepInto) }
func (s *Session) StepOut(ctx context.Context, threadID int) error { return s.step(ctx, threadID, rdp.StepFinish) }

func (s *Session) step(ctx context.Context, threadID int, kind rdp.StepKind) error {
	e, err := s.entry(threadID)
	if err != nil {
		return err
	}
	return e.adapter.Step(ctx, kind)
}

// Pause implements the "pause" DAP request.
func (s *Session) Pause(ctx context.Context, threadID int) error {
	e, err := s.entry(threadID)
	if err != nil {
		return err
	}
	return e.adapter.Interrupt(ctx)
}

// Threads implements the "threads" DAP request.
func (s *Session) Threads() dap.ThreadsResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := dap.ThreadsResponse{Threads: make([]dap.Thread, 0, len(s.threads))}
	for id, e := range s.threads {
		out.Threads = append(out.Threads, dap.Thread{ID: id, Name: e.adapter.Name})
	}
	return out
}

// StackTrace implements the "stackTrace" DAP request, applying each
// frame's source-map position rewrite (spec.md §4.E) against the frames
// prefetched at pause time — or fetched here directly via EnsureFrames if
// the asynchronous prefetch (spec.md §4.H step 6) hasn't completed yet.
func (s *Session) StackTrace(ctx context.Context, threadID int) (dap.StackTraceResponse, error) {
	e, err := s.entry(threadID)
	if err != nil {
		return dap.StackTraceResponse{}, err
	}
	frames, err := e.adapter.EnsureFrames(ctx)
	if err != nil {
		return dap.StackTraceResponse{}, err
	}
	out := dap.StackTraceResponse{TotalFrames: len(frames)}
	for i, f := range frames {
		loc := sourcemap.FrameLocation{Line: f.Where.Line, Column: f.Where.Column}
		var path string
		if sa, ok := s.srcMgr.Lookup(f.Where.SourceActor); ok {
			loc = s.srcMgr.ApplyToFrame(loc, sa)
			path = sa.LocalPath
		}
		id := s.internFrame(frameRef{threadID: threadID, frameIndex: i})
		name := f.DisplayName
		if name == "" {
			name = f.Type
		}
		out.StackFrames = append(out.StackFrames, dap.StackFrame{
			ID: id, Name: name, Line: loc.Line, Column: loc.Column,
			Source: &dap.Source{Path: path},
		})
	}
	return out, nil
}

// Scopes implements the "scopes" DAP request. Simplified to a single
// "Locals" scope bound to the frame's `this` grip, since a frame's full
// lexical environment chain is out of scope here (spec.md Non-goals:
// this bridge targets breakpoint/stepping workflows, not a full variable
// inspector).
func (s *Session) Scopes(ctx context.Context, frameID int) (dap.ScopesResponse, error) {
	ref, ok := s.lookupFrame(frameID)
	if !ok {
		return dap.ScopesResponse{}, fmt.Errorf("session: unknown frame %d", frameID)
	}
	e, err := s.entry(ref.threadID)
	if err != nil {
		return dap.ScopesResponse{}, err
	}
	frames, err := e.adapter.EnsureFrames(ctx)
	if err != nil {
		return dap.ScopesResponse{}, err
	}
	if ref.frameIndex >= len(frames) {
		return dap.ScopesResponse{}, fmt.Errorf("session: stale frame %d", frameID)
	}
	f := frames[ref.frameIndex]
	if len(f.This) == 0 {
		return dap.ScopesResponse{}, nil
	}
	var env struct {
		Actor string `json:"actor"`
	}
	if err := json.Unmarshal(f.This, &env); err != nil || env.Actor == "" {
		return dap.ScopesResponse{}, nil
	}
	vr := s.internVarRef(varRef{threadID: ref.threadID, actor: env.Actor})
	return dap.ScopesResponse{Scopes: []dap.Scope{{Name: "Locals", VariablesReference: vr}}}, nil
}

// Variables implements the "variables" DAP request: enumerates an object
// grip's own properties, recursively allocating a new variablesReference
// for any property whose value is itself an object grip.
func (s *Session) Variables(ctx context.Context, variablesReference int) (dap.VariablesResponse, error) {
	ref, ok := s.lookupVarRef(variablesReference)
	if !ok {
		return dap.VariablesResponse{}, fmt.Errorf("session: unknown variablesReference %d", variablesReference)
	}
	e, err := s.entry(ref.threadID)
	if err != nil {
		return dap.VariablesResponse{}, err
	}

	og, err := rdp.NewObjectGrip(s.conn, ref.actor)
	if err != nil {
		return dap.VariablesResponse{}, err
	}
	e.adapter.TrackPauseLifetime(ref.actor)

	props, err := og.Properties(ctx)
	if err != nil {
		return dap.VariablesResponse{}, err
	}

	out := dap.VariablesResponse{Variables: make([]dap.Variable, 0, len(props))}
	for _, p := range props {
		v := dap.Variable{Name: p.Name, Value: grip.PreviewText(p.Value)}
		if childActor, ok := objectGripActor(p.Value); ok {
			e.adapter.TrackPauseLifetime(childActor)
			v.VariablesReference = s.internVarRef(varRef{threadID: ref.threadID, actor: childActor})
		}
		out.Variables = append(out.Variables, v)
	}
	return out, nil
}

func objectGripActor(raw json.RawMessage) (string, bool) {
	var env struct {
		Type  string `json:"type"`
		Actor string `json:"actor"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Type != "object" || env.Actor == "" {
		return "", false
	}
	return env.Actor, true
}

// Evaluate implements the "evaluate" DAP request, targeting the frame
// named by FrameID when paused, or the session's most recently active
// thread's console for a "repl"/"watch" evaluation with no frame context.
func (s *Session) Evaluate(ctx context.Context, args dap.EvaluateArguments) (dap.EvaluateResponse, error) {
	var threadID int
	var frameActor string
	if args.FrameID != 0 {
		ref, ok := s.lookupFrame(args.FrameID)
		if !ok {
			return dap.EvaluateResponse{}, fmt.Errorf("session: unknown frame %d", args.FrameID)
		}
		threadID = ref.threadID
		if e, err := s.entry(threadID); err == nil {
			if frames, ferr := e.adapter.EnsureFrames(ctx); ferr == nil && ref.frameIndex < len(frames) {
				frameActor = frames[ref.frameIndex].ActorID
			}
		}
	} else {
		s.mu.Lock()
		threadID = s.activeID
		s.mu.Unlock()
	}

	e, err := s.entry(threadID)
	if err != nil {
		return dap.EvaluateResponse{}, err
	}
	result, err := e.console.Evaluate(ctx, args.Expression, frameActor)
	if err != nil {
		return dap.EvaluateResponse{}, err
	}
	if len(result.Exception) > 0 {
		return dap.EvaluateResponse{Result: grip.PreviewText(result.Exception)}, nil
	}
	resp := dap.EvaluateResponse{Result: grip.PreviewText(result.Result)}
	if childActor, ok := objectGripActor(result.Result); ok {
		e.adapter.TrackPauseLifetime(childActor)
		resp.VariablesReference = s.internVarRef(varRef{threadID: threadID, actor: childActor})
	}
	return resp, nil
}
