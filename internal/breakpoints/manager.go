// Package breakpoints owns desired-versus-realized breakpoint state keyed
// by local source path (spec.md §4.F). Unlike the teacher's engine.Engine
// — which guards its rule set with an RWMutex because proxy handler
// goroutines call Evaluate concurrently — this manager is only ever
// called from the session orchestrator's single dispatcher goroutine
// (spec.md §5), so it carries no locks of its own, the same reasoning
// internal/rdp uses for ActorProxyBase.
package breakpoints

import (
	"context"
	"strconv"
)

// Location identifies a breakpoint position by local source path.
type Location struct {
	Path   string
	Line   int
	Column int
}

// Options carries the optional condition/logMessage/hitLimit behavior
// attached to one breakpoint (spec.md §3, §4.F).
type Options struct {
	Condition  string
	LogMessage string
	HitLimit   int // 0 means unconditional
}

// Desired is one breakpoint the editor wants set at Location.
type Desired struct {
	Location
	Options
}

// Realized is a breakpoint the manager has actually installed on at least
// one source adapter, with the engine's actual (possibly snapped)
// location and live hit-count state.
type Realized struct {
	Location
	Options
	ActualLine   int
	ActualColumn int
	Verified     bool
	HitCount     int
}

// SourceAdapter is the subset of sourcemap.SourceAdapter this package
// needs, kept as a local interface so breakpoints doesn't import rdp or
// sourcemap directly — it only needs an actor name to address a
// BreakpointLocation at.
type SourceAdapter interface {
	ActorName() string
}

// Installer is the session BreakpointList proxy (internal/rdp.
// BreakpointList implements this).
type Installer interface {
	SetBreakpoint(ctx context.Context, loc InstallLocation, opts Options) (InstallResult, error)
	RemoveBreakpoint(ctx context.Context, loc InstallLocation) error
}

// InstallLocation is the wire-level location passed to Installer — a
// source actor name plus line/column, mirroring rdp.BreakpointLocation's
// SourceID form.
type InstallLocation struct {
	SourceActor string
	Line        int
	Column      int
}

// InstallResult is the engine's realized location for one install call.
type InstallResult struct {
	ActualLine   int
	ActualColumn int
}

// Manager owns every path's desired and realized breakpoint lists.
type Manager struct {
	desired  map[string][]Desired
	realized map[string][]Realized
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{
		desired:  make(map[string][]Desired),
		realized: make(map[string][]Realized),
	}
}

// SetBreakpoints diffs desired against the currently realized set for
// path, installs additions and removes deletions across every adapter
// currently mapped to path, and returns the realized array in the
// original (desired) order — spec.md §4.F steps 1-4.
func (m *Manager) SetBreakpoints(ctx context.Context, path string, desired []Desired, adapters []SourceAdapter, installer Installer) ([]Realized, error) {
	prevByKey := make(map[string]Realized, len(m.realized[path]))
	for _, r := range m.realized[path] {
		prevByKey[bpKey(r.Location)] = r
	}

	wantKeys := make(map[string]bool, len(desired))
	for _, d := range desired {
		wantKeys[bpKey(d.Location)] = true
	}

	// Removals: realized breakpoints no longer desired.
	for key, prev := range prevByKey {
		if wantKeys[key] {
			continue
		}
		for _, a := range adapters {
			// Remove at the engine-realized position, not the editor's
			// desired one: for a source-mapped file the installer may have
			// translated Desired.Line/Column to a different generated
			// position, and ActualLine/ActualColumn records what actually
			// landed on the engine.
			if err := installer.RemoveBreakpoint(ctx, InstallLocation{
				SourceActor: a.ActorName(), Line: prev.ActualLine, Column: prev.ActualColumn,
			}); err != nil {
				return nil, err
			}
		}
	}

	out := make([]Realized, 0, len(desired))
	for _, d := range desired {
		key := bpKey(d.Location)
		if prev, ok := prevByKey[key]; ok {
			prev.Options = d.Options
			out = append(out, prev)
			continue
		}

		r := Realized{Location: d.Location, Options: d.Options}
		for _, a := range adapters {
			res, err := installer.SetBreakpoint(ctx, InstallLocation{
				SourceActor: a.ActorName(), Line: d.Line, Column: d.Column,
			}, d.Options)
			if err != nil {
				return nil, err
			}
			r.ActualLine, r.ActualColumn = res.ActualLine, res.ActualColumn
			r.Verified = true
		}
		out = append(out, r)
	}

	m.desired[path] = desired
	m.realized[path] = out
	return out, nil
}

// OnPaused implements the hit-count gate (spec.md §4.F, §4.H step 4): when
// a thread pauses at actualLine/actualColumn in path with why.type ==
// "breakpoint", this increments the matching realized breakpoint's hit
// count and reports whether the stop should be suppressed (hitCount <
// hitLimit) and auto-resumed.
func (m *Manager) OnPaused(path string, actualLine, actualColumn int) (suppress bool) {
	realized := m.realized[path]
	for i := range realized {
		r := &realized[i]
		if r.ActualLine != actualLine || r.ActualColumn != actualColumn {
			continue
		}
		if r.HitLimit <= 0 {
			return false
		}
		r.HitCount++
		return r.HitCount < r.HitLimit
	}
	return false
}

func bpKey(loc Location) string {
	return loc.Path + ":" + strconv.Itoa(loc.Line) + ":" + strconv.Itoa(loc.Column)
}
