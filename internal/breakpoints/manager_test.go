package breakpoints

import (
	"context"
	"testing"
)

type fakeInstaller struct {
	sets    int
	removes int
}

func (f *fakeInstaller) SetBreakpoint(ctx context.Context, loc InstallLocation, opts Options) (InstallResult, error) {
	f.sets++
	return InstallResult{ActualLine: loc.Line, ActualColumn: loc.Column}, nil
}

func (f *fakeInstaller) RemoveBreakpoint(ctx context.Context, loc InstallLocation) error {
	f.removes++
	return nil
}

type fakeAdapter struct{ name string }

func (a fakeAdapter) ActorName() string { return a.name }

func TestSetBreakpointsInstallsAndReturnsOriginalOrder(t *testing.T) {
	m := NewManager()
	inst := &fakeInstaller{}
	adapters := []SourceAdapter{fakeAdapter{"source1"}}

	desired := []Desired{
		{Location: Location{Path: "s.js", Line: 10}},
		{Location: Location{Path: "s.js", Line: 3}},
	}
	out, err := m.SetBreakpoints(context.Background(), "s.js", desired, adapters, inst)
	if err != nil {
		t.Fatalf("SetBreakpoints: %v", err)
	}
	if len(out) != 2 || out[0].Line != 10 || out[1].Line != 3 {
		t.Fatalf("expected realized breakpoints in desired order, got %+v", out)
	}
	if !out[0].Verified || !out[1].Verified {
		t.Fatalf("expected both breakpoints verified")
	}
	if inst.sets != 2 {
		t.Fatalf("expected 2 installs, got %d", inst.sets)
	}
}

func TestSetBreakpointsDiffsRemovalsAndAdditions(t *testing.T) {
	m := NewManager()
	inst := &fakeInstaller{}
	adapters := []SourceAdapter{fakeAdapter{"source1"}}

	_, err := m.SetBreakpoints(context.Background(), "s.js", []Desired{
		{Location: Location{Path: "s.js", Line: 1}},
		{Location: Location{Path: "s.js", Line: 2}},
	}, adapters, inst)
	if err != nil {
		t.Fatalf("first SetBreakpoints: %v", err)
	}
	if inst.sets != 2 {
		t.Fatalf("expected 2 installs after first call, got %d", inst.sets)
	}

	// Second call drops line 1, keeps line 2, adds line 3.
	out, err := m.SetBreakpoints(context.Background(), "s.js", []Desired{
		{Location: Location{Path: "s.js", Line: 2}},
		{Location: Location{Path: "s.js", Line: 3}},
	}, adapters, inst)
	if err != nil {
		t.Fatalf("second SetBreakpoints: %v", err)
	}
	if inst.removes != 1 {
		t.Fatalf("expected 1 removal, got %d", inst.removes)
	}
	if inst.sets != 3 {
		t.Fatalf("expected 1 new install on top of the prior 2, got %d", inst.sets)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 realized breakpoints, got %d", len(out))
	}
}

// TestHitCountSuppressesUntilLimit mirrors spec.md scenario S1: a
// breakpoint with hitLimit=3 suppresses the first two stops and
// surfaces the third.
func TestHitCountSuppressesUntilLimit(t *testing.T) {
	m := NewManager()
	inst := &fakeInstaller{}
	adapters := []SourceAdapter{fakeAdapter{"source1"}}

	_, err := m.SetBreakpoints(context.Background(), "s.js", []Desired{
		{Location: Location{Path: "s.js", Line: 5}, Options: Options{HitLimit: 3}},
	}, adapters, inst)
	if err != nil {
		t.Fatalf("SetBreakpoints: %v", err)
	}

	var suppressed []bool
	for i := 0; i < 3; i++ {
		suppressed = append(suppressed, m.OnPaused("s.js", 5, 0))
	}
	want := []bool{true, true, false}
	for i, w := range want {
		if suppressed[i] != w {
			t.Fatalf("hit %d: got suppress=%v, want %v", i+1, suppressed[i], w)
		}
	}
}

func TestOnPausedUnconditionalBreakpointNeverSuppresses(t *testing.T) {
	m := NewManager()
	inst := &fakeInstaller{}
	adapters := []SourceAdapter{fakeAdapter{"source1"}}

	_, err := m.SetBreakpoints(context.Background(), "s.js", []Desired{
		{Location: Location{Path: "s.js", Line: 5}},
	}, adapters, inst)
	if err != nil {
		t.Fatalf("SetBreakpoints: %v", err)
	}
	if m.OnPaused("s.js", 5, 0) {
		t.Fatalf("unconditional breakpoint must never be suppressed")
	}
}

// remappingInstaller simulates a source-map-backed install where the
// engine-realized position differs from the editor-desired one, so a
// later removal must target the realized position, not the desired one.
type remappingInstaller struct {
	removedAt InstallLocation
}

func (i *remappingInstaller) SetBreakpoint(ctx context.Context, loc InstallLocation, opts Options) (InstallResult, error) {
	return InstallResult{ActualLine: loc.Line + 100, ActualColumn: loc.Column}, nil
}

func (i *remappingInstaller) RemoveBreakpoint(ctx context.Context, loc InstallLocation) error {
	i.removedAt = loc
	return nil
}

func TestSetBreakpointsRemovesAtRealizedPosition(t *testing.T) {
	m := NewManager()
	inst := &remappingInstaller{}
	adapters := []SourceAdapter{fakeAdapter{"source1"}}

	_, err := m.SetBreakpoints(context.Background(), "s.ts", []Desired{
		{Location: Location{Path: "s.ts", Line: 5}},
	}, adapters, inst)
	if err != nil {
		t.Fatalf("SetBreakpoints: %v", err)
	}

	// Drop the only breakpoint; removal must target line 105 (the
	// engine-realized position), not the desired line 5.
	_, err = m.SetBreakpoints(context.Background(), "s.ts", nil, adapters, inst)
	if err != nil {
		t.Fatalf("second SetBreakpoints: %v", err)
	}
	if inst.removedAt.Line != 105 {
		t.Fatalf("expected removal at realized line 105, got %d", inst.removedAt.Line)
	}
}

func TestOnPausedNoMatchReturnsFalse(t *testing.T) {
	m := NewManager()
	if m.OnPaused("unknown.js", 1, 0) {
		t.Fatalf("expected no suppression for an unrealized location")
	}
}
