package pause

import "testing"

func TestClassifyStopReason(t *testing.T) {
	cases := map[string]string{
		"exception":         "exception",
		"breakpoint":        "breakpoint",
		"debuggerStatement": "debugger statement",
		"interrupted":       "interrupt",
		"":                  "interrupt",
	}
	for in, want := range cases {
		if got := classifyStopReason(in); got != want {
			t.Errorf("classifyStopReason(%q) = %q, want %q", in, got, want)
		}
	}
}

type recordingSink struct {
	events []string
	bodies []any
}

func (s *recordingSink) Send(event string, body any) {
	s.events = append(s.events, event)
	s.bodies = append(s.bodies, body)
}

func TestAdapterPauseLifetimeClearedOnResume(t *testing.T) {
	a := &Adapter{ID: 1, state: StateRunning}
	a.TrackPauseLifetime("server1.obj3")
	a.state = StatePaused
	if !a.IsPauseLifetimeValid("server1.obj3") {
		t.Fatal("expected pause-lifetime actor to be valid while paused")
	}

	sink := &recordingSink{}
	a.sink = sink
	a.handleResumed()

	if a.IsPauseLifetimeValid("server1.obj3") {
		t.Fatal("pause-lifetime actor must be invalidated on resume")
	}
	if len(sink.events) != 1 || sink.events[0] != "continued" {
		t.Fatalf("expected exactly one continued event, got %v", sink.events)
	}
}

func TestAdapterNotPausedInvalidatesLifetime(t *testing.T) {
	a := &Adapter{ID: 1, state: StateRunning}
	a.TrackPauseLifetime("server1.obj3")
	if a.IsPauseLifetimeValid("server1.obj3") {
		t.Fatal("a running thread must not report any pause-lifetime actor as valid")
	}
}
