package trace

import (
	"encoding/json"
	"testing"
)

func TestRecordAndTail(t *testing.T) {
	l, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	l.Record(DirEditorRequest, "", "setBreakpoints", json.RawMessage(`{"line":10}`))
	l.Record(DirEngineRequest, "server1.thread3", "resume", nil)
	l.Record(DirEngineEvent, "server1.thread3", "paused", json.RawMessage(`{"why":{"type":"breakpoint"}}`))

	entries, err := l.Tail(10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[len(entries)-1].Kind != "paused" {
		t.Errorf("expected last entry to be 'paused', got %q", entries[len(entries)-1].Kind)
	}
}

func TestQueryByActor(t *testing.T) {
	l, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	l.Record(DirEngineRequest, "server1.thread3", "resume", nil)
	l.Record(DirEngineRequest, "server1.thread4", "resume", nil)

	entries, err := l.Query(QueryParams{Actor: "server1.thread3"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].Actor != "server1.thread3" {
		t.Fatalf("expected exactly one entry for server1.thread3, got %+v", entries)
	}
}
