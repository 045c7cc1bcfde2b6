package transport

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriteThenReadPacket(t *testing.T) {
	buf := &bytes.Buffer{}
	f := New(buf)

	if err := f.WritePacket([]byte(`{"type":"hello"}`)); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}

	body, err := f.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if string(body) != `{"type":"hello"}` {
		t.Fatalf("got %q", body)
	}
}

func TestReadPacketSequence(t *testing.T) {
	buf := bytes.NewBufferString(`7:{"a":1}8:{"b":22}`)
	f := New(buf)

	first, err := f.ReadPacket()
	if err != nil || string(first) != `{"a":1}` {
		t.Fatalf("first packet: %q, %v", first, err)
	}
	second, err := f.ReadPacket()
	if err != nil || string(second) != `{"b":22}` {
		t.Fatalf("second packet: %q, %v", second, err)
	}
}

func TestReadPacketEndOfStream(t *testing.T) {
	buf := bytes.NewBufferString("")
	f := New(buf)

	_, err := f.ReadPacket()
	if !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}
}

func TestReadPacketTruncated(t *testing.T) {
	buf := bytes.NewBufferString(`10:{"a":1}`) // body shorter than declared length
	f := New(buf)

	_, err := f.ReadPacket()
	var te *TransportError
	if !errors.As(err, &te) || te.Kind != KindTruncated {
		t.Fatalf("expected KindTruncated, got %v", err)
	}
}

func TestReadPacketBadLength(t *testing.T) {
	buf := bytes.NewBufferString(`abc:{}`)
	f := New(buf)

	_, err := f.ReadPacket()
	var te *TransportError
	if !errors.As(err, &te) || te.Kind != KindDecode {
		t.Fatalf("expected KindDecode, got %v", err)
	}
}

func TestWriteAfterClose(t *testing.T) {
	buf := &bytes.Buffer{}
	f := New(buf)
	f.Close()

	err := f.WritePacket([]byte("{}"))
	var te *TransportError
	if !errors.As(err, &te) || te.Kind != KindClosed {
		t.Fatalf("expected KindClosed, got %v", err)
	}
}

func TestPump(t *testing.T) {
	buf := bytes.NewBufferString(`2:{}2:{}`)
	f := New(buf)
	ch := Pump(f)

	p1 := <-ch
	if p1.Err != nil {
		t.Fatalf("unexpected error: %v", p1.Err)
	}
	p2 := <-ch
	if p2.Err != nil {
		t.Fatalf("unexpected error: %v", p2.Err)
	}
	p3 := <-ch
	if !errors.Is(p3.Err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", p3.Err)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
}
