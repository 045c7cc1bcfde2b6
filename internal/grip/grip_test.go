package grip

import "testing"

func TestPreviewTextErrorObject(t *testing.T) {
	raw := []byte(`{"type":"object","class":"Error","preview":{"kind":"Error","name":"Error","message":"x"}}`)
	if got, want := PreviewText(raw), "Error: x"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPreviewTextErrorObjectNoMessage(t *testing.T) {
	raw := []byte(`{"type":"object","class":"Error","preview":{"kind":"Error","name":"TypeError"}}`)
	if got, want := PreviewText(raw), "TypeError"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPreviewTextObjectWithoutPreview(t *testing.T) {
	raw := []byte(`{"type":"object","class":"Array"}`)
	if got, want := PreviewText(raw), "[object Array]"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPreviewTextPrimitives(t *testing.T) {
	cases := map[string]string{
		`"boom"`: "boom",
		`42`:     "42",
		`true`:   "true",
		`false`:  "false",
	}
	for raw, want := range cases {
		if got := PreviewText([]byte(raw)); got != want {
			t.Fatalf("PreviewText(%s) = %q, want %q", raw, got, want)
		}
	}
}

func TestPreviewTextEmpty(t *testing.T) {
	if got := PreviewText(nil); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
