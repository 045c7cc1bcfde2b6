package session

import "testing"

func TestTabFilterMatches(t *testing.T) {
	cases := []struct {
		name   string
		filter TabFilter
		url    string
		want   bool
	}{
		{"no filter", TabFilter{}, "https://example.com", true},
		{"include hit", TabFilter{Include: []string{"example.com"}}, "https://example.com/page", true},
		{"include miss", TabFilter{Include: []string{"example.com"}}, "https://other.com", false},
		{"exclude wins", TabFilter{Include: []string{"example.com"}, Exclude: []string{"example.com/admin"}}, "https://example.com/admin", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.filter.matches(c.url); got != c.want {
				t.Errorf("matches(%q) = %v, want %v", c.url, got, c.want)
			}
		})
	}
}

func TestRefRegistryRoundTrip(t *testing.T) {
	s := &Session{frameRefs: make(map[int]frameRef), varRefs: make(map[int]varRef)}

	id := s.internFrame(frameRef{threadID: 1, frameIndex: 2})
	got, ok := s.lookupFrame(id)
	if !ok || got.threadID != 1 || got.frameIndex != 2 {
		t.Fatalf("lookupFrame(%d) = %+v, %v", id, got, ok)
	}

	vid := s.internVarRef(varRef{threadID: 1, actor: "server1.obj3"})
	vgot, ok := s.lookupVarRef(vid)
	if !ok || vgot.actor != "server1.obj3" {
		t.Fatalf("lookupVarRef(%d) = %+v, %v", vid, vgot, ok)
	}

	s.ResetRefs(1)
	if _, ok := s.lookupFrame(id); ok {
		t.Fatal("expected frame ref to be cleared after ResetRefs")
	}
	if _, ok := s.lookupVarRef(vid); ok {
		t.Fatal("expected var ref to be cleared after ResetRefs")
	}
}
