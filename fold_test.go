package ircx

import "testing"

func TestFold(t *testing.T) {
	cases := map[string]string{
		"NickName":  "nickname",
		"[Away]":    "{away}",
		`nick\away`: "nick|away",
		"nick~":     "nick^",
		"{already}": "{already}",
		"#Chan-123": "#chan-123",
		"русский":   "русский",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Fatalf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
	if !foldEqual("NICK[1]", "nick{1}") {
		t.Fatal("NICK[1] and nick{1} should compare equal")
	}
	if foldEqual("nick", "nack") {
		t.Fatal("nick and nack should not compare equal")
	}
}

func TestFoldedSet(t *testing.T) {
	s := newFoldedSet()
	s.Add("#Chan")
	if !s.Has("#CHAN") {
		t.Fatal("#CHAN should be present")
	}
	if !s.Has("#chan") {
		t.Fatal("#chan should be present")
	}
	values := s.Values()
	if len(values) != 1 || values[0] != "#Chan" {
		t.Fatalf("Values() = %v, want original spelling", values)
	}
	s.Add("#chan")
	if len(s.Values()) != 1 {
		t.Fatal("re-adding under different case should not grow the set")
	}
	s.Remove("#CHAN")
	if s.Has("#chan") {
		t.Fatal("#chan should be gone")
	}
}
