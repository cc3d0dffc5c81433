package textparts

import "testing"

func TestAppend_SingleSlot(t *testing.T) {
	s := New()
	if got := s.Append("m1", 0, "Hel"); got != "Hel" {
		t.Errorf("got %q, want Hel", got)
	}
	if got := s.Append("m1", 0, "lo"); got != "Hello" {
		t.Errorf("got %q, want Hello", got)
	}
}

func TestAppend_InterleavedSlots(t *testing.T) {
	s := New()
	s.Append("m1", 1, "world")
	s.Append("m1", 0, "hello ")
	s.Append("m1", 1, "!")
	if got := s.Text("m1"); got != "hello world!" {
		t.Errorf("got %q, want %q", got, "hello world!")
	}
}

func TestAppend_InterleavedItems(t *testing.T) {
	s := New()
	s.Append("a", 0, "one")
	s.Append("b", 0, "two")
	s.Append("a", 0, " more")
	if got := s.Text("a"); got != "one more" {
		t.Errorf("item a = %q, want %q", got, "one more")
	}
	if got := s.Text("b"); got != "two" {
		t.Errorf("item b = %q, want two", got)
	}
}

func TestReplace_SupersedesDeltas(t *testing.T) {
	s := New()
	s.Append("r1", 0, "I can")
	if got := s.Replace("r1", 0, "I cannot help with that."); got != "I cannot help with that." {
		t.Errorf("got %q after replace", got)
	}
	// replaying the same replacement is a no-op
	if got := s.Replace("r1", 0, "I cannot help with that."); got != "I cannot help with that." {
		t.Errorf("got %q after repeated replace", got)
	}
}

func TestReplace_WithoutPriorDeltas(t *testing.T) {
	s := New()
	if got := s.Replace("r1", 0, "final"); got != "final" {
		t.Errorf("got %q, want final", got)
	}
}

func TestText_UnknownItem(t *testing.T) {
	s := New()
	if got := s.Text("missing"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hell…"},
		{"héllo", 3, "hél…"},
		{"hello", 0, "hello"},
		{"hello", -1, "hello"},
	}
	for _, tc := range cases {
		if got := Truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestDelete(t *testing.T) {
	s := New()
	s.Append("a", 0, "x")
	s.Append("b", 0, "y")
	s.Delete("a")
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
	if got := s.Text("a"); got != "" {
		t.Errorf("deleted item text = %q, want empty", got)
	}
}
