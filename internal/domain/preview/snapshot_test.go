package preview

import (
	"strings"
	"testing"
)

func TestBuild_PreviewBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetainedItems = 10
	cfg.MaxPreviewItems = 3
	a := New(testClock())
	for i := 0; i < 5; i++ {
		a.Apply(added("i"+string(rune('0'+i)), i, "message"), cfg)
	}

	s := a.Build(cfg)
	if len(s.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(s.Items))
	}
	if s.OverflowCount != 2 {
		t.Errorf("overflow = %d, want 2", s.OverflowCount)
	}
	if s.Items[0].ID != "i2" || s.Items[2].ID != "i4" {
		t.Errorf("window = %v, want the highest-index items", itemIDs(s))
	}
}

func TestBuild_TextTruncatedOnlyAtBuild(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTextChars = 5
	a := New(testClock())
	a.Apply(msgDelta("m1", 0, 0, "abcdefghij"), cfg)

	s := a.Build(cfg)
	if s.Items[0].Text != "abcde…" {
		t.Errorf("text = %q, want clipped", s.Items[0].Text)
	}

	// raising the limit later recovers the full text: accumulation kept it
	wide := cfg
	wide.MaxTextChars = 100
	s = a.Build(wide)
	if s.Items[0].Text != "abcdefghij" {
		t.Errorf("text = %q, want full text under wider limit", s.Items[0].Text)
	}
}

func TestBuild_EmptyAccumulator(t *testing.T) {
	a := New(testClock())
	s := a.Build(DefaultConfig())
	if s.HasContent {
		t.Error("empty accumulator has no content")
	}
	if len(s.Items) != 0 || s.OverflowCount != 0 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestBuild_NoSideEffects(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	a.Apply(added("m1", 0, "message"), cfg)
	a.ClearDirty()

	one := snapshotFingerprintOf(t, a.Build(cfg))
	two := snapshotFingerprintOf(t, a.Build(cfg))
	if one != two {
		t.Errorf("builds differ:\n%s\n%s", one, two)
	}
	if a.Dirty() {
		t.Error("Build must not dirty the accumulator")
	}
}

func TestBuild_ReplacesWholesale(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	a.Apply(added("m1", 0, "message"), cfg)
	first := a.Build(cfg)
	second := a.Build(cfg)
	if first == second {
		t.Error("each build must return a fresh snapshot value")
	}
}

func TestConfig_Clamp(t *testing.T) {
	c := Config{MaxRetainedItems: 2, MaxPreviewItems: 8}.Clamp()
	if c.MaxRetainedItems != 8 {
		t.Errorf("retained = %d, want clamped to 8", c.MaxRetainedItems)
	}
	c = Config{MaxRetainedItems: 10, MaxPreviewItems: 4}.Clamp()
	if c.MaxRetainedItems != 10 {
		t.Errorf("retained = %d, want unchanged", c.MaxRetainedItems)
	}
}

func TestEmptySnapshot(t *testing.T) {
	if Empty.HasContent || len(Empty.Items) != 0 {
		t.Errorf("Empty = %+v", Empty)
	}
	if Empty.Items == nil {
		t.Error("Empty.Items should marshal as [], not null")
	}
}

func snapshotFingerprintOf(t *testing.T, s *Snapshot) string {
	t.Helper()
	var b strings.Builder
	for _, it := range s.Items {
		b.WriteString(it.ID + "|" + string(it.Type) + "|" + it.Text + "\n")
	}
	return b.String()
}
