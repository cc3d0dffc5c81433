package preview

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/domain/toolcall"
)

func testClock() func() time.Time {
	t := time.Unix(1700000000, 0)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func added(id string, idx int, itemType string) event.ItemAdded {
	return event.ItemAdded{Meta: event.Meta{ItemID: id, OutputIndex: idx}, ItemType: itemType}
}

func done(id string, idx int) event.ItemDone {
	return event.ItemDone{Meta: event.Meta{ItemID: id, OutputIndex: idx}}
}

func msgDelta(id string, idx, ci int, text string) event.MessageDelta {
	return event.MessageDelta{Meta: event.Meta{ItemID: id, OutputIndex: idx}, ContentIndex: ci, Delta: text}
}

func applyAll(a *Accumulator, cfg Config, events ...event.Event) {
	for _, ev := range events {
		a.Apply(ev, cfg)
	}
}

// --- Scenarios ---

func TestApply_BasicMessage(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	applyAll(a, cfg,
		added("m1", 0, "message"),
		msgDelta("m1", 0, 0, "Hel"),
		msgDelta("m1", 0, 0, "lo"),
		done("m1", 0),
	)

	s := a.Build(cfg)
	if len(s.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(s.Items))
	}
	it := s.Items[0]
	if it.Type != ItemMessage || it.Text != "Hello" || !it.Done {
		t.Errorf("item = %+v, want done message %q", it, "Hello")
	}
	if !s.HasContent {
		t.Error("snapshot should have content")
	}
}

func TestApply_ToolPlaceholderThenResult(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())

	a.Apply(added("t1", 0, "web_search_call"), cfg)
	s := a.Build(cfg)
	if len(s.Items) != 1 || s.Items[0].Type != ItemTool {
		t.Fatalf("items = %+v, want one tool item", s.Items)
	}
	if s.Items[0].Tool.Status != toolcall.StatusRunning {
		t.Errorf("placeholder status = %q, want running", s.Items[0].Tool.Status)
	}
	if s.Items[0].Tool.Output != "" {
		t.Errorf("placeholder output = %q, want empty", s.Items[0].Tool.Output)
	}

	a.Apply(event.ToolStatus{
		Meta: event.Meta{ItemID: "t1", OutputIndex: 0},
		Tool: event.Tool{Kind: event.ToolWebSearch, Status: "completed", Query: "q"},
	}, cfg)
	s = a.Build(cfg)
	tool := s.Items[0].Tool
	if tool.Status != toolcall.StatusDone || tool.Input != "q" {
		t.Errorf("tool = %+v, want done with input q", tool)
	}
	if tool.Label != "Web search" {
		t.Errorf("label = %q, want Web search", tool.Label)
	}
}

func TestApply_ToolWinsOverText(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	applyAll(a, cfg,
		msgDelta("x1", 0, 0, "stray text"),
		event.ToolStatus{
			Meta: event.Meta{ItemID: "x1", OutputIndex: 0},
			Tool: event.Tool{Kind: event.ToolFunction, Name: "lookup"},
		},
	)

	s := a.Build(cfg)
	if s.Items[0].Type != ItemTool {
		t.Errorf("type = %q, want tool precedence", s.Items[0].Type)
	}
	if s.Items[0].Text != "" {
		t.Errorf("text = %q, want empty on tool item", s.Items[0].Text)
	}
}

func TestApply_RefusalReplacementWins(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	applyAll(a, cfg,
		event.RefusalDelta{Meta: event.Meta{ItemID: "r1"}, ContentIndex: 0, Delta: "I ca"},
		event.RefusalDelta{Meta: event.Meta{ItemID: "r1"}, ContentIndex: 0, Delta: "nnot"},
		event.RefusalDone{Meta: event.Meta{ItemID: "r1"}, ContentIndex: 0, Text: "I must decline."},
	)

	s := a.Build(cfg)
	if s.Items[0].Type != ItemRefusal || s.Items[0].Text != "I must decline." {
		t.Errorf("item = %+v, want refusal with final text", s.Items[0])
	}
}

func TestApply_ToolArgsStream(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	applyAll(a, cfg,
		event.ToolArgsDelta{Meta: event.Meta{ItemID: "f1", OutputIndex: 0}, Delta: `{"city":`},
		event.ToolArgsDelta{Meta: event.Meta{ItemID: "f1", OutputIndex: 0}, Delta: `"Oslo"}`},
	)
	s := a.Build(cfg)
	if s.Items[0].Tool == nil || s.Items[0].Tool.Input != `{"city":"Oslo"}` {
		t.Fatalf("item = %+v, want assembled tool input", s.Items[0])
	}
	if s.Items[0].Tool.Status != toolcall.StatusRunning {
		t.Errorf("status = %q, want running default", s.Items[0].Tool.Status)
	}

	a.Apply(event.ToolArgsDone{Meta: event.Meta{ItemID: "f1", OutputIndex: 0}, Arguments: `{"city":"Bergen"}`}, cfg)
	s = a.Build(cfg)
	if s.Items[0].Tool.Input != `{"city":"Bergen"}` {
		t.Errorf("input = %q, want final arguments", s.Items[0].Tool.Input)
	}
}

func TestApply_ToolOutputSetsTerminalStatus(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	a.Apply(added("t1", 0, "code_interpreter_call"), cfg)

	a.Apply(event.ToolOutput{Meta: event.Meta{ItemID: "t1", OutputIndex: 0}, Output: strings.Repeat("x", 10000)}, cfg)
	s := a.Build(cfg)
	if s.Items[0].Tool.Status != toolcall.StatusDone {
		t.Errorf("status = %q, want done", s.Items[0].Tool.Status)
	}
	if s.Items[0].Tool.Output != "" {
		t.Error("preview must not retain tool output text")
	}

	a.Apply(event.ToolOutput{Meta: event.Meta{ItemID: "t1", OutputIndex: 0}, Error: "boom"}, cfg)
	if s := a.Build(cfg); s.Items[0].Tool.Status != toolcall.StatusError {
		t.Errorf("status = %q, want error", s.Items[0].Tool.Status)
	}
}

func TestApply_ToolInputTruncatedDuringAccumulation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxToolInputChars = 8
	a := New(testClock())
	applyAll(a, cfg,
		event.ToolArgsDelta{Meta: event.Meta{ItemID: "f1"}, Delta: "0123456"},
		event.ToolArgsDelta{Meta: event.Meta{ItemID: "f1"}, Delta: "789abc"},
	)
	s := a.Build(cfg)
	if got := s.Items[0].Tool.Input; got != "01234567…" {
		t.Errorf("input = %q, want clipped with ellipsis", got)
	}
}

func TestApply_Lifecycle(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	a.Apply(event.Lifecycle{Status: "running"}, cfg)

	s := a.Build(cfg)
	if s.Lifecycle != "running" {
		t.Errorf("lifecycle = %q, want running", s.Lifecycle)
	}
	if !s.HasContent {
		t.Error("lifecycle alone should count as content")
	}
	if len(s.Items) != 0 {
		t.Errorf("items = %d, want 0", len(s.Items))
	}
}

func TestApply_IgnoredKinds(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	applyAll(a, cfg,
		event.ReasoningDelta{Meta: event.Meta{ItemID: "x"}, Delta: "thinking"},
		event.ChunkDelta{Meta: event.Meta{ItemID: "x"}, EntityKind: "tool_call", Data: "AAAA"},
		event.Final{},
		event.RunError{Message: "boom"},
		event.Unknown{RawKind: "future.kind"},
		event.MessageDelta{ContentIndex: 0, Delta: "no item id"},
	)

	if a.Dirty() {
		t.Error("ignored kinds must not dirty the accumulator")
	}
	if s := a.Build(cfg); s.HasContent || len(s.Items) != 0 {
		t.Errorf("snapshot = %+v, want empty", s)
	}
}

// --- Ordering ---

func TestApply_OrderByOutputIndex(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	applyAll(a, cfg,
		added("c", 5, "message"),
		added("a", 1, "message"),
		added("b", 3, "message"),
	)
	s := a.Build(cfg)
	if s.Items[0].ID != "a" || s.Items[1].ID != "b" || s.Items[2].ID != "c" {
		t.Errorf("order = %v", itemIDs(s))
	}
}

func TestApply_TiesKeepFirstSeenOrder(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	applyAll(a, cfg,
		added("first", 2, "message"),
		added("second", 2, "message"),
	)
	s := a.Build(cfg)
	if s.Items[0].ID != "first" || s.Items[1].ID != "second" {
		t.Errorf("order = %v, want first-seen tie order", itemIDs(s))
	}
}

func TestApply_RepositionOnNewIndex(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	applyAll(a, cfg,
		added("a", 0, "message"),
		added("b", 1, "message"),
		// the done event carries the corrected final position
		done("a", 5),
	)
	s := a.Build(cfg)
	if s.Items[0].ID != "b" || s.Items[1].ID != "a" {
		t.Errorf("order = %v, want b before repositioned a", itemIDs(s))
	}
}

func TestApply_OrderIndependence(t *testing.T) {
	cfg := DefaultConfig()

	// per-item sequences; deltas within one item must keep relative order
	sequences := [][]event.Event{
		{added("m1", 2, "message"), msgDelta("m1", 2, 0, "Hel"), msgDelta("m1", 2, 0, "lo"), done("m1", 2)},
		{added("m2", 0, "message"), msgDelta("m2", 0, 0, "wor"), msgDelta("m2", 0, 0, "ld")},
		{added("t1", 1, "web_search_call"), event.ToolStatus{
			Meta: event.Meta{ItemID: "t1", OutputIndex: 1},
			Tool: event.Tool{Kind: event.ToolWebSearch, Status: "completed", Query: "q"},
		}},
	}

	reference := snapshotFingerprint(t, cfg, flatten(sequences))

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		shuffled := interleave(rng, sequences)
		if got := snapshotFingerprint(t, cfg, shuffled); got != reference {
			t.Fatalf("trial %d: fingerprint %q != reference %q", trial, got, reference)
		}
	}
}

// --- Retention ---

func TestEvict_RetentionBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetainedItems = 4
	cfg.MaxPreviewItems = 2
	a := New(testClock())

	ids := []string{"i0", "i1", "i2", "i3", "i4", "i5", "i6"}
	for i, id := range ids {
		a.Apply(added(id, i, "web_search_call"), cfg)
		a.Apply(event.ToolArgsDelta{Meta: event.Meta{ItemID: id, OutputIndex: i}, Delta: "in"}, cfg)
	}

	if a.Len() != 4 {
		t.Fatalf("retained = %d, want 4", a.Len())
	}
	// the three oldest are fully purged, including side state
	for _, id := range ids[:3] {
		if a.order.Contains(id) {
			t.Errorf("%s still in order list", id)
		}
		if _, ok := a.tools[id]; ok {
			t.Errorf("%s still has tool state", id)
		}
		if _, ok := a.meta[id]; ok {
			t.Errorf("%s still has meta", id)
		}
		if a.inputs.Text(id) != "" {
			t.Errorf("%s still has input text", id)
		}
	}

	s := a.Build(cfg)
	if len(s.Items) != 2 || s.OverflowCount != 2 {
		t.Errorf("preview = %d items overflow %d, want 2/2", len(s.Items), s.OverflowCount)
	}
	if s.Items[0].ID != "i5" || s.Items[1].ID != "i6" {
		t.Errorf("preview shows %v, want newest two", itemIDs(s))
	}
}

// --- Dirty tracking ---

func TestDirty_Lifecycle(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	if a.Dirty() {
		t.Fatal("fresh accumulator must be clean")
	}
	a.Apply(added("m1", 0, "message"), cfg)
	if !a.Dirty() {
		t.Fatal("apply must dirty the accumulator")
	}
	a.ClearDirty()
	if a.Dirty() {
		t.Fatal("ClearDirty must reset the flag")
	}
}

func TestLastUpdated_Advances(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testClock())
	a.Apply(added("m1", 0, "message"), cfg)
	first := a.Build(cfg).LastUpdated
	a.Apply(msgDelta("m1", 0, 0, "x"), cfg)
	second := a.Build(cfg).LastUpdated
	if !second.After(first) {
		t.Errorf("lastUpdated did not advance: %v then %v", first, second)
	}
}

// --- helpers ---

func itemIDs(s *Snapshot) []string {
	ids := make([]string, len(s.Items))
	for i, it := range s.Items {
		ids[i] = it.ID
	}
	return ids
}

func flatten(sequences [][]event.Event) []event.Event {
	var out []event.Event
	for _, seq := range sequences {
		out = append(out, seq...)
	}
	return out
}

// interleave merges the sequences in random order while preserving each
// sequence's internal order.
func interleave(rng *rand.Rand, sequences [][]event.Event) []event.Event {
	queues := make([][]event.Event, len(sequences))
	total := 0
	for i, seq := range sequences {
		queues[i] = seq
		total += len(seq)
	}
	out := make([]event.Event, 0, total)
	for len(out) < total {
		i := rng.Intn(len(queues))
		if len(queues[i]) == 0 {
			continue
		}
		out = append(out, queues[i][0])
		queues[i] = queues[i][1:]
	}
	return out
}

func snapshotFingerprint(t *testing.T, cfg Config, events []event.Event) string {
	t.Helper()
	a := New(testClock())
	applyAll(a, cfg, events...)
	s := a.Build(cfg)
	var b strings.Builder
	for _, it := range s.Items {
		b.WriteString(it.ID)
		b.WriteString("|")
		b.WriteString(string(it.Type))
		b.WriteString("|")
		b.WriteString(it.Text)
		if it.Tool != nil {
			b.WriteString("|")
			b.WriteString(it.Tool.Label)
			b.WriteString("/")
			b.WriteString(string(it.Tool.Status))
			b.WriteString("/")
			b.WriteString(it.Tool.Input)
		}
		if it.Done {
			b.WriteString("|done")
		}
		b.WriteString("\n")
	}
	return b.String()
}
