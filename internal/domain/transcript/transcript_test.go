package transcript

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/domain/toolcall"
)

func added(rid, id string, idx int, itemType string) event.ItemAdded {
	return event.ItemAdded{Meta: event.Meta{ResponseID: rid, ItemID: id, OutputIndex: idx}, ItemType: itemType}
}

func done(rid, id string, idx int) event.ItemDone {
	return event.ItemDone{Meta: event.Meta{ResponseID: rid, ItemID: id, OutputIndex: idx}}
}

func msgDelta(rid, id string, idx, ci int, text string) event.MessageDelta {
	return event.MessageDelta{Meta: event.Meta{ResponseID: rid, ItemID: id, OutputIndex: idx}, ContentIndex: ci, Delta: text}
}

// --- Scenarios ---

func TestBuild_BasicMessage(t *testing.T) {
	segs := Build([]event.Event{
		added("r1", "m1", 0, "message"),
		msgDelta("r1", "m1", 0, 0, "Hel"),
		msgDelta("r1", "m1", 0, 0, "lo"),
		done("r1", "m1", 0),
	})

	if len(segs) != 1 {
		t.Fatalf("segments = %d, want 1", len(segs))
	}
	seg := segs[0]
	if seg.Key != "r1" || seg.ResponseID != "r1" {
		t.Errorf("segment key = %q/%q, want r1", seg.Key, seg.ResponseID)
	}
	if len(seg.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(seg.Items))
	}
	it := seg.Items[0]
	if it.Type != ItemMessage || it.Text != "Hello" || !it.Done {
		t.Errorf("item = %+v, want done message %q", it, "Hello")
	}
}

func TestBuild_SegmentsByResponseID(t *testing.T) {
	wf := &event.Context{WorkflowKey: "wf1", StageName: "draft"}
	segs := Build([]event.Event{
		added("r1", "a", 0, "message"),
		added("r2", "b", 0, "message"),
		// later r1 event carries the header fields the first one lacked
		event.MessageDelta{
			Meta:  event.Meta{ResponseID: "r1", ItemID: "a", Agent: "writer", Workflow: wf},
			Delta: "hi",
		},
	})

	if len(segs) != 2 {
		t.Fatalf("segments = %d, want 2", len(segs))
	}
	if segs[0].Key != "r1" || segs[1].Key != "r2" {
		t.Errorf("segment order = %q, %q, want first-seen r1, r2", segs[0].Key, segs[1].Key)
	}
	if segs[0].Agent != "writer" {
		t.Errorf("agent = %q, want absorbed from later event", segs[0].Agent)
	}
	if segs[0].Workflow == nil || segs[0].Workflow.StageName != "draft" {
		t.Errorf("workflow = %+v, want absorbed context", segs[0].Workflow)
	}
	if segs[1].Agent != "" || segs[1].Workflow != nil {
		t.Errorf("r2 header = %q/%+v, want untouched", segs[1].Agent, segs[1].Workflow)
	}
}

func TestBuild_UnknownSegmentKeys(t *testing.T) {
	segs := Build([]event.Event{
		msgDelta("", "a", 0, 0, "x"),
		msgDelta("", "b", 0, 0, "y"),
	})

	if len(segs) != 2 {
		t.Fatalf("segments = %d, want 2", len(segs))
	}
	if segs[0].Key != "unknown-0" || segs[1].Key != "unknown-1" {
		t.Errorf("keys = %q, %q, want sequential unknown keys", segs[0].Key, segs[1].Key)
	}
	if segs[0].ResponseID != "" {
		t.Errorf("response id = %q, want empty", segs[0].ResponseID)
	}
}

func TestBuild_EmptySegmentsOmitted(t *testing.T) {
	segs := Build([]event.Event{
		// no item id: creates the segment but never an item
		event.ItemAdded{Meta: event.Meta{ResponseID: "r1"}, ItemType: "message"},
		event.ReasoningDelta{Meta: event.Meta{ResponseID: "r2"}, Delta: "thinking"},
	})

	if len(segs) != 1 {
		t.Fatalf("segments = %d, want only the reasoning turn", len(segs))
	}
	if segs[0].Key != "r2" || segs[0].Reasoning != "thinking" {
		t.Errorf("segment = %+v, want r2 with reasoning text", segs[0])
	}
}

func TestBuild_TerminalSignalsIgnored(t *testing.T) {
	segs := Build([]event.Event{
		event.Final{Meta: event.Meta{ResponseID: "r1"}, Status: "completed"},
		event.RunError{Meta: event.Meta{ResponseID: "r1"}, Message: "boom"},
		event.Lifecycle{Meta: event.Meta{ResponseID: "r1"}, Status: "running"},
		event.Unknown{RawKind: "future.kind"},
	})
	if len(segs) != 0 {
		t.Errorf("segments = %d, want none from terminal and status signals", len(segs))
	}
}

func TestBuild_ReasoningSummary(t *testing.T) {
	segs := Build([]event.Event{
		event.ReasoningDelta{Meta: event.Meta{ResponseID: "r1"}, Delta: "first "},
		event.ReasoningDelta{Meta: event.Meta{ResponseID: "r1"}, Delta: "second"},
	})
	if len(segs) != 1 || segs[0].Reasoning != "first second" {
		t.Fatalf("segments = %+v, want one with concatenated reasoning", segs)
	}
}

func TestBuild_RefusalReplacementWins(t *testing.T) {
	segs := Build([]event.Event{
		event.RefusalDelta{Meta: event.Meta{ResponseID: "r1", ItemID: "x"}, ContentIndex: 0, Delta: "I ca"},
		event.RefusalDelta{Meta: event.Meta{ResponseID: "r1", ItemID: "x"}, ContentIndex: 0, Delta: "nnot"},
		event.RefusalDone{Meta: event.Meta{ResponseID: "r1", ItemID: "x"}, ContentIndex: 0, Text: "I must decline."},
	})
	it := segs[0].Items[0]
	if it.Type != ItemRefusal || it.Text != "I must decline." {
		t.Errorf("item = %+v, want refusal with final text", it)
	}
}

func TestBuild_ToolWinsOverText(t *testing.T) {
	segs := Build([]event.Event{
		msgDelta("r1", "x1", 0, 0, "stray"),
		event.ToolStatus{
			Meta: event.Meta{ResponseID: "r1", ItemID: "x1"},
			Tool: event.Tool{Kind: event.ToolFunction, Name: "lookup"},
		},
	})
	if segs[0].Items[0].Type != ItemTool {
		t.Errorf("type = %q, want tool precedence", segs[0].Items[0].Type)
	}
}

// --- Tool calls ---

func TestBuild_ToolLifecycleKeepsOutput(t *testing.T) {
	long := strings.Repeat("x", 10000)
	segs := Build([]event.Event{
		added("r1", "t1", 0, "web_search_call"),
		event.ToolStatus{
			Meta: event.Meta{ResponseID: "r1", ItemID: "t1"},
			Tool: event.Tool{Kind: event.ToolWebSearch, Status: "completed", Query: "q"},
		},
		event.ToolOutput{Meta: event.Meta{ResponseID: "r1", ItemID: "t1"}, Output: long},
	})

	tool := segs[0].Items[0].Tool
	if tool == nil {
		t.Fatal("want a tool item")
	}
	if tool.Label != "Web search" || tool.Input != "q" {
		t.Errorf("tool = %+v, want web search with input q", tool)
	}
	if tool.Status != toolcall.StatusDone {
		t.Errorf("status = %q, want done", tool.Status)
	}
	if tool.Output != long {
		t.Errorf("output length = %d, want full %d", len(tool.Output), len(long))
	}
}

func TestBuild_ToolErrorKept(t *testing.T) {
	segs := Build([]event.Event{
		added("r1", "t1", 0, "function_call"),
		event.ToolOutput{Meta: event.Meta{ResponseID: "r1", ItemID: "t1"}, Error: "timeout"},
	})
	tool := segs[0].Items[0].Tool
	if tool.Status != toolcall.StatusError || tool.Error != "timeout" {
		t.Errorf("tool = %+v, want errored with text", tool)
	}
}

func TestBuild_ToolArgsNotTruncated(t *testing.T) {
	long := strings.Repeat("a", 1000)
	segs := Build([]event.Event{
		event.ToolArgsDelta{Meta: event.Meta{ResponseID: "r1", ItemID: "f1"}, Delta: long},
		event.ToolArgsDelta{Meta: event.Meta{ResponseID: "r1", ItemID: "f1"}, Delta: long},
	})
	if got := segs[0].Items[0].Tool.Input; got != long+long {
		t.Errorf("input length = %d, want full %d", len(got), 2*len(long))
	}
}

// --- Ordering ---

func TestBuild_OrderByOutputIndex(t *testing.T) {
	segs := Build([]event.Event{
		added("r1", "c", 5, "message"),
		added("r1", "a", 1, "message"),
		added("r1", "b", 3, "message"),
		added("r1", "b2", 3, "message"),
	})
	ids := itemIDs(segs[0])
	want := []string{"a", "b", "b2", "c"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestBuild_OrderIndependence(t *testing.T) {
	sequences := [][]event.Event{
		{added("r1", "m1", 2, "message"), msgDelta("r1", "m1", 2, 0, "Hel"), msgDelta("r1", "m1", 2, 0, "lo"), done("r1", "m1", 2)},
		{added("r1", "m2", 0, "message"), msgDelta("r1", "m2", 0, 0, "wor"), msgDelta("r1", "m2", 0, 1, "ld")},
		{added("r2", "t1", 0, "function_call"), event.ToolArgsDelta{Meta: event.Meta{ResponseID: "r2", ItemID: "t1"}, Delta: "{}"}},
	}

	reference := Build(flatten(sequences))

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		got := Build(interleave(rng, sequences))
		if !reflect.DeepEqual(got, reference) {
			t.Fatalf("trial %d: segments diverge from reference\ngot  %+v\nwant %+v", trial, got, reference)
		}
	}
}

// --- Image assembly ---

func imgChunkDelta(entity string, part, chunk int, data string) event.ChunkDelta {
	return event.ChunkDelta{
		EntityKind: "tool_call", EntityID: entity, Field: "partial_image_b64",
		PartIndex: part, ChunkIndex: chunk, Encoding: "base64", Data: data,
	}
}

func imgChunkDone(entity string, part int) event.ChunkDone {
	return event.ChunkDone{
		EntityKind: "tool_call", EntityID: entity, Field: "partial_image_b64",
		PartIndex: part,
	}
}

func TestBuild_ProgressiveImage(t *testing.T) {
	base := []event.Event{
		added("r1", "img1", 0, "image_generation_call"),
		event.ToolStatus{
			Meta: event.Meta{ResponseID: "r1", ItemID: "img1"},
			Tool: event.Tool{Kind: event.ToolImageGen, Status: "generating", Format: "png"},
		},
		// chunks of part 0 arrive out of chunk-index order
		imgChunkDelta("img1", 0, 1, "BB"),
		imgChunkDelta("img1", 0, 0, "AA"),
		imgChunkDelta("img1", 1, 0, "CC"),
		imgChunkDone("img1", 0),
	}

	segs := Build(base)
	tool := segs[0].Items[0].Tool
	if len(tool.Frames) != 1 {
		t.Fatalf("frames = %d, want only the completed part", len(tool.Frames))
	}
	f := tool.Frames[0]
	if f.PartIndex != 0 || f.MimeType != "image/png" {
		t.Errorf("frame = %+v, want part 0 as image/png", f)
	}
	if f.Source != "data:image/png;base64,AABB" {
		t.Errorf("source = %q, want chunks joined in index order as a data URI", f.Source)
	}

	segs = Build(append(base, imgChunkDone("img1", 1)))
	tool = segs[0].Items[0].Tool
	if len(tool.Frames) != 2 {
		t.Fatalf("frames = %d, want 2 after second part completes", len(tool.Frames))
	}
	if tool.Frames[0].PartIndex != 0 || tool.Frames[1].PartIndex != 1 {
		t.Errorf("frames = %+v, want sorted by part index", tool.Frames)
	}
}

func TestBuild_FramesSortedWhenPartsFinishOutOfOrder(t *testing.T) {
	segs := Build([]event.Event{
		added("r1", "img1", 0, "image_generation_call"),
		imgChunkDelta("img1", 2, 0, "CC"),
		imgChunkDelta("img1", 0, 0, "AA"),
		imgChunkDone("img1", 2),
		imgChunkDone("img1", 0),
	})
	frames := segs[0].Items[0].Tool.Frames
	if len(frames) != 2 || frames[0].PartIndex != 0 || frames[1].PartIndex != 2 {
		t.Errorf("frames = %+v, want part order 0, 2", frames)
	}
}

func TestBuild_ImageMetadata(t *testing.T) {
	segs := Build([]event.Event{
		added("r1", "img1", 0, "image_generation_call"),
		event.ToolStatus{
			Meta: event.Meta{ResponseID: "r1", ItemID: "img1"},
			Tool: event.Tool{Kind: event.ToolImageGen, Format: "webp", RevisedPrompt: "a calm harbor"},
		},
		imgChunkDelta("img1", 0, 0, "AA"),
		imgChunkDone("img1", 0),
	})

	tool := segs[0].Items[0].Tool
	if tool.RevisedPrompt != "a calm harbor" {
		t.Errorf("revised prompt = %q", tool.RevisedPrompt)
	}
	if tool.Frames[0].MimeType != "image/webp" {
		t.Errorf("mime = %q, want derived from recorded format", tool.Frames[0].MimeType)
	}
}

func TestBuild_ImageDefaultsToPNG(t *testing.T) {
	segs := Build([]event.Event{
		added("r1", "img1", 0, "image_generation_call"),
		imgChunkDelta("img1", 0, 0, "AA"),
		imgChunkDone("img1", 0),
	})
	if mime := segs[0].Items[0].Tool.Frames[0].MimeType; mime != "image/png" {
		t.Errorf("mime = %q, want png fallback", mime)
	}
}

func TestBuild_RawEncodingUsedAsIs(t *testing.T) {
	d := imgChunkDelta("img1", 0, 0, "https://cdn.example/frame0.png")
	d.Encoding = "url"
	segs := Build([]event.Event{
		added("r1", "img1", 0, "image_generation_call"),
		d,
		imgChunkDone("img1", 0),
	})
	if src := segs[0].Items[0].Tool.Frames[0].Source; src != "https://cdn.example/frame0.png" {
		t.Errorf("source = %q, want raw payload without data URI wrapping", src)
	}
}

func TestBuild_ChunkDoneWithoutDelta(t *testing.T) {
	segs := Build([]event.Event{
		added("r1", "img1", 0, "image_generation_call"),
		imgChunkDone("img1", 0),
	})
	if frames := segs[0].Items[0].Tool.Frames; frames != nil {
		t.Errorf("frames = %+v, want none for an unmatched done signal", frames)
	}
}

func TestBuild_ForeignChunksIgnored(t *testing.T) {
	segs := Build([]event.Event{
		added("r1", "img1", 0, "image_generation_call"),
		event.ChunkDelta{EntityKind: "message", EntityID: "img1", Field: "partial_image_b64", Data: "AA"},
		event.ChunkDelta{EntityKind: "tool_call", EntityID: "img1", Field: "audio_b64", Data: "AA"},
		event.ChunkDone{EntityKind: "message", EntityID: "img1", Field: "partial_image_b64"},
	})
	if frames := segs[0].Items[0].Tool.Frames; frames != nil {
		t.Errorf("frames = %+v, want none from foreign chunk streams", frames)
	}
}

// --- helpers ---

func itemIDs(seg Segment) []string {
	ids := make([]string, len(seg.Items))
	for i, it := range seg.Items {
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
