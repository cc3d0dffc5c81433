package export_test

import (
	"strings"
	"testing"

	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/domain/preview"
	"github.com/runlens/runlens/internal/domain/toolcall"
	"github.com/runlens/runlens/internal/domain/transcript"
	"github.com/runlens/runlens/internal/domain/workflow"
	"github.com/runlens/runlens/internal/export"
)

func sampleSegments() []transcript.Segment {
	branch := 1
	return []transcript.Segment{
		{
			Key:        "resp-1",
			ResponseID: "resp-1",
			Agent:      "planner",
			Workflow:   &event.Context{WorkflowKey: "wf1", StageName: "plan", BranchIndex: &branch},
			Reasoning:  "first think\nthen write",
			Items: []transcript.Item{
				{ID: "m1", Type: transcript.ItemMessage, Text: "Here is the plan.", Done: true},
			},
		},
		{
			Key:        "resp-2",
			ResponseID: "resp-2",
			Agent:      "searcher",
			Items: []transcript.Item{
				{ID: "t1", Type: transcript.ItemTool, Done: true, Tool: &transcript.ToolCall{
					State: toolcall.State{
						Label:  "web.search",
						Status: toolcall.StatusDone,
						Input:  "golang slog",
						Output: "3 results",
					},
				}},
				{ID: "r1", Type: transcript.ItemRefusal, Text: "cannot do that", Done: true},
			},
		},
	}
}

func TestMarkdown(t *testing.T) {
	md := export.Markdown(sampleSegments())

	for _, want := range []string{
		"## planner",
		"*wf1 / plan / branch 1*",
		"> first think",
		"> then write",
		"Here is the plan.",
		"## searcher",
		"**web.search** (done)",
		"```\ngolang slog\n```",
		"```\n3 results\n```",
		"**Refused:** cannot do that",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
}

func TestMarkdownTitleFallback(t *testing.T) {
	segs := []transcript.Segment{
		{Key: "resp-9", ResponseID: "resp-9", Items: []transcript.Item{
			{ID: "m", Type: transcript.ItemMessage, Text: "anonymous"},
		}},
	}
	md := export.Markdown(segs)
	if !strings.Contains(md, "## resp-9") {
		t.Errorf("expected response id header, got:\n%s", md)
	}
}

func TestMarkdownToolError(t *testing.T) {
	segs := []transcript.Segment{
		{Key: "k", Items: []transcript.Item{
			{ID: "t", Type: transcript.ItemTool, Tool: &transcript.ToolCall{
				State: toolcall.State{Label: "files.read", Status: toolcall.StatusError, Error: "no such file"},
			}},
		}},
	}
	md := export.Markdown(segs)
	if !strings.Contains(md, "Error: no such file") {
		t.Errorf("expected tool error line, got:\n%s", md)
	}
}

func TestText(t *testing.T) {
	out := export.Text(sampleSegments(), 80)

	for _, want := range []string{
		"planner  [wf1 / plan / branch 1]",
		"| first think",
		"Here is the plan.",
		"[web.search: done]",
		"  golang slog",
		"Refused: cannot do that",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text missing %q\n%s", want, out)
		}
	}
}

func TestTextWrapsLongLines(t *testing.T) {
	long := strings.Repeat("word ", 40)
	segs := []transcript.Segment{
		{Key: "k", Agent: "a", Items: []transcript.Item{
			{ID: "m", Type: transcript.ItemMessage, Text: strings.TrimSpace(long)},
		}},
	}

	out := export.Text(segs, 24)
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 24 {
			t.Errorf("line longer than width: %q", line)
		}
	}
}

func TestTextNoWrapWhenWidthZero(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 40))
	segs := []transcript.Segment{
		{Key: "k", Agent: "a", Items: []transcript.Item{
			{ID: "m", Type: transcript.ItemMessage, Text: long},
		}},
	}

	out := export.Text(segs, 0)
	if !strings.Contains(out, long) {
		t.Error("expected unwrapped text with width 0")
	}
}

func TestEmptySegments(t *testing.T) {
	if got := export.Markdown(nil); got != "" {
		t.Errorf("Markdown(nil) = %q, want empty", got)
	}
	if got := export.Text(nil, 80); got != "" {
		t.Errorf("Text(nil, 80) = %q, want empty", got)
	}
}

func samplePreviews() []export.NodePreview {
	return []export.NodePreview{
		{
			Node: workflow.Node{ID: "n0.0", Stage: "plan", Step: "draft", AgentKey: "planner"},
			Snapshot: &preview.Snapshot{
				HasContent: true,
				Lifecycle:  "completed",
				Items: []preview.Item{
					{ID: "m1", Type: preview.ItemMessage, Text: "the plan", Done: true},
					{ID: "m2", Type: preview.ItemMessage, Text: "still typing", Done: false},
					{ID: "t1", Type: preview.ItemTool, Done: true, Tool: &toolcall.State{
						Label: "Web search", Status: toolcall.StatusDone, Input: "golang slog",
					}},
				},
				OverflowCount: 2,
			},
		},
		{
			Node:     workflow.Node{ID: "n1.0", Stage: "execute", Step: "write"},
			Snapshot: preview.Empty,
		},
	}
}

func TestPreviewText(t *testing.T) {
	out := export.PreviewText(samplePreviews(), 80)

	for _, want := range []string{
		"Node previews",
		"plan / draft (planner)  [n0.0]",
		"status: completed",
		"(2 earlier items not shown)",
		"the plan",
		"still typing ▌",
		"[Web search: done]",
		"  golang slog",
		"execute / write  [n1.0]",
		"(no output)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("preview text missing %q\n%s", want, out)
		}
	}
}

func TestPreviewMarkdown(t *testing.T) {
	md := export.PreviewMarkdown(samplePreviews())

	for _, want := range []string{
		"# Node previews",
		"## plan / draft (planner)  [n0.0]",
		"*status: completed*",
		"**Web search** (done)",
		"```\ngolang slog\n```",
		"## execute / write  [n1.0]",
		"*(no output)*",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("preview markdown missing %q\n%s", want, md)
		}
	}
}

func TestPreviewTextEmpty(t *testing.T) {
	if got := export.PreviewText(nil, 80); got != "" {
		t.Errorf("PreviewText(nil) = %q, want empty", got)
	}
	if got := export.PreviewMarkdown(nil); got != "" {
		t.Errorf("PreviewMarkdown(nil) = %q, want empty", got)
	}
}
