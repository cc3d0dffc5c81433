// Package export renders built transcripts into portable formats.
package export

import (
	"fmt"
	"strings"

	"github.com/runlens/runlens/internal/domain/transcript"
)

// Markdown converts transcript segments into a markdown document. Each
// segment becomes a section headed by its agent name, with reasoning as a
// blockquote, messages as paragraphs, and tool calls as fenced blocks.
func Markdown(segments []transcript.Segment) string {
	var b strings.Builder

	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n", segmentTitle(seg))
		if ctx := contextLine(seg); ctx != "" {
			fmt.Fprintf(&b, "*%s*\n", ctx)
		}

		if seg.Reasoning != "" {
			b.WriteString("\n")
			for _, line := range strings.Split(seg.Reasoning, "\n") {
				fmt.Fprintf(&b, "> %s\n", line)
			}
		}

		for _, item := range seg.Items {
			b.WriteString("\n")
			switch item.Type {
			case transcript.ItemRefusal:
				fmt.Fprintf(&b, "**Refused:** %s\n", item.Text)
			case transcript.ItemTool:
				writeToolMarkdown(&b, item.Tool)
			default:
				b.WriteString(item.Text)
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

func writeToolMarkdown(b *strings.Builder, tc *transcript.ToolCall) {
	if tc == nil {
		return
	}
	fmt.Fprintf(b, "**%s** (%s)\n", toolLabel(tc.Label), tc.Status)
	if tc.RevisedPrompt != "" {
		fmt.Fprintf(b, "*prompt: %s*\n", tc.RevisedPrompt)
	}
	if tc.Input != "" {
		fmt.Fprintf(b, "\n```\n%s\n```\n", tc.Input)
	}
	if tc.Output != "" {
		fmt.Fprintf(b, "\n```\n%s\n```\n", tc.Output)
	}
	if tc.Error != "" {
		fmt.Fprintf(b, "\nError: %s\n", tc.Error)
	}
	for _, f := range tc.Frames {
		fmt.Fprintf(b, "\n![frame %d](%s)\n", f.PartIndex, f.Source)
	}
}

// segmentTitle picks the most descriptive header for a segment: agent
// name first, then response id, then the grouping key.
func segmentTitle(seg transcript.Segment) string {
	switch {
	case seg.Agent != "":
		return seg.Agent
	case seg.ResponseID != "":
		return seg.ResponseID
	default:
		return seg.Key
	}
}

// contextLine renders the workflow position of a segment, or "" when the
// segment carried no workflow context.
func contextLine(seg transcript.Segment) string {
	wf := seg.Workflow
	if wf == nil {
		return ""
	}
	parts := make([]string, 0, 4)
	if wf.WorkflowKey != "" {
		parts = append(parts, wf.WorkflowKey)
	}
	if st := wf.Stage(); st != "" {
		parts = append(parts, st)
	}
	if wf.StepName != "" {
		parts = append(parts, wf.StepName)
	}
	if wf.BranchIndex != nil {
		parts = append(parts, fmt.Sprintf("branch %d", *wf.BranchIndex))
	}
	return strings.Join(parts, " / ")
}
