package export

import (
	"fmt"
	"strings"

	"github.com/runlens/runlens/internal/domain/preview"
	"github.com/runlens/runlens/internal/domain/workflow"
)

// NodePreview pairs a graph node with its snapshot for rendering.
type NodePreview struct {
	Node     workflow.Node     `json:"node"`
	Snapshot *preview.Snapshot `json:"snapshot"`
}

// cursor marks an item whose stream never reached done.
const cursor = " ▌"

// PreviewText renders node snapshots as plain terminal text in
// declaration order. Nodes that produced nothing keep a placeholder line
// so the whole graph stays visible.
func PreviewText(previews []NodePreview, width int) string {
	if len(previews) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Node previews\n")
	b.WriteString("=============\n")

	for _, p := range previews {
		b.WriteString("\n")
		title := nodeTitle(p.Node)
		b.WriteString(title)
		b.WriteString("\n")
		b.WriteString(strings.Repeat("-", ruleWidth(len(title), width)))
		b.WriteString("\n")

		snap := p.Snapshot
		if snap == nil || !snap.HasContent {
			b.WriteString("(no output)\n")
			continue
		}
		if snap.Lifecycle != "" {
			fmt.Fprintf(&b, "status: %s\n", snap.Lifecycle)
		}
		if snap.OverflowCount > 0 {
			fmt.Fprintf(&b, "(%d earlier items not shown)\n", snap.OverflowCount)
		}
		for _, item := range snap.Items {
			b.WriteString("\n")
			writePreviewItemText(&b, item, width)
		}
	}

	return b.String()
}

// PreviewMarkdown renders node snapshots as a markdown section.
func PreviewMarkdown(previews []NodePreview) string {
	if len(previews) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Node previews\n")

	for _, p := range previews {
		b.WriteString("\n")
		fmt.Fprintf(&b, "## %s\n", nodeTitle(p.Node))

		snap := p.Snapshot
		if snap == nil || !snap.HasContent {
			b.WriteString("*(no output)*\n")
			continue
		}
		if snap.Lifecycle != "" {
			fmt.Fprintf(&b, "*status: %s*\n", snap.Lifecycle)
		}
		if snap.OverflowCount > 0 {
			fmt.Fprintf(&b, "*(%d earlier items not shown)*\n", snap.OverflowCount)
		}
		for _, item := range snap.Items {
			b.WriteString("\n")
			switch item.Type {
			case preview.ItemRefusal:
				fmt.Fprintf(&b, "**Refused:** %s\n", item.Text)
			case preview.ItemTool:
				if item.Tool == nil {
					continue
				}
				fmt.Fprintf(&b, "**%s** (%s)\n", toolLabel(item.Tool.Label), item.Tool.Status)
				if item.Tool.Input != "" {
					fmt.Fprintf(&b, "\n```\n%s\n```\n", item.Tool.Input)
				}
			default:
				b.WriteString(item.Text)
				if !item.Done {
					b.WriteString(cursor)
				}
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

func writePreviewItemText(b *strings.Builder, item preview.Item, width int) {
	switch item.Type {
	case preview.ItemRefusal:
		writeWrapped(b, "Refused: "+item.Text, width)
	case preview.ItemTool:
		if item.Tool == nil {
			return
		}
		fmt.Fprintf(b, "[%s: %s]\n", toolLabel(item.Tool.Label), item.Tool.Status)
		if item.Tool.Input != "" {
			writeIndented(b, item.Tool.Input, width)
		}
	default:
		text := item.Text
		if !item.Done {
			text += cursor
		}
		writeWrapped(b, text, width)
	}
}

func toolLabel(label string) string {
	if label == "" {
		return "tool"
	}
	return label
}

// nodeTitle names a node by its graph position: stage / step, the agent
// when declared, and the stable node id.
func nodeTitle(n workflow.Node) string {
	title := n.Stage + " / " + n.Step
	if n.AgentKey != "" {
		title += " (" + n.AgentKey + ")"
	}
	return title + "  [" + string(n.ID) + "]"
}
