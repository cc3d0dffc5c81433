package export

import (
	"fmt"
	"strings"

	"github.com/runlens/runlens/internal/domain/transcript"
)

// Text renders transcript segments as plain terminal text wrapped to the
// given column width. A non-positive width disables wrapping.
func Text(segments []transcript.Segment, width int) string {
	var b strings.Builder

	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		title := segmentTitle(seg)
		if ctx := contextLine(seg); ctx != "" {
			title += "  [" + ctx + "]"
		}
		b.WriteString(title)
		b.WriteString("\n")
		b.WriteString(strings.Repeat("-", ruleWidth(len(title), width)))
		b.WriteString("\n")

		if seg.Reasoning != "" {
			for _, line := range wrap(seg.Reasoning, width-2) {
				fmt.Fprintf(&b, "| %s\n", line)
			}
		}

		for _, item := range seg.Items {
			b.WriteString("\n")
			switch item.Type {
			case transcript.ItemRefusal:
				writeWrapped(&b, "Refused: "+item.Text, width)
			case transcript.ItemTool:
				writeToolText(&b, item.Tool, width)
			default:
				writeWrapped(&b, item.Text, width)
			}
		}
	}

	return b.String()
}

func writeToolText(b *strings.Builder, tc *transcript.ToolCall, width int) {
	if tc == nil {
		return
	}
	fmt.Fprintf(b, "[%s: %s]\n", toolLabel(tc.Label), tc.Status)
	if tc.Input != "" {
		writeIndented(b, tc.Input, width)
	}
	if tc.Output != "" {
		writeIndented(b, tc.Output, width)
	}
	if tc.Error != "" {
		writeWrapped(b, "error: "+tc.Error, width)
	}
	for _, f := range tc.Frames {
		fmt.Fprintf(b, "  (frame %d: %s, %d bytes)\n", f.PartIndex, f.MimeType, len(f.Source))
	}
}

func writeWrapped(b *strings.Builder, text string, width int) {
	for _, line := range wrap(text, width) {
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func writeIndented(b *strings.Builder, text string, width int) {
	for _, line := range wrap(text, width-2) {
		fmt.Fprintf(b, "  %s\n", line)
	}
}

func ruleWidth(titleLen, width int) int {
	if width > 0 && titleLen > width {
		return width
	}
	return titleLen
}

// wrap splits text into lines at most width runes wide, breaking on
// spaces. Words longer than the width stay on their own line. Existing
// newlines are respected.
func wrap(text string, width int) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		if width <= 0 || len(para) <= width {
			out = append(out, para)
			continue
		}
		line := ""
		for _, word := range strings.Fields(para) {
			switch {
			case line == "":
				line = word
			case len(line)+1+len(word) <= width:
				line += " " + word
			default:
				out = append(out, line)
				line = word
			}
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
