package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/domain/preview"
	"github.com/runlens/runlens/internal/domain/transcript"
	"github.com/runlens/runlens/internal/domain/workflow"
	"github.com/runlens/runlens/internal/export"
	"github.com/runlens/runlens/internal/port/scheduler"
	"github.com/runlens/runlens/internal/service"
)

// runReplay renders a transcript from a recorded event log without a
// server. The input is the same wire format the feed carries: a JSON
// array or NDJSON, one event per line. "-" reads from stdin.
func runReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	format := fs.String("format", "text", "output format: text, markdown or json")
	width := fs.Int("width", 0, "wrap width for text output (0 = terminal width)")
	descPath := fs.String("descriptor", "", "workflow descriptor YAML; appends final node previews")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, `Usage: runlens replay [options] <file>

Renders the complete ordered transcript of a recorded run. The input
file holds an event batch as a JSON array or NDJSON; pass "-" to read
from stdin.

Options:
  --format      text, markdown or json (default text)
  --width       wrap width for text output, 0 uses the terminal width
  --descriptor  workflow descriptor YAML; drives the live-preview
                reducer over the same events and appends the final
                per-node snapshots
`)
		return fmt.Errorf("replay: exactly one input file is required")
	}

	data, err := readInput(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	events, err := event.DecodeBatch(data)
	if err != nil {
		return fmt.Errorf("decode events: %w", err)
	}

	segments := transcript.Build(events)

	var previews []export.NodePreview
	if *descPath != "" {
		previews, err = replayPreviews(*descPath, events)
		if err != nil {
			return err
		}
	}

	switch *format {
	case "text":
		w := *width
		if w == 0 && term.IsTerminal(int(os.Stdout.Fd())) {
			if tw, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				w = tw
			}
		}
		fmt.Print(export.Text(segments, w))
		if len(previews) > 0 {
			fmt.Print("\n")
			fmt.Print(export.PreviewText(previews, w))
		}
	case "markdown":
		fmt.Print(export.Markdown(segments))
		if len(previews) > 0 {
			fmt.Print("\n")
			fmt.Print(export.PreviewMarkdown(previews))
		}
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if previews != nil {
			out := struct {
				Segments []transcript.Segment `json:"segments"`
				Previews []export.NodePreview `json:"previews"`
			}{segments, previews}
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encode transcript: %w", err)
			}
			return nil
		}
		if err := enc.Encode(segments); err != nil {
			return fmt.Errorf("encode transcript: %w", err)
		}
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
	return nil
}

// replayPreviews reduces the event log through the same preview path the
// server runs, synchronously, and returns every node's final snapshot in
// declaration order.
func replayPreviews(path string, events []event.Event) ([]export.NodePreview, error) {
	desc, err := workflow.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load descriptor: %w", err)
	}
	idx, err := workflow.NewIndex(desc)
	if err != nil {
		return nil, err
	}

	store := service.NewPreviewStore(idx, scheduler.Immediate{}, preview.DefaultConfig())
	store.ApplyEvents(events...)

	nodes := idx.Nodes()
	out := make([]export.NodePreview, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, export.NodePreview{Node: n, Snapshot: store.Snapshot(n.ID)})
	}
	return out, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
