// Package toolcall models the rendered lifecycle of a streamed tool call
// and the merge rules for the partial patches that build it up.
package toolcall

import "github.com/runlens/runlens/internal/domain/event"

// Status is the rendering state of a tool call.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// MapStatus normalizes producer status strings: awaiting_approval maps to
// waiting, failed to error, completed to done, everything else (searching,
// in_progress, generating, ...) to running.
func MapStatus(s string) Status {
	switch s {
	case "awaiting_approval":
		return StatusWaiting
	case "failed":
		return StatusError
	case "completed":
		return StatusDone
	default:
		return StatusRunning
	}
}

// State is the merged view of one tool call.
type State struct {
	Label  string `json:"label"`
	Status Status `json:"status"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Patch is a partial update to a tool call. Zero-valued fields carry no
// information and leave the current value untouched.
type Patch struct {
	Label  string
	Status Status
	Input  string
	Output string
	Error  string
}

// Merge applies a patch field by field, last write wins. Backwards status
// moves are applied as-is: events arrive out of final order, so the
// accumulator never referees transitions.
func Merge(cur State, p Patch) State {
	if p.Label != "" {
		cur.Label = p.Label
	}
	if p.Status != "" {
		cur.Status = p.Status
	}
	if p.Input != "" {
		cur.Input = p.Input
	}
	if p.Output != "" {
		cur.Output = p.Output
	}
	if p.Error != "" {
		cur.Error = p.Error
	}
	return cur
}

// PatchFromTool derives a patch from a tool.status payload. The input
// preview takes the first populated free-text field of the variant.
func PatchFromTool(t event.Tool) Patch {
	p := Patch{
		Label:  labelForTool(t),
		Output: t.Output,
		Error:  t.Error,
	}
	if t.Status != "" {
		p.Status = MapStatus(t.Status)
	}
	switch {
	case t.Query != "":
		p.Input = t.Query
	case t.Arguments != "":
		p.Input = t.Arguments
	case t.Code != "":
		p.Input = t.Code
	case t.RevisedPrompt != "":
		p.Input = t.RevisedPrompt
	}
	return p
}

// PatchFromOutput derives a patch from a tool.output event: the call is
// finished, errored when error text is present.
func PatchFromOutput(output, errText string) Patch {
	p := Patch{Output: output, Error: errText, Status: StatusDone}
	if errText != "" {
		p.Status = StatusError
	}
	return p
}

// LabelFor renders the display label of a tool category. name refines
// function, MCP and custom calls; hosted tools have fixed labels.
func LabelFor(kind event.ToolKind, name string) string {
	switch kind {
	case event.ToolWebSearch:
		return "Web search"
	case event.ToolFileSearch:
		return "File search"
	case event.ToolInterpreter:
		return "Code interpreter"
	case event.ToolImageGen:
		return "Image generation"
	case event.ToolFunction:
		if name != "" {
			return name
		}
		return "Function call"
	case event.ToolMCP:
		if name != "" {
			return name
		}
		return "MCP call"
	default:
		if name != "" {
			return name
		}
		return "Tool call"
	}
}

func labelForTool(t event.Tool) string {
	if t.Kind == "" {
		return ""
	}
	name := t.Name
	if t.Kind == event.ToolMCP && t.ServerLabel != "" {
		if name != "" {
			name = t.ServerLabel + "." + name
		} else {
			name = t.ServerLabel
		}
	}
	return LabelFor(t.Kind, name)
}
