// Package event defines the typed progress events emitted by workflow runs
// and the JSON wire codec used on the ingest feed.
package event

import "strings"

// Kind identifies the event variant on the wire.
type Kind string

const (
	KindItemAdded      Kind = "output_item.added"
	KindItemDone       Kind = "output_item.done"
	KindMessageDelta   Kind = "message.delta"
	KindRefusalDelta   Kind = "refusal.delta"
	KindRefusalDone    Kind = "refusal.done"
	KindReasoningDelta Kind = "reasoning_summary.delta"
	KindToolStatus     Kind = "tool.status"
	KindToolArgsDelta  Kind = "tool.arguments.delta"
	KindToolArgsDone   Kind = "tool.arguments.done"
	KindToolCodeDelta  Kind = "tool.code.delta"
	KindToolCodeDone   Kind = "tool.code.done"
	KindToolOutput     Kind = "tool.output"
	KindChunkDelta     Kind = "chunk.delta"
	KindChunkDone      Kind = "chunk.done"
	KindLifecycle      Kind = "lifecycle"
	KindFinal          Kind = "final"
	KindError          Kind = "error"
)

// Context carries the workflow coordinates an event was emitted under.
// BranchIndex is a pointer because branch 0 and "no branch" are distinct.
type Context struct {
	WorkflowKey   string `json:"workflow_key,omitempty"`
	StageName     string `json:"stage_name,omitempty"`
	StepName      string `json:"step_name,omitempty"`
	StepAgent     string `json:"step_agent,omitempty"`
	BranchIndex   *int   `json:"branch_index,omitempty"`
	ParallelGroup string `json:"parallel_group,omitempty"`
}

// Stage returns the stage name, falling back to the parallel group label
// when the producer filled only that field.
func (c *Context) Stage() string {
	if c == nil {
		return ""
	}
	if c.StageName != "" {
		return c.StageName
	}
	return c.ParallelGroup
}

// Meta is the addressing header shared by every event variant.
type Meta struct {
	ResponseID  string   `json:"response_id,omitempty"`
	Agent       string   `json:"agent,omitempty"`
	OutputIndex int      `json:"output_index,omitempty"`
	ItemID      string   `json:"item_id,omitempty"`
	Workflow    *Context `json:"workflow,omitempty"`
}

// EventMeta returns the addressing header; embedding Meta satisfies half of
// the Event interface.
func (m Meta) EventMeta() Meta { return m }

// Event is the closed set of progress events. Dispatch is by type switch;
// reducers must treat variants they do not handle as no-ops.
type Event interface {
	EventKind() Kind
	EventMeta() Meta
}

// ItemAdded announces a new output item (message, reasoning or tool call).
type ItemAdded struct {
	Meta
	ItemType string `json:"item_type,omitempty"`
	Role     string `json:"role,omitempty"`
	Status   string `json:"status,omitempty"`
}

// ItemDone marks an output item as finalized, possibly at a corrected
// output index.
type ItemDone struct {
	Meta
	ItemType string `json:"item_type,omitempty"`
	Role     string `json:"role,omitempty"`
	Status   string `json:"status,omitempty"`
}

// MessageDelta appends text to one content slot of a message item.
type MessageDelta struct {
	Meta
	ContentIndex int    `json:"content_index,omitempty"`
	Delta        string `json:"delta,omitempty"`
}

// RefusalDelta appends text to one content slot of a refusal.
type RefusalDelta struct {
	Meta
	ContentIndex int    `json:"content_index,omitempty"`
	Delta        string `json:"delta,omitempty"`
}

// RefusalDone replaces a refusal content slot with its final text.
type RefusalDone struct {
	Meta
	ContentIndex int    `json:"content_index,omitempty"`
	Text         string `json:"text,omitempty"`
}

// ReasoningDelta appends to the reasoning summary of the current response.
type ReasoningDelta struct {
	Meta
	Delta string `json:"delta,omitempty"`
}

// ToolStatus reports a tool call state change with a partial payload patch.
type ToolStatus struct {
	Meta
	Tool Tool `json:"tool"`
}

// ToolArgsDelta streams a fragment of a tool call's argument string.
type ToolArgsDelta struct {
	Meta
	Delta string `json:"delta,omitempty"`
}

// ToolArgsDone carries the complete argument string of a tool call.
type ToolArgsDone struct {
	Meta
	Arguments string `json:"arguments,omitempty"`
}

// ToolCodeDelta streams a fragment of interpreter code.
type ToolCodeDelta struct {
	Meta
	Delta string `json:"delta,omitempty"`
}

// ToolCodeDone carries the complete interpreter code of a tool call.
type ToolCodeDone struct {
	Meta
	Code string `json:"code,omitempty"`
}

// ToolOutput reports the result of an executed tool call.
type ToolOutput struct {
	Meta
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ChunkDelta carries one fragment of a progressively streamed binary field,
// such as a partial image render.
type ChunkDelta struct {
	Meta
	EntityKind string `json:"entity_kind,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	Field      string `json:"field,omitempty"`
	PartIndex  int    `json:"part_index,omitempty"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	Data       string `json:"data,omitempty"`
}

// ChunkDone closes one part of a progressively streamed field; accumulated
// fragments are assembled in chunk-index order.
type ChunkDone struct {
	Meta
	EntityKind string `json:"entity_kind,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	Field      string `json:"field,omitempty"`
	PartIndex  int    `json:"part_index,omitempty"`
}

// Lifecycle reports a node-level execution state transition.
type Lifecycle struct {
	Meta
	Status string `json:"status,omitempty"`
}

// Final marks the end of a run's event feed.
type Final struct {
	Meta
	Status string `json:"status,omitempty"`
}

// RunError reports a run-level failure on the feed.
type RunError struct {
	Meta
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Unknown preserves events of kinds this build does not know. Reducers
// ignore it, which keeps the feed forward compatible.
type Unknown struct {
	Meta
	RawKind string `json:"kind"`
}

func (ItemAdded) EventKind() Kind      { return KindItemAdded }
func (ItemDone) EventKind() Kind       { return KindItemDone }
func (MessageDelta) EventKind() Kind   { return KindMessageDelta }
func (RefusalDelta) EventKind() Kind   { return KindRefusalDelta }
func (RefusalDone) EventKind() Kind    { return KindRefusalDone }
func (ReasoningDelta) EventKind() Kind { return KindReasoningDelta }
func (ToolStatus) EventKind() Kind     { return KindToolStatus }
func (ToolArgsDelta) EventKind() Kind  { return KindToolArgsDelta }
func (ToolArgsDone) EventKind() Kind   { return KindToolArgsDone }
func (ToolCodeDelta) EventKind() Kind  { return KindToolCodeDelta }
func (ToolCodeDone) EventKind() Kind   { return KindToolCodeDone }
func (ToolOutput) EventKind() Kind     { return KindToolOutput }
func (ChunkDelta) EventKind() Kind     { return KindChunkDelta }
func (ChunkDone) EventKind() Kind      { return KindChunkDone }
func (Lifecycle) EventKind() Kind      { return KindLifecycle }
func (Final) EventKind() Kind          { return KindFinal }
func (RunError) EventKind() Kind       { return KindError }
func (u Unknown) EventKind() Kind      { return Kind(u.RawKind) }

// Terminal reports whether ev ends the run's feed.
func Terminal(ev Event) bool {
	switch ev.(type) {
	case Final, RunError:
		return true
	default:
		return false
	}
}

// ToolKind categorizes hosted and caller-defined tools.
type ToolKind string

const (
	ToolWebSearch   ToolKind = "web_search"
	ToolFileSearch  ToolKind = "file_search"
	ToolInterpreter ToolKind = "code_interpreter"
	ToolImageGen    ToolKind = "image_generation"
	ToolFunction    ToolKind = "function"
	ToolMCP         ToolKind = "mcp"
	ToolCustom      ToolKind = "custom"
)

// Tool is the partial tool-call payload carried by tool.status events.
// Producers fill only the fields that changed; consumers merge.
type Tool struct {
	Kind          ToolKind `json:"kind,omitempty"`
	Status        string   `json:"status,omitempty"`
	Name          string   `json:"name,omitempty"`
	Query         string   `json:"query,omitempty"`
	Sources       []string `json:"sources,omitempty"`
	Arguments     string   `json:"arguments,omitempty"`
	Code          string   `json:"code,omitempty"`
	Output        string   `json:"output,omitempty"`
	ContainerID   string   `json:"container_id,omitempty"`
	RevisedPrompt string   `json:"revised_prompt,omitempty"`
	Format        string   `json:"format,omitempty"`
	ServerLabel   string   `json:"server_label,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// itemTypeKinds maps output item types to tool categories.
var itemTypeKinds = map[string]ToolKind{
	"web_search_call":       ToolWebSearch,
	"file_search_call":      ToolFileSearch,
	"code_interpreter_call": ToolInterpreter,
	"image_generation_call": ToolImageGen,
	"function_call":         ToolFunction,
	"mcp_call":              ToolMCP,
	"mcp_approval_request":  ToolMCP,
	"custom_tool_call":      ToolCustom,
}

// ToolKindForItemType maps an output item type to its tool category.
// Unlisted "*_call" types fall back to the custom category so that new
// hosted tools still render a placeholder.
func ToolKindForItemType(itemType string) (ToolKind, bool) {
	if k, ok := itemTypeKinds[itemType]; ok {
		return k, true
	}
	if strings.HasSuffix(itemType, "_call") {
		return ToolCustom, true
	}
	return "", false
}
