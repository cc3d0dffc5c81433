// Package transcript rebuilds the complete ordered record of a run from its
// raw event feed: one segment per model turn, items sorted by final output
// position, tool calls fully merged, streamed image parts assembled into
// frames. Unlike the preview accumulator nothing is bounded or truncated.
package transcript

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/domain/toolcall"
)

// ItemType classifies a rendered transcript item.
type ItemType string

const (
	ItemMessage ItemType = "message"
	ItemRefusal ItemType = "refusal"
	ItemTool    ItemType = "tool"
)

// Frame is one assembled render of a progressively generated image. Source
// is a data URI when the stream was base64 encoded, the raw payload
// otherwise.
type Frame struct {
	PartIndex int    `json:"part_index"`
	MimeType  string `json:"mime_type"`
	Source    string `json:"source"`
}

// ToolCall is the fully merged record of one tool invocation, including any
// image frames assembled from its chunk stream.
type ToolCall struct {
	toolcall.State
	RevisedPrompt string  `json:"revised_prompt,omitempty"`
	Frames        []Frame `json:"frames,omitempty"`
}

// Item is one displayable unit of a segment. Tool presence wins over text;
// a refusal wins over plain message text.
type Item struct {
	ID   string    `json:"id"`
	Type ItemType  `json:"type"`
	Text string    `json:"text,omitempty"`
	Done bool      `json:"done"`
	Tool *ToolCall `json:"tool,omitempty"`
}

// Segment is the reconstructed content of one model turn.
type Segment struct {
	Key        string         `json:"key"`
	ResponseID string         `json:"response_id,omitempty"`
	Agent      string         `json:"agent,omitempty"`
	Workflow   *event.Context `json:"workflow,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Items      []Item         `json:"items"`
}

// Build reduces an event feed into ordered transcript segments. The feed may
// arrive in any order consistent with per-item delta sequencing; the result
// depends only on output indexes, not on arrival order. Segments with no
// items and no reasoning text are dropped.
func Build(events []event.Event) []Segment {
	b := newBuilder()
	for _, ev := range events {
		b.apply(ev)
	}
	return b.finish()
}

// chunkKey addresses one part of a progressively streamed field.
type chunkKey struct {
	entityID string
	part     int
}

type builder struct {
	segs    []*segState
	byKey   map[string]*segState
	unknown int

	// image assembly state, keyed by the owning tool call's item id
	chunks    map[chunkKey]map[int]string
	encodings map[chunkKey]string
	formats   map[string]string
	prompts   map[string]string
	frames    map[string]map[int]Frame
}

func newBuilder() *builder {
	return &builder{
		byKey:     map[string]*segState{},
		chunks:    map[chunkKey]map[int]string{},
		encodings: map[chunkKey]string{},
		formats:   map[string]string{},
		prompts:   map[string]string{},
		frames:    map[string]map[int]Frame{},
	}
}

func (b *builder) apply(ev event.Event) {
	switch e := ev.(type) {
	case event.ChunkDelta:
		b.chunkDelta(e)
		return
	case event.ChunkDone:
		b.chunkDone(e)
		return
	case event.Lifecycle, event.Final, event.RunError, event.Unknown:
		// node status and terminal signals are not transcript content
		return
	}

	seg := b.segment(ev.EventMeta())
	switch e := ev.(type) {
	case event.ItemAdded:
		seg.itemHeader(e.Meta, e.ItemType, false)
	case event.ItemDone:
		seg.itemHeader(e.Meta, e.ItemType, true)
	case event.MessageDelta:
		seg.messageDelta(e)
	case event.RefusalDelta:
		seg.refusalDelta(e)
	case event.RefusalDone:
		seg.refusalDone(e)
	case event.ReasoningDelta:
		seg.reasoning += e.Delta
	case event.ToolStatus:
		seg.toolStatus(e)
		b.recordImageMeta(e)
	case event.ToolArgsDelta:
		seg.inputDelta(e.Meta, e.Delta)
	case event.ToolArgsDone:
		seg.inputFinal(e.Meta, e.Arguments)
	case event.ToolCodeDelta:
		seg.inputDelta(e.Meta, e.Delta)
	case event.ToolCodeDone:
		seg.inputFinal(e.Meta, e.Code)
	case event.ToolOutput:
		seg.toolOutput(e)
	}
}

// segment returns the turn an event belongs to, creating it on first sight.
// Events without a response id each open their own "unknown-N" segment; the
// counter keeps those keys stable within one build.
func (b *builder) segment(m event.Meta) *segState {
	if m.ResponseID == "" {
		seg := newSegState(fmt.Sprintf("unknown-%d", b.unknown), m)
		b.unknown++
		b.segs = append(b.segs, seg)
		return seg
	}
	if seg, ok := b.byKey[m.ResponseID]; ok {
		seg.absorb(m)
		return seg
	}
	seg := newSegState(m.ResponseID, m)
	b.byKey[m.ResponseID] = seg
	b.segs = append(b.segs, seg)
	return seg
}

func (b *builder) finish() []Segment {
	out := make([]Segment, 0, len(b.segs))
	for _, s := range b.segs {
		seg := s.render(b)
		if len(seg.Items) == 0 && seg.Reasoning == "" {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// --- image chunk assembly ---

func imageChunk(entityKind, field string) bool {
	return entityKind == "tool_call" && field == "partial_image_b64"
}

func (b *builder) chunkDelta(e event.ChunkDelta) {
	if !imageChunk(e.EntityKind, e.Field) || e.EntityID == "" {
		return
	}
	k := chunkKey{entityID: e.EntityID, part: e.PartIndex}
	buf := b.chunks[k]
	if buf == nil {
		buf = map[int]string{}
		b.chunks[k] = buf
	}
	buf[e.ChunkIndex] += e.Data
	if e.Encoding != "" {
		b.encodings[k] = e.Encoding
	}
}

// chunkDone assembles the accumulated fragments of one image part into a
// frame. A done signal with no prior fragments is dropped.
func (b *builder) chunkDone(e event.ChunkDone) {
	if !imageChunk(e.EntityKind, e.Field) {
		return
	}
	k := chunkKey{entityID: e.EntityID, part: e.PartIndex}
	buf, ok := b.chunks[k]
	if !ok {
		return
	}
	delete(b.chunks, k)

	idxs := make([]int, 0, len(buf))
	for i := range buf {
		idxs = append(idxs, i)
	}
	slices.Sort(idxs)
	var payload strings.Builder
	for _, i := range idxs {
		payload.WriteString(buf[i])
	}

	mime := mimeForFormat(b.formats[e.EntityID])
	src := payload.String()
	if b.encodings[k] == "base64" {
		src = "data:" + mime + ";base64," + src
	}
	delete(b.encodings, k)

	frames := b.frames[e.EntityID]
	if frames == nil {
		frames = map[int]Frame{}
		b.frames[e.EntityID] = frames
	}
	frames[e.PartIndex] = Frame{PartIndex: e.PartIndex, MimeType: mime, Source: src}
}

// recordImageMeta captures format and revised prompt from image generation
// status events so later chunk assembly can derive the mime type.
func (b *builder) recordImageMeta(e event.ToolStatus) {
	if e.Tool.Kind != event.ToolImageGen || e.ItemID == "" {
		return
	}
	if e.Tool.Format != "" {
		b.formats[e.ItemID] = e.Tool.Format
	}
	if e.Tool.RevisedPrompt != "" {
		b.prompts[e.ItemID] = e.Tool.RevisedPrompt
	}
}

func (b *builder) framesFor(id string) []Frame {
	m := b.frames[id]
	if len(m) == 0 {
		return nil
	}
	out := make([]Frame, 0, len(m))
	for _, f := range m {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b Frame) int { return cmp.Compare(a.PartIndex, b.PartIndex) })
	return out
}

func mimeForFormat(format string) string {
	if format == "" {
		format = "png"
	}
	return "image/" + format
}
