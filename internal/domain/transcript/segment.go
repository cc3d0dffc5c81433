package transcript

import (
	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/domain/toolcall"
	"github.com/runlens/runlens/internal/itemorder"
	"github.com/runlens/runlens/internal/textparts"
)

type itemMeta struct {
	itemType string
	done     bool
}

// segState accumulates one model turn. Agent and workflow context are taken
// from the first event that carries them.
type segState struct {
	key        string
	responseID string
	agent      string
	workflow   *event.Context
	reasoning  string

	order    *itemorder.List
	meta     map[string]*itemMeta
	tools    map[string]toolcall.State
	messages *textparts.Store
	refusals *textparts.Store
	inputs   *textparts.Store
}

func newSegState(key string, m event.Meta) *segState {
	return &segState{
		key:        key,
		responseID: m.ResponseID,
		agent:      m.Agent,
		workflow:   m.Workflow,
		order:      itemorder.New(),
		meta:       map[string]*itemMeta{},
		tools:      map[string]toolcall.State{},
		messages:   textparts.New(),
		refusals:   textparts.New(),
		inputs:     textparts.New(),
	}
}

// absorb fills header fields that earlier events left empty.
func (s *segState) absorb(m event.Meta) {
	if s.agent == "" {
		s.agent = m.Agent
	}
	if s.workflow == nil {
		s.workflow = m.Workflow
	}
}

func (s *segState) itemHeader(m event.Meta, itemType string, done bool) {
	if m.ItemID == "" {
		return
	}
	s.order.Ensure(m.ItemID, m.OutputIndex)
	mt := s.metaFor(m.ItemID)
	if itemType != "" {
		mt.itemType = itemType
	}
	if done {
		mt.done = true
	}
	if kind, ok := event.ToolKindForItemType(itemType); ok {
		if _, exists := s.tools[m.ItemID]; !exists {
			s.tools[m.ItemID] = toolcall.State{
				Label:  toolcall.LabelFor(kind, ""),
				Status: toolcall.StatusRunning,
			}
		}
	}
}

func (s *segState) messageDelta(e event.MessageDelta) {
	if e.ItemID == "" {
		return
	}
	s.order.Ensure(e.ItemID, e.OutputIndex)
	s.messages.Append(e.ItemID, e.ContentIndex, e.Delta)
}

func (s *segState) refusalDelta(e event.RefusalDelta) {
	if e.ItemID == "" {
		return
	}
	s.order.Ensure(e.ItemID, e.OutputIndex)
	s.refusals.Append(e.ItemID, e.ContentIndex, e.Delta)
}

func (s *segState) refusalDone(e event.RefusalDone) {
	if e.ItemID == "" {
		return
	}
	s.order.Ensure(e.ItemID, e.OutputIndex)
	s.refusals.Replace(e.ItemID, e.ContentIndex, e.Text)
}

func (s *segState) toolStatus(e event.ToolStatus) {
	if e.ItemID == "" {
		return
	}
	s.order.Ensure(e.ItemID, e.OutputIndex)
	p := toolcall.PatchFromTool(e.Tool)
	if p.Input != "" {
		s.inputs.Replace(e.ItemID, 0, p.Input)
	}
	s.mergeTool(e.ItemID, p)
}

func (s *segState) inputDelta(m event.Meta, delta string) {
	if m.ItemID == "" {
		return
	}
	s.order.Ensure(m.ItemID, m.OutputIndex)
	full := s.inputs.Append(m.ItemID, 0, delta)
	s.mergeTool(m.ItemID, toolcall.Patch{Input: full})
}

func (s *segState) inputFinal(m event.Meta, text string) {
	if m.ItemID == "" {
		return
	}
	s.order.Ensure(m.ItemID, m.OutputIndex)
	full := s.inputs.Replace(m.ItemID, 0, text)
	s.mergeTool(m.ItemID, toolcall.Patch{Input: full})
}

func (s *segState) toolOutput(e event.ToolOutput) {
	if e.ItemID == "" {
		return
	}
	s.order.Ensure(e.ItemID, e.OutputIndex)
	s.mergeTool(e.ItemID, toolcall.PatchFromOutput(e.Output, e.Error))
}

// mergeTool folds a patch into the item's tool state, defaulting fresh
// entries to running so a placeholder exists before any status arrives.
func (s *segState) mergeTool(id string, p toolcall.Patch) {
	cur, ok := s.tools[id]
	if !ok {
		cur = toolcall.State{Status: toolcall.StatusRunning}
	}
	s.tools[id] = toolcall.Merge(cur, p)
}

func (s *segState) metaFor(id string) *itemMeta {
	m := s.meta[id]
	if m == nil {
		m = &itemMeta{}
		s.meta[id] = m
	}
	return m
}

func (s *segState) render(b *builder) Segment {
	seg := Segment{
		Key:        s.key,
		ResponseID: s.responseID,
		Agent:      s.agent,
		Workflow:   s.workflow,
		Reasoning:  s.reasoning,
		Items:      make([]Item, 0, s.order.Len()),
	}
	for _, rec := range s.order.Records() {
		seg.Items = append(seg.Items, s.renderItem(rec.ID, b))
	}
	return seg
}

func (s *segState) renderItem(id string, b *builder) Item {
	it := Item{ID: id}
	if m := s.meta[id]; m != nil {
		it.Done = m.done
	}
	if st, ok := s.tools[id]; ok {
		tc := &ToolCall{State: st}
		tc.RevisedPrompt = b.prompts[id]
		tc.Frames = b.framesFor(id)
		it.Type = ItemTool
		it.Tool = tc
		return it
	}
	if txt := s.refusals.Text(id); txt != "" {
		it.Type = ItemRefusal
		it.Text = txt
		return it
	}
	it.Type = ItemMessage
	it.Text = s.messages.Text(id)
	return it
}
