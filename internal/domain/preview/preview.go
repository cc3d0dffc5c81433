// Package preview reduces a graph node's event traffic into a bounded,
// display-ready projection of its most recent output.
//
// The accumulator keeps items in an arena sorted by output index with a
// side map from item id to slot, so ordering never depends on arrival
// order and eviction is a front compaction pass. It is not safe for
// concurrent use; the owning store serializes access.
package preview

import (
	"time"

	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/domain/toolcall"
	"github.com/runlens/runlens/internal/itemorder"
	"github.com/runlens/runlens/internal/textparts"
)

// Config bounds accumulation and snapshot projection.
type Config struct {
	MaxRetainedItems  int `json:"max_retained_items" yaml:"max_retained_items"`
	MaxPreviewItems   int `json:"max_preview_items" yaml:"max_preview_items"`
	MaxToolInputChars int `json:"max_tool_input_chars" yaml:"max_tool_input_chars"`
	MaxTextChars      int `json:"max_text_chars" yaml:"max_text_chars"`
}

// DefaultConfig returns the preview bounds used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxRetainedItems:  32,
		MaxPreviewItems:   6,
		MaxToolInputChars: 160,
		MaxTextChars:      600,
	}
}

// Clamp enforces MaxRetainedItems >= MaxPreviewItems.
func (c Config) Clamp() Config {
	if c.MaxRetainedItems < c.MaxPreviewItems {
		c.MaxRetainedItems = c.MaxPreviewItems
	}
	return c
}

type itemMeta struct {
	itemType string
	done     bool
}

// Accumulator holds one node's retained output state.
type Accumulator struct {
	order       *itemorder.List
	meta        map[string]*itemMeta
	tools       map[string]toolcall.State
	messages    *textparts.Store
	refusals    *textparts.Store
	inputs      *textparts.Store
	lifecycle   string
	lastUpdated time.Time
	dirty       bool
	now         func() time.Time
}

// New returns an empty accumulator. A nil clock means time.Now.
func New(now func() time.Time) *Accumulator {
	if now == nil {
		now = time.Now
	}
	return &Accumulator{
		order:    itemorder.New(),
		meta:     make(map[string]*itemMeta),
		tools:    make(map[string]toolcall.State),
		messages: textparts.New(),
		refusals: textparts.New(),
		inputs:   textparts.New(),
		now:      now,
	}
}

// Len reports how many items are currently retained.
func (a *Accumulator) Len() int { return a.order.Len() }

// Dirty reports whether state changed since the last ClearDirty.
func (a *Accumulator) Dirty() bool { return a.dirty }

// ClearDirty resets the change flag, typically after a snapshot rebuild.
func (a *Accumulator) ClearDirty() { a.dirty = false }

// Apply folds one event into the accumulator. Kinds without preview
// meaning (reasoning summaries, chunk streams, terminal signals, unknown
// kinds) are no-ops, as are item events without an item id.
func (a *Accumulator) Apply(ev event.Event, cfg Config) {
	switch e := ev.(type) {
	case event.ItemAdded:
		a.applyItemHeader(e.ItemID, e.OutputIndex, e.ItemType, false, cfg)
	case event.ItemDone:
		a.applyItemHeader(e.ItemID, e.OutputIndex, e.ItemType, true, cfg)
	case event.MessageDelta:
		if e.ItemID == "" {
			return
		}
		a.order.Ensure(e.ItemID, e.OutputIndex)
		a.messages.Append(e.ItemID, e.ContentIndex, e.Delta)
		a.finish(cfg)
	case event.RefusalDelta:
		if e.ItemID == "" {
			return
		}
		a.order.Ensure(e.ItemID, e.OutputIndex)
		a.refusals.Append(e.ItemID, e.ContentIndex, e.Delta)
		a.finish(cfg)
	case event.RefusalDone:
		if e.ItemID == "" {
			return
		}
		a.order.Ensure(e.ItemID, e.OutputIndex)
		a.refusals.Replace(e.ItemID, e.ContentIndex, e.Text)
		a.finish(cfg)
	case event.ToolStatus:
		if e.ItemID == "" {
			return
		}
		a.order.Ensure(e.ItemID, e.OutputIndex)
		p := toolcall.PatchFromTool(e.Tool)
		if p.Input != "" {
			a.inputs.Replace(e.ItemID, 0, p.Input)
			p.Input = textparts.Truncate(p.Input, cfg.MaxToolInputChars)
		}
		// previews keep label/status/input only; outputs stay unbounded
		p.Output, p.Error = "", ""
		a.mergeTool(e.ItemID, p)
		a.finish(cfg)
	case event.ToolArgsDelta:
		a.applyInputDelta(e.ItemID, e.OutputIndex, e.Delta, cfg)
	case event.ToolCodeDelta:
		a.applyInputDelta(e.ItemID, e.OutputIndex, e.Delta, cfg)
	case event.ToolArgsDone:
		a.applyInputFinal(e.ItemID, e.OutputIndex, e.Arguments, cfg)
	case event.ToolCodeDone:
		a.applyInputFinal(e.ItemID, e.OutputIndex, e.Code, cfg)
	case event.ToolOutput:
		if e.ItemID == "" {
			return
		}
		a.order.Ensure(e.ItemID, e.OutputIndex)
		p := toolcall.PatchFromOutput(e.Output, e.Error)
		p.Output, p.Error = "", ""
		a.mergeTool(e.ItemID, p)
		a.finish(cfg)
	case event.Lifecycle:
		if e.Status == "" {
			return
		}
		a.lifecycle = e.Status
		a.finish(cfg)
	default:
		// no preview meaning
	}
}

func (a *Accumulator) applyItemHeader(id string, idx int, itemType string, done bool, cfg Config) {
	if id == "" {
		return
	}
	a.order.Ensure(id, idx)
	m := a.metaFor(id)
	if itemType != "" {
		m.itemType = itemType
	}
	if done {
		m.done = true
	}
	if kind, ok := event.ToolKindForItemType(itemType); ok {
		if _, exists := a.tools[id]; !exists {
			a.tools[id] = toolcall.State{
				Label:  toolcall.LabelFor(kind, ""),
				Status: toolcall.StatusRunning,
			}
		}
	}
	a.finish(cfg)
}

func (a *Accumulator) applyInputDelta(id string, idx int, delta string, cfg Config) {
	if id == "" {
		return
	}
	a.order.Ensure(id, idx)
	full := a.inputs.Append(id, 0, delta)
	a.mergeTool(id, toolcall.Patch{Input: textparts.Truncate(full, cfg.MaxToolInputChars)})
	a.finish(cfg)
}

func (a *Accumulator) applyInputFinal(id string, idx int, text string, cfg Config) {
	if id == "" {
		return
	}
	a.order.Ensure(id, idx)
	full := a.inputs.Replace(id, 0, text)
	a.mergeTool(id, toolcall.Patch{Input: textparts.Truncate(full, cfg.MaxToolInputChars)})
	a.finish(cfg)
}

// mergeTool folds a patch into the item's tool state, defaulting fresh
// entries to running so a placeholder exists before any status arrives.
func (a *Accumulator) mergeTool(id string, p toolcall.Patch) {
	cur, ok := a.tools[id]
	if !ok {
		cur = toolcall.State{Status: toolcall.StatusRunning}
	}
	a.tools[id] = toolcall.Merge(cur, p)
}

func (a *Accumulator) metaFor(id string) *itemMeta {
	m := a.meta[id]
	if m == nil {
		m = &itemMeta{}
		a.meta[id] = m
	}
	return m
}

/// finish runs after every mutation: enforce retention, stamp, mark dirty.
func (a *Accumulator) finish(cfg Config) {
	a.evict(cfg.MaxRetainedItems)
	a.dirty = true
	a.lastUpdated = a.now()
}

// evict drops the oldest items (lowest output index) until the retained
// set fits, purging every trace of each dropped item.
func (a *Accumulator) evict(maxRetained int) {
	for _, id := range a.order.TrimFront(maxRetained) {
		delete(a.meta, id)
		delete(a.tools, id)
		a.messages.Delete(id)
		a.refusals.Delete(id)
		a.inputs.Delete(id)
	}
}
