package preview

import (
	"time"

	"github.com/runlens/runlens/internal/domain/toolcall"
	"github.com/runlens/runlens/internal/textparts"
)

// ItemType classifies a rendered preview entry.
type ItemType string

const (
	ItemMessage ItemType = "message"
	ItemRefusal ItemType = "refusal"
	ItemTool    ItemType = "tool"
)

// Item is one rendered entry of a node preview. An item is exactly one
// of message, refusal or tool; tool state wins over captured text. A
// live-cursor marker belongs after the text only while Done is false.
type Item struct {
	ID   string          `json:"id"`
	Type ItemType        `json:"type"`
	Text string          `json:"text,omitempty"`
	Done bool            `json:"done"`
	Tool *toolcall.State `json:"tool,omitempty"`
}

// Snapshot is an immutable bounded projection of a node's accumulated
// state. Rebuilds replace the whole value, so holders may compare
// snapshots by reference to detect change.
type Snapshot struct {
	HasContent    bool      `json:"has_content"`
	LastUpdated   time.Time `json:"last_updated"`
	Lifecycle     string    `json:"lifecycle,omitempty"`
	Items         []Item    `json:"items"`
	OverflowCount int       `json:"overflow_count"`
}

// Empty is the snapshot served for nodes that have produced nothing yet.
// It is shared, so reference comparison against it stays meaningful.
var Empty = &Snapshot{Items: []Item{}}

// Build projects the accumulator into a snapshot: the last
// MaxPreviewItems items by output index, message/refusal text clipped to
// MaxTextChars. Build has no side effects and may run at any time.
func (a *Accumulator) Build(cfg Config) *Snapshot {
	recs := a.order.Records()
	s := &Snapshot{
		HasContent:  len(recs) > 0 || a.lifecycle != "",
		LastUpdated: a.lastUpdated,
		Lifecycle:   a.lifecycle,
	}
	start := 0
	if cfg.MaxPreviewItems > 0 && len(recs) > cfg.MaxPreviewItems {
		start = len(recs) - cfg.MaxPreviewItems
	}
	s.OverflowCount = start
	s.Items = make([]Item, 0, len(recs)-start)
	for _, rec := range recs[start:] {
		s.Items = append(s.Items, a.renderItem(rec.ID, cfg))
	}
	return s
}

func (a *Accumulator) renderItem(id string, cfg Config) Item {
	it := Item{ID: id}
	if m := a.meta[id]; m != nil {
		it.Done = m.done
	}
	if st, ok := a.tools[id]; ok {
		tool := st
		it.Type = ItemTool
		it.Tool = &tool
		return it
	}
	if txt := a.refusals.Text(id); txt != "" {
		it.Type = ItemRefusal
		it.Text = textparts.Truncate(txt, cfg.MaxTextChars)
		return it
	}
	it.Type = ItemMessage
	it.Text = textparts.Truncate(a.messages.Text(id), cfg.MaxTextChars)
	return it
}
