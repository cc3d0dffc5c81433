// Package itemorder keeps output items sorted by their final output
// index regardless of arrival order. Records live in a growable arena
// with a side map from item id to slot; eviction is a front compaction
// pass rather than per-key deletion.
package itemorder

import "sort"

// Rec is one ordered item record.
type Rec struct {
	ID    string
	Index int
}

// List is an ordered set of item records. Not safe for concurrent use.
type List struct {
	recs  []Rec
	slots map[string]int
}

// New returns an empty list.
func New() *List {
	return &List{slots: make(map[string]int)}
}

// Len reports the number of records.
func (l *List) Len() int { return len(l.recs) }

// Records returns the records in display order. Callers must not mutate
// the returned slice.
func (l *List) Records() []Rec { return l.recs }

// Contains reports whether an item is present.
func (l *List) Contains(id string) bool {
	_, ok := l.slots[id]
	return ok
}

// Ensure places the item at its sorted position by output index; ties
// keep first-seen order. Re-seeing an item with a different index
// repositions it; with the same index it is a no-op.
func (l *List) Ensure(id string, idx int) {
	if pos, ok := l.slots[id]; ok {
		if l.recs[pos].Index == idx {
			return
		}
		copy(l.recs[pos:], l.recs[pos+1:])
		l.recs = l.recs[:len(l.recs)-1]
		l.insert(Rec{ID: id, Index: idx}, pos)
		return
	}
	l.insert(Rec{ID: id, Index: idx}, len(l.recs))
}

// TrimFront drops the oldest records (lowest index) until at most keep
// remain and returns the dropped ids so callers can purge side state.
// Non-positive keep trims nothing.
func (l *List) TrimFront(keep int) []string {
	if keep <= 0 || len(l.recs) <= keep {
		return nil
	}
	drop := len(l.recs) - keep
	dropped := make([]string, drop)
	for i, rec := range l.recs[:drop] {
		dropped[i] = rec.ID
		delete(l.slots, rec.ID)
	}
	remaining := len(l.recs) - drop
	copy(l.recs, l.recs[drop:])
	l.recs = l.recs[:remaining]
	for i, rec := range l.recs {
		l.slots[rec.ID] = i
	}
	return dropped
}

// insert adds rec at its sorted slot and refreshes positions from the
// lowest affected slot onward.
func (l *List) insert(rec Rec, touchedFrom int) {
	pos := sort.Search(len(l.recs), func(i int) bool { return l.recs[i].Index > rec.Index })
	l.recs = append(l.recs, Rec{})
	copy(l.recs[pos+1:], l.recs[pos:])
	l.recs[pos] = rec
	if pos < touchedFrom {
		touchedFrom = pos
	}
	for i := touchedFrom; i < len(l.recs); i++ {
		l.slots[l.recs[i].ID] = i
	}
}
