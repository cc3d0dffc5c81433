// Package textparts assembles streamed text fragments into whole strings.
// Producers interleave deltas across items and content slots; the store
// keeps per-slot partials and joins them in ascending slot order.
package textparts

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// Store holds partial text keyed by item id and content slot index.
type Store struct {
	items map[string]map[int]string
}

// New returns an empty store.
func New() *Store {
	return &Store{items: make(map[string]map[int]string)}
}

// Append concatenates delta onto the item's slot and returns the item's
// full assembled text.
func (s *Store) Append(itemID string, slot int, delta string) string {
	m := s.items[itemID]
	if m == nil {
		m = make(map[int]string)
		s.items[itemID] = m
	}
	m[slot] += delta
	return assemble(m)
}

// Replace overwrites the item's slot with its final text and returns the
// item's full assembled text. Done events supersede streamed deltas.
func (s *Store) Replace(itemID string, slot int, text string) string {
	m := s.items[itemID]
	if m == nil {
		m = make(map[int]string)
		s.items[itemID] = m
	}
	m[slot] = text
	return assemble(m)
}

// Text returns the item's assembled text, empty when the item is unknown.
func (s *Store) Text(itemID string) string {
	m := s.items[itemID]
	if m == nil {
		return ""
	}
	return assemble(m)
}

// Delete drops all slots of an item.
func (s *Store) Delete(itemID string) {
	delete(s.items, itemID)
}

// Len reports how many items currently hold text.
func (s *Store) Len() int {
	return len(s.items)
}

// Truncate clips s to max runes, marking the cut with an ellipsis.
// Non-positive max means no limit.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}

func assemble(m map[int]string) string {
	if len(m) == 1 {
		for _, v := range m {
			return v
		}
	}
	slots := make([]int, 0, len(m))
	for i := range m {
		slots = append(slots, i)
	}
	slices.Sort(slots)
	var b strings.Builder
	for _, i := range slots {
		b.WriteString(m[i])
	}
	return b.String()
}
