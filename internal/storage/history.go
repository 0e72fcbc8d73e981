package storage

import (
	"context"
)

// Store loads and persists the published-items history.
type Store interface {
	Load(ctx context.Context) (*History, error)
	Save(ctx context.Context, h *History) error
}

// History is an insertion-ordered set of published identifiers with a
// fixed capacity. When full, the oldest identifier is evicted first.
type History struct {
	capacity int
	order    []string // oldest first
	index    map[string]struct{}
}

// NewHistory creates an empty history. capacity <= 0 means unbounded.
func NewHistory(capacity int) *History {
	return &History{
		capacity: capacity,
		index:    make(map[string]struct{}),
	}
}

// NewHistoryFrom restores a history from identifiers ordered oldest first.
// Duplicates keep their first position; overflow drops the oldest.
func NewHistoryFrom(capacity int, ids []string) *History {
	h := NewHistory(capacity)
	for _, id := range ids {
		h.Add(id)
	}
	return h
}

// Contains reports whether id was already published.
func (h *History) Contains(id string) bool {
	_, ok := h.index[id]
	return ok
}

// Add appends id and evicts the oldest entries beyond capacity. It reports
// false when id was already present; re-insertion keeps the original
// position.
func (h *History) Add(id string) bool {
	if id == "" || h.Contains(id) {
		return false
	}
	h.order = append(h.order, id)
	h.index[id] = struct{}{}

	if h.capacity > 0 && len(h.order) > h.capacity {
		drop := len(h.order) - h.capacity
		for _, old := range h.order[:drop] {
			delete(h.index, old)
		}
		h.order = append([]string(nil), h.order[drop:]...)
	}
	return true
}

// IDs returns a copy of the identifiers, oldest first.
func (h *History) IDs() []string {
	return append([]string(nil), h.order...)
}

func (h *History) Len() int {
	return len(h.order)
}

func (h *History) Capacity() int {
	return h.capacity
}
