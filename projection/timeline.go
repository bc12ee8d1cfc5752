// Package projection builds local timelines from observed records.
// Handles ordering, deduplication, and projections.
// Does not emit events or interact with I/O directly.
package projection

import (
	"chat-sync/domain"
	"slices"
)

// Timeline is the ordered, deduplicated set of visible messages of one room.
// Order is creation time ascending, ties broken by id, whatever the delivery order.
type Timeline struct {
	messages []domain.Message
	ids      map[string]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{ids: make(map[string]struct{})}
}

// Replace drops the current content for messages. Duplicated ids keep the first occurrence.
func (t *Timeline) Replace(messages []domain.Message) {
	t.messages = make([]domain.Message, 0, len(messages))
	t.ids = make(map[string]struct{}, len(messages))
	for _, m := range messages {
		if _, ok := t.ids[m.ID]; ok {
			continue
		}
		t.ids[m.ID] = struct{}{}
		t.messages = append(t.messages, m)
	}
	slices.SortStableFunc(t.messages, domain.CompareMessages)
}

// Merge inserts m at its ordered position. An already known id is a no-op.
func (t *Timeline) Merge(m domain.Message) bool {
	if t.Has(m.ID) {
		return false
	}
	i, _ := slices.BinarySearchFunc(t.messages, m, domain.CompareMessages)
	t.messages = slices.Insert(t.messages, i, m)
	t.ids[m.ID] = struct{}{}
	return true
}

// Update replaces the fields of a known message and keeps its reactions.
func (t *Timeline) Update(m domain.Message) bool {
	i := t.index(m.ID)
	if i < 0 {
		return false
	}
	m.Reactions = t.messages[i].Reactions
	t.messages = slices.Delete(t.messages, i, i+1)
	j, _ := slices.BinarySearchFunc(t.messages, m, domain.CompareMessages)
	t.messages = slices.Insert(t.messages, j, m)
	return true
}

// Remove drops id. Absence is not an error.
func (t *Timeline) Remove(id string) bool {
	i := t.index(id)
	if i < 0 {
		return false
	}
	t.messages = slices.Delete(t.messages, i, i+1)
	delete(t.ids, id)
	return true
}

func (t *Timeline) Has(id string) bool {
	_, ok := t.ids[id]
	return ok
}

func (t *Timeline) Get(id string) (domain.Message, bool) {
	i := t.index(id)
	if i < 0 {
		return domain.Message{}, false
	}
	return t.messages[i], true
}

func (t *Timeline) Len() int { return len(t.messages) }

// IDs returns the ids in display order.
func (t *Timeline) IDs() []string {
	ids := make([]string, len(t.messages))
	for i, m := range t.messages {
		ids[i] = m.ID
	}
	return ids
}

// Messages returns a copy safe to hand out of the event loop.
func (t *Timeline) Messages() []domain.Message {
	out := make([]domain.Message, len(t.messages))
	for i, m := range t.messages {
		m.Reactions = slices.Clone(m.Reactions)
		out[i] = m
	}
	return out
}

func (t *Timeline) index(id string) int {
	if !t.Has(id) {
		return -1
	}
	return slices.IndexFunc(t.messages, func(m domain.Message) bool { return m.ID == id })
}
