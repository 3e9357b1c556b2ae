// File: internal/mission/queue.go
package mission

import (
	json "github.com/json-iterator/go"
)

// Queue is a FIFO of missions. A raw text line is held at most once.
// The zero value is an empty queue.
type Queue struct {
	items []Record
}

// NewQueue creates a queue holding records in order, dropping duplicates.
func NewQueue(records ...Record) *Queue {
	q := &Queue{}
	for _, r := range records {
		q.Push(r)
	}
	return q
}

// Len returns the number of queued missions.
func (q *Queue) Len() int { return len(q.items) }

// Contains reports whether a mission with raw text raw is queued.
func (q *Queue) Contains(raw string) bool {
	for _, r := range q.items {
		if r.RawText == raw {
			return true
		}
	}
	return false
}

// Push appends r. It returns false, leaving the queue unchanged, when the
// same raw text is already queued.
func (q *Queue) Push(r Record) bool {
	if q.Contains(r.RawText) {
		return false
	}
	q.items = append(q.items, r)
	return true
}

// PushFront puts r back at the head of the queue so it is retried next.
// An existing entry with the same raw text is replaced.
func (q *Queue) PushFront(r Record) {
	kept := make([]Record, 0, len(q.items)+1)
	kept = append(kept, r)
	for _, it := range q.items {
		if it.RawText != r.RawText {
			kept = append(kept, it)
		}
	}
	q.items = kept
}

// Pop removes and returns the head of the queue.
func (q *Queue) Pop() (Record, bool) {
	if len(q.items) == 0 {
		return Record{}, false
	}
	r := q.items[0]
	q.items = q.items[1:]
	return r, true
}

// Clear empties the queue.
func (q *Queue) Clear() { q.items = nil }

// Items returns a copy of the queued missions in order.
func (q *Queue) Items() []Record {
	return append([]Record(nil), q.items...)
}

// MarshalJSON encodes the queue as a plain array.
func (q *Queue) MarshalJSON() ([]byte, error) {
	if q.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(q.items)
}

// UnmarshalJSON decodes a plain array, dropping duplicate raw text.
func (q *Queue) UnmarshalJSON(data []byte) error {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	q.items = nil
	for _, r := range records {
		q.Push(r)
	}
	return nil
}
