// Package debuglog keeps a session-only record of the requests sent to the
// completion service and the replies received, newest last.
package debuglog

import (
	"sync"
	"time"

	"github.com/rs/xid"
)

// Kind tells requests, responses and field insertions apart.
type Kind string

const (
	KindRequest  Kind = "req"
	KindResponse Kind = "res"
	KindInsert   Kind = "ins"
)

// DefaultCapacity bounds the ring when New is given a non-positive size.
const DefaultCapacity = 100

// Entry is one logged message.
type Entry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Content   any       `json:"content"`
	Time      time.Time `json:"time"`
	Thumbnail string    `json:"thumbnail,omitempty"`
}

// Log is a bounded, concurrency-safe ring of entries.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// New returns a log holding at most capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{max: capacity}
}

// Add appends an entry and returns it. The oldest entry is dropped once the
// log is full.
func (l *Log) Add(kind Kind, content any) Entry {
	e := Entry{
		ID:      xid.New().String(),
		Kind:    kind,
		Content: content,
		Time:    time.Now(),
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
	return e
}

// Attach records a thumbnail path on the entry with the given id.
func (l *Log) Attach(id, thumbnail string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries[i].Thumbnail = thumbnail
			return true
		}
	}
	return false
}

// Entries returns a copy of the log, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Clear empties the log.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}
