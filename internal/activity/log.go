// Package activity keeps a bounded in-memory feed of recent bot actions for
// the dashboard. It is deliberately not persisted: the durable record lives
// in the conversation journal, this is just operator glanceware.
package activity

import (
	"sync"
	"time"
)

// Type tags a feed entry.
type Type string

const (
	TypeMessage  Type = "message"
	TypeDelivery Type = "delivery"
	TypeOrder    Type = "order"
	TypeQuestion Type = "question"
	TypeError    Type = "error"
	TypeSystem   Type = "system"
)

// Entry is one feed item.
type Entry struct {
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultCapacity bounds the feed. Old entries fall off the back.
const DefaultCapacity = 200

// Log is a fixed-capacity ring of entries, newest first on read.
// Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
	now     func() time.Time
}

// NewLog creates a feed with the given capacity; zero or negative means
// DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries: make([]Entry, capacity),
		now:     time.Now,
	}
}

// Record appends an entry, evicting the oldest when full.
func (l *Log) Record(typ Type, message, details string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = Entry{
		Type:      typ,
		Message:   message,
		Details:   details,
		Timestamp: l.now(),
	}
	l.next++
	if l.next == len(l.entries) {
		l.next = 0
		l.full = true
	}
}

// Recent returns up to n entries, newest first. n <= 0 returns everything.
func (l *Log) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	size := l.next
	if l.full {
		size = len(l.entries)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		idx := l.next - 1 - i
		if idx < 0 {
			idx += len(l.entries)
		}
		out = append(out, l.entries[idx])
	}
	return out
}

// CountByType returns how many retained entries carry each type.
func (l *Log) CountByType() map[Type]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	size := l.next
	if l.full {
		size = len(l.entries)
	}
	counts := make(map[Type]int)
	for i := 0; i < size; i++ {
		counts[l.entries[i].Type]++
	}
	return counts
}

// Len reports how many entries are retained.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return len(l.entries)
	}
	return l.next
}
