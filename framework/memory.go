package framework

import (
	"sync"
	"time"
)

// MemoryEntry is a single remembered turn.
type MemoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ScratchMemory is a fixed-capacity FIFO of recent turns. Once full, each
// append evicts the oldest entry. It lives for a single run.
type ScratchMemory struct {
	mu      sync.Mutex
	entries []MemoryEntry
	start   int
	size    int
}

// DefaultScratchCapacity matches the number of turns kept for diagnostics.
const DefaultScratchCapacity = 5

// NewScratchMemory builds a ring buffer holding up to capacity entries.
func NewScratchMemory(capacity int) *ScratchMemory {
	if capacity <= 0 {
		capacity = DefaultScratchCapacity
	}
	return &ScratchMemory{entries: make([]MemoryEntry, capacity)}
}

// Append stores an entry, evicting the oldest when the buffer is full.
func (m *ScratchMemory) Append(role, content string) {
	m.AppendEntry(MemoryEntry{Role: role, Content: content, Timestamp: time.Now().UTC()})
}

// AppendEntry stores a prepared entry.
func (m *ScratchMemory) AppendEntry(entry MemoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	capacity := len(m.entries)
	if m.size < capacity {
		m.entries[(m.start+m.size)%capacity] = entry
		m.size++
		return
	}
	m.entries[m.start] = entry
	m.start = (m.start + 1) % capacity
}

// Entries returns a copy of the stored entries, oldest first.
func (m *ScratchMemory) Entries() []MemoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MemoryEntry, 0, m.size)
	for i := 0; i < m.size; i++ {
		out = append(out, m.entries[(m.start+i)%len(m.entries)])
	}
	return out
}

// Len reports the number of stored entries.
func (m *ScratchMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Cap reports the buffer capacity.
func (m *ScratchMemory) Cap() int {
	return len(m.entries)
}
