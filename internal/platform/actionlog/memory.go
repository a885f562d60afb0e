package actionlog

import (
	"context"
	"sync"
	"time"
)

// MemoryLog is the in-process fallback used when no Redis is
// configured. Same retention bound, no persistence.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{max: DefaultMax}
}

func (m *MemoryLog) Record(ctx context.Context, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
}

func (m *MemoryLog) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 || n > DefaultMax {
		n = DefaultMax
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > len(m.entries) {
		n = len(m.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(m.entries) - 1; i >= len(m.entries)-n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
