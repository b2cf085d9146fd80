package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// SessionRecord summarizes one closed feed connection. No prices are kept.
type SessionRecord struct {
	ID             string
	RemoteAddr     string
	ConnectedAt    time.Time
	SubscribedAt   *time.Time
	DisconnectedAt time.Time
	FramesSent     int64
	ErrorsSent     int64
	CloseReason    string
}

// Recorder persists closed sessions.
type Recorder interface {
	Record(ctx context.Context, rec SessionRecord) error
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// MemoryRecorder keeps records in process memory.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []SessionRecord
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		records: make([]SessionRecord, 0),
	}
}

func (m *MemoryRecorder) Record(_ context.Context, rec SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// DeleteBefore drops records whose session ended before the cutoff.
func (m *MemoryRecorder) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	var removed int64
	for _, r := range m.records {
		if r.DisconnectedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return removed, nil
}

// Records returns a copy of the stored records ordered by disconnect time.
func (m *MemoryRecorder) Records() []SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SessionRecord, len(m.records))
	copy(out, m.records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DisconnectedAt.Before(out[j].DisconnectedAt)
	})
	return out
}
