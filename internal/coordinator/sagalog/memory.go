package sagalog

import (
	"context"
	"sync"
)

// Memory is a Repository kept in process memory.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]SagaLog
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]SagaLog)}
}

func (m *Memory) Save(_ context.Context, entry *SagaLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.SagaID] = append(m.entries[entry.SagaID], *entry)
	return nil
}

func (m *Memory) List(_ context.Context, sagaID string) ([]SagaLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, ok := m.entries[sagaID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]SagaLog(nil), rows...), nil
}
