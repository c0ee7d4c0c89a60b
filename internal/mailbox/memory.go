package mailbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/eleven-am/dictation/internal/shared"
)

// Memory is an in-process mailbox for a worker and caller sharing one process.
type Memory struct {
	mu     sync.Mutex
	items  map[string][]byte
	purged bool
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func NewMemoryPair() Pair {
	return Pair{Requests: NewMemory(), Responses: NewMemory()}
}

func (m *Memory) Ensure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged = false
	return nil
}

func (m *Memory) Publish(ctx context.Context, id string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.purged {
		return fmt.Errorf("%w: mailbox purged", shared.ErrTransport)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.items[id] = cp
	return nil
}

func (m *Memory) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.purged {
		return nil, fmt.Errorf("%w: mailbox purged", shared.ErrTransport)
	}
	ids := make([]string, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Memory) Read(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return data, nil
}

func (m *Memory) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[id]
	delete(m.items, id)
	return ok, nil
}

func (m *Memory) Probe(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.purged {
		return fmt.Errorf("%w: mailbox purged", shared.ErrTransport)
	}
	return nil
}

func (m *Memory) Purge(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string][]byte)
	m.purged = true
	return nil
}
