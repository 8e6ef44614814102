package conversation

import (
	"context"
	"errors"
	"sync"
)

// ErrStateNotFound is returned when a sale has no cached record.
var ErrStateNotFound = errors.New("conversation: sale state not found")

// StateStore caches SaleState records. Implementations are best-effort: the
// engine must behave correctly even when a Get misses right after a Put.
type StateStore interface {
	Get(ctx context.Context, saleID string) (*SaleState, error)
	Put(ctx context.Context, state *SaleState) error
	List(ctx context.Context) ([]*SaleState, error)
}

// MemoryStore is the in-process cache, also used by tests.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*SaleState
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*SaleState)}
}

func (m *MemoryStore) Get(_ context.Context, saleID string) (*SaleState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[saleID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return state.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, state *SaleState) error {
	if state == nil || state.SaleID == "" {
		return errors.New("conversation: state requires a sale id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.SaleID] = state.Clone()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*SaleState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*SaleState, 0, len(m.states))
	for _, state := range m.states {
		out = append(out, state.Clone())
	}
	return out, nil
}

var _ StateStore = (*MemoryStore)(nil)
