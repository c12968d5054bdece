package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

type memoryEntry struct {
	batch    *types.Batch
	outcomes []*types.ProcessingOutcome
}

// MemoryStore keeps batches in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[string]*memoryEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{batches: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) CreateBatch(_ context.Context, b *types.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[b.ID]; exists {
		return fmt.Errorf("batch %s already exists", b.ID)
	}
	s.batches[b.ID] = &memoryEntry{batch: b.Clone()}
	return nil
}

func (s *MemoryStore) GetBatch(_ context.Context, id string) (*types.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.batch.Clone(), nil
}

func (s *MemoryStore) UpdateBatch(_ context.Context, id string, fn func(*types.Batch) error) (*types.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := e.batch.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	e.batch = next
	return next.Clone(), nil
}

func (s *MemoryStore) AppendOutcome(_ context.Context, id string, o *types.ProcessingOutcome, fn func(*types.Batch) error) (*types.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := e.batch.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	e.batch = next
	e.outcomes = append(e.outcomes, o.Clone())
	return next.Clone(), nil
}

func (s *MemoryStore) ListOutcomes(_ context.Context, id string) ([]*types.ProcessingOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]*types.ProcessingOutcome, len(e.outcomes))
	for i, o := range e.outcomes {
		out[i] = o.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
