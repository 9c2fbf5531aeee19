package txlog

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type MemoryStore struct {
	mu      sync.Mutex
	records map[common.Hash]TransactionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[common.Hash]TransactionRecord)}
}

func (s *MemoryStore) Put(_ context.Context, r TransactionRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.records[r.Hash]; ok {
		if err := CheckTransition(prev, r); err != nil {
			return err
		}
		// Keep the first submission time.
		if !prev.SubmittedAt.IsZero() {
			r.SubmittedAt = prev.SubmittedAt
		}
	}
	s.records[r.Hash] = r
	return nil
}

func (s *MemoryStore) Get(_ context.Context, hash common.Hash) (TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[hash]
	if !ok {
		return TransactionRecord{}, ErrNotFound
	}
	return r, nil
}

// List returns the newest records first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]TransactionRecord, error) {
	s.mu.Lock()
	out := make([]TransactionRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].Hash.Hex() < out[j].Hash.Hex()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
