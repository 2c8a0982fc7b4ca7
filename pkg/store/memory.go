// Package store provides the persistence implementations of the contract
// store: in-memory for tests and embedded use, SQLite for single-node
// deployments, Postgres for shared ones. All three persist a transition and
// its history row as one atomic unit and reject stale-version writes.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/cartorio-ai/cartorio/pkg/contract"
)

// MemoryStore is a mutex-guarded in-memory contract store.
type MemoryStore struct {
	mu        sync.RWMutex
	contracts map[string]contract.RegistryContract
	history   map[string][]contract.HistoryRow
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contracts: make(map[string]contract.RegistryContract),
		history:   make(map[string][]contract.HistoryRow),
	}
}

// Create implements contract.Store.
func (s *MemoryStore) Create(_ context.Context, c *contract.RegistryContract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contracts[c.ID]; exists {
		return fmt.Errorf("store: contract %s already exists", c.ID)
	}
	s.contracts[c.ID] = *c
	return nil
}

// Get implements contract.Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*contract.RegistryContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("store: %s: %w", id, contract.ErrNotFound)
	}
	out := c
	return &out, nil
}

// ApplyTransition implements contract.Store.
func (s *MemoryStore) ApplyTransition(_ context.Context, c *contract.RegistryContract, expectVersion int64, row *contract.HistoryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.contracts[c.ID]
	if !ok {
		return fmt.Errorf("store: %s: %w", c.ID, contract.ErrNotFound)
	}
	if current.Version != expectVersion {
		return fmt.Errorf("store: %s at version %d, expected %d: %w",
			c.ID, current.Version, expectVersion, contract.ErrConcurrentTransition)
	}
	s.contracts[c.ID] = *c
	s.history[c.ID] = append(s.history[c.ID], *row)
	return nil
}

// History implements contract.Store.
func (s *MemoryStore) History(_ context.Context, contractID string) ([]contract.HistoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.history[contractID]
	out := make([]contract.HistoryRow, len(rows))
	copy(out, rows)
	return out, nil
}

// LastHistory implements contract.Store.
func (s *MemoryStore) LastHistory(_ context.Context, contractID string) (*contract.HistoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.history[contractID]
	if len(rows) == 0 {
		return nil, nil
	}
	out := rows[len(rows)-1]
	return &out, nil
}
