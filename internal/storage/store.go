// Package storage persists order pairs so the engine can resume tracked
// positions across restarts.
package storage

import (
	"sort"
	"sync"

	"github.com/yanun0323/errors"

	"github.com/ghwfluffy/coinbase-tradebot/internal/pair"
)

// ErrNotFound means the pair is not in the store.
var ErrNotFound = errors.New("order pair not found")

// Filter narrows a Select.
type Filter struct {
	// Algorithm restricts to one trader's pairs when non-empty.
	Algorithm string
	// Active restricts to pairs still in flight (non-terminal states).
	Active bool
}

// Store is the order pair persistence collaborator. Select returns pairs
// ordered by creation time.
type Store interface {
	Select(f Filter) ([]pair.OrderPair, error)
	Insert(p pair.OrderPair) error
	Update(p pair.OrderPair) error
	Remove(uuid string) error
	Close() error
}

func matches(p pair.OrderPair, f Filter) bool {
	if f.Algorithm != "" && p.Algorithm != f.Algorithm {
		return false
	}
	if f.Active && p.State.Terminal() {
		return false
	}
	return true
}

// Memory is a Store held entirely in process, used by tests and replay runs.
type Memory struct {
	mu    sync.Mutex
	pairs map[string]pair.OrderPair
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{pairs: make(map[string]pair.OrderPair)}
}

func (m *Memory) Select(f Filter) ([]pair.OrderPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pair.OrderPair
	for _, p := range m.pairs {
		if matches(p, f) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedMicros != out[j].CreatedMicros {
			return out[i].CreatedMicros < out[j].CreatedMicros
		}
		return out[i].UUID < out[j].UUID
	})
	return out, nil
}

func (m *Memory) Insert(p pair.OrderPair) error {
	if p.UUID == "" {
		return errors.New("order pair missing uuid")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pairs[p.UUID]; ok {
		return errors.Errorf("order pair %s already stored", p.UUID)
	}
	m.pairs[p.UUID] = p
	return nil
}

func (m *Memory) Update(p pair.OrderPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pairs[p.UUID]; !ok {
		return ErrNotFound
	}
	m.pairs[p.UUID] = p
	return nil
}

func (m *Memory) Remove(uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pairs, uuid)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
