package broker

import (
	"sync"

	"github.com/ghwfluffy/coinbase-tradebot/internal/store"
)

// OrderBook is a read-through mirror of broker order records. It is a cache,
// never authoritative: reconciliation force-refreshes from the broker when the
// cached state cannot be trusted.
type OrderBook struct {
	store.Notifier

	mu     sync.RWMutex
	orders map[string]Order
}

// GetOrder returns the cached record for an order, if present.
func (b *OrderBook) GetOrder(uuid string) (Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[uuid]
	return o, ok
}

// Update stores a broker record and notifies subscribers. A record identical
// to the cached one is dropped without notifying: reconciliation re-publishes
// what it fetched, and notifying on those would feed the dispatch loop its
// own output forever.
func (b *OrderBook) Update(o Order) {
	if !o.Valid() {
		return
	}
	b.mu.Lock()
	if b.orders == nil {
		b.orders = make(map[string]Order)
	}
	prev, ok := b.orders[o.UUID]
	if ok && prev == o {
		b.mu.Unlock()
		return
	}
	b.orders[o.UUID] = o
	b.mu.Unlock()
	b.Updated()
}

// Drop removes a terminal order from the mirror.
func (b *OrderBook) Drop(uuid string) {
	b.mu.Lock()
	delete(b.orders, uuid)
	b.mu.Unlock()
}
