package model

import (
	"sync"

	"github.com/ghwfluffy/coinbase-tradebot/internal/store"
)

// BtcPrice is the live asset price in cents. Mutated only by the price feed.
type BtcPrice struct {
	store.Notifier

	mu    sync.RWMutex
	cents Cents
}

// Cents returns the current price.
func (p *BtcPrice) Cents() Cents {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cents
}

// Set stores a new price and notifies subscribers.
func (p *BtcPrice) Set(cents Cents) {
	if cents <= 0 {
		return
	}
	p.mu.Lock()
	changed := p.cents != cents
	p.cents = cents
	p.mu.Unlock()
	if changed {
		p.Updated()
	}
}

// WalletData is a snapshot of broker balances.
type WalletData struct {
	UsdCents       Cents
	UsdHeldCents   Cents
	BtcSatoshi     Satoshi
	BtcHeldSatoshi Satoshi
}

// Wallet holds available and held balances for both currencies.
// Mutated only from broker query results (or the paper ledger in simulation).
type Wallet struct {
	store.Notifier

	mu   sync.RWMutex
	data WalletData
}

// Update replaces the balance snapshot.
func (w *Wallet) Update(data WalletData) {
	w.mu.Lock()
	w.data = data
	w.mu.Unlock()
	w.Updated()
}

// UsdCents returns the available quote balance.
func (w *Wallet) UsdCents() Cents {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.data.UsdCents
}

// Data returns the full balance snapshot.
func (w *Wallet) Data() WalletData {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.data
}

// FeeTier is the broker fee schedule in basis points.
type FeeTier struct {
	store.Notifier

	mu       sync.RWMutex
	makerBps uint32
	takerBps uint32
}

// Update stores new fee rates.
func (f *FeeTier) Update(makerBps, takerBps uint32) {
	f.mu.Lock()
	f.makerBps = makerBps
	f.takerBps = takerBps
	f.mu.Unlock()
	f.Updated()
}

// MakerBps returns the maker fee rate.
func (f *FeeTier) MakerBps() uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.makerBps
}

// MarketTime is the engine's notion of current time in microseconds,
// fed by the real or virtual clock.
type MarketTime struct {
	store.Notifier

	mu     sync.RWMutex
	micros int64
}

// Micros returns the current timestamp.
func (t *MarketTime) Micros() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.micros
}

// Set stores a new timestamp.
func (t *MarketTime) Set(micros int64) {
	t.mu.Lock()
	t.micros = micros
	t.mu.Unlock()
	t.Updated()
}

// BrokerReady gates trading until the first successful broker sync.
type BrokerReady struct {
	store.Notifier

	mu    sync.RWMutex
	ready bool
}

// Ready reports whether the broker state has been synced at least once.
func (b *BrokerReady) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// Mark flips the gate.
func (b *BrokerReady) Mark() {
	b.mu.Lock()
	was := b.ready
	b.ready = true
	b.mu.Unlock()
	if !was {
		b.Updated()
	}
}
