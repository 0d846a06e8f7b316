package model

import (
	"sync"

	"github.com/ghwfluffy/coinbase-tradebot/internal/store"
)

// ProfitData accumulates realized trade legs in pico dollars.
type ProfitData struct {
	Purchased Pico
	Sold      Pico
	BuyFees   Pico
	SellFees  Pico
}

// ProfitCents reduces the legs to display precision with asymmetric rounding:
// gains truncate down, losses round toward more-negative. The engine never
// reports profit it has not certainly captured.
func (d ProfitData) ProfitCents() Cents {
	net := int64(d.Sold) - int64(d.SellFees) - int64(d.Purchased) - int64(d.BuyFees)
	if net >= 0 {
		return Cents(net / int64(PicoPerCent))
	}
	loss := -net
	return Cents(-((loss + int64(PicoPerCent) - 1) / int64(PicoPerCent)))
}

// Profits tracks realized profit and loss across completed pairs.
type Profits struct {
	store.Notifier

	mu   sync.Mutex
	data ProfitData
}

// Add accumulates one completed pair. Legs with no purchase or no sale are
// ignored; a pair cannot realize anything without both.
func (p *Profits) Add(legs ProfitData) {
	if legs.Purchased == 0 || legs.Sold == 0 {
		return
	}
	p.mu.Lock()
	p.data.Purchased += legs.Purchased
	p.data.Sold += legs.Sold
	p.data.BuyFees += legs.BuyFees
	p.data.SellFees += legs.SellFees
	p.mu.Unlock()
	p.Updated()
}

// ProfitCents returns the accumulated realized profit at display precision.
func (p *Profits) ProfitCents() Cents {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data.ProfitCents()
}

// Data returns the raw accumulator.
func (p *Profits) Data() ProfitData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}
