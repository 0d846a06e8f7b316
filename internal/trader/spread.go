package trader

import (
	"github.com/ghwfluffy/coinbase-tradebot/internal/clock"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/pair"
	"github.com/ghwfluffy/coinbase-tradebot/internal/ramp"
	"github.com/ghwfluffy/coinbase-tradebot/internal/storage"
	"github.com/ghwfluffy/coinbase-tradebot/internal/store"
)

// SpreadConfig tunes the spread trader.
type SpreadConfig struct {
	ramp.TraderConfig
	// SpreadBps is the width of each new pair in basis points of the price.
	SpreadBps uint32
	// BufferPercent is how far, in percent of the spread, the price must
	// drift from every tracked pair before a new one opens.
	BufferPercent uint32
	// MaxPairs caps concurrent positions. Zero means unlimited.
	MaxPairs int
}

// Spread keeps a ladder of pairs around the moving price: whenever the price
// drifts far enough from every tracked pair, it opens a fresh one centered on
// the market.
type Spread struct {
	*Core
	scfg SpreadConfig
}

// NewSpread builds the spread trader and hooks it into the registry.
func NewSpread(scfg SpreadConfig, clk clock.Clock, sm *pair.StateMachine,
	st storage.Store, reg *store.Registry) (*Spread, error) {
	core, err := newCore(scfg.TraderConfig, clk, sm, st, reg)
	if err != nil {
		return nil, err
	}
	s := &Spread{Core: core, scfg: scfg}
	core.handleNew = s.maybeOpen
	return s, nil
}

func (s *Spread) maybeOpen(price model.Cents) {
	if len(s.pairs) > 0 {
		threshold := model.Cents(int64(price) * int64(s.scfg.SpreadBps) / 10_000 *
			int64(s.scfg.BufferPercent) / 100)
		if s.closestDistance(price) <= threshold {
			return
		}
	}

	now := s.clk.NowMicros()
	if !s.makeRoom(s.scfg.MaxPairs, now, price) {
		return
	}
	p, err := ramp.NewSpread(s.cfg, now, price, s.scfg.SpreadBps)
	if err != nil {
		s.reportNewPairErr(err)
		return
	}
	s.addPair(p)
}

// closestDistance is the nearest any tracked pair sits to the price,
// measuring against buy, sell, and midpoint.
func (s *Spread) closestDistance(price model.Cents) model.Cents {
	var closest model.Cents = -1
	for _, p := range s.pairs {
		d := minCents(absCents(p.BuyPrice-price), absCents(p.SellPrice-price))
		d = minCents(d, absCents(p.MidPrice()-price))
		if closest < 0 || d < closest {
			closest = d
		}
	}
	return closest
}
