package trader

import (
	"github.com/ghwfluffy/coinbase-tradebot/internal/clock"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/pair"
	"github.com/ghwfluffy/coinbase-tradebot/internal/ramp"
	"github.com/ghwfluffy/coinbase-tradebot/internal/storage"
	"github.com/ghwfluffy/coinbase-tradebot/internal/store"
)

// StaticConfig tunes the static trader.
type StaticConfig struct {
	ramp.TraderConfig
	// BuyPrice and SellPrice are the fixed targets of the single pair.
	BuyPrice  model.Cents
	SellPrice model.Cents
}

// Static holds exactly one pair at operator-chosen targets, re-opening it
// each time the previous one retires.
type Static struct {
	*Core
	scfg StaticConfig
}

// NewStatic builds the static trader and hooks it into the registry.
func NewStatic(scfg StaticConfig, clk clock.Clock, sm *pair.StateMachine,
	st storage.Store, reg *store.Registry) (*Static, error) {
	core, err := newCore(scfg.TraderConfig, clk, sm, st, reg)
	if err != nil {
		return nil, err
	}
	s := &Static{Core: core, scfg: scfg}
	core.handleNew = s.maybeOpen
	return s, nil
}

func (s *Static) maybeOpen(model.Cents) {
	if len(s.pairs) > 0 {
		return
	}
	p, err := ramp.NewStatic(s.cfg, s.clk.NowMicros(), s.scfg.BuyPrice, s.scfg.SellPrice)
	if err != nil {
		s.reportNewPairErr(err)
		return
	}
	s.addPair(p)
}
