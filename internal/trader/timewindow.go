package trader

import (
	"github.com/yanun0323/logs"

	"github.com/ghwfluffy/coinbase-tradebot/internal/clock"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/pair"
	"github.com/ghwfluffy/coinbase-tradebot/internal/ramp"
	"github.com/ghwfluffy/coinbase-tradebot/internal/storage"
	"github.com/ghwfluffy/coinbase-tradebot/internal/store"
)

// TimeWindowConfig tunes the time window trader.
type TimeWindowConfig struct {
	ramp.TraderConfig
	// WindowSeconds is how long each observation window runs.
	WindowSeconds int64
	// MinSpreadBps discards windows whose high-low range is too narrow to
	// cover fees.
	MinSpreadBps uint32
	// PaddingBps pulls the targets inside the observed extremes so fills
	// do not require the exact high or low to repeat.
	PaddingBps uint32
	// MaxPairs caps concurrent positions. Zero means unlimited.
	MaxPairs int
}

// TimeWindow watches the high and low over a fixed window and opens a pair
// targeting a band just inside those extremes.
type TimeWindow struct {
	*Core
	tcfg TimeWindowConfig

	windowStart int64
	lowest      model.Cents
	highest     model.Cents
}

// NewTimeWindow builds the time window trader and hooks it into the registry.
func NewTimeWindow(tcfg TimeWindowConfig, clk clock.Clock, sm *pair.StateMachine,
	st storage.Store, reg *store.Registry) (*TimeWindow, error) {
	core, err := newCore(tcfg.TraderConfig, clk, sm, st, reg)
	if err != nil {
		return nil, err
	}
	w := &TimeWindow{Core: core, tcfg: tcfg}
	core.handleNew = w.observe
	return w, nil
}

func (w *TimeWindow) reset(now int64, price model.Cents) {
	w.windowStart = now
	w.lowest = price
	w.highest = price
}

func (w *TimeWindow) observe(price model.Cents) {
	now := w.clk.NowMicros()
	if w.windowStart == 0 {
		w.reset(now, price)
		return
	}

	if price > w.highest {
		w.highest = price
	}
	if w.cfg.MaxValue > 0 && w.highest > w.cfg.MaxValue {
		w.highest = w.cfg.MaxValue
	}
	if price < w.lowest {
		w.lowest = price
	}
	if w.lowest > w.highest {
		w.lowest = w.highest
	}

	if now < w.windowStart+w.tcfg.WindowSeconds*1_000_000 {
		return
	}

	lowest, highest := w.lowest, w.highest
	w.reset(now, price)

	mid := (highest + lowest) / 2
	if mid <= 0 {
		return
	}
	spread := int64(highest-lowest) * 10_000 / int64(mid)
	if spread < int64(w.tcfg.MinSpreadBps) {
		logs.Debugf("%s window spread %dbps below minimum", w.cfg.Name, spread)
		return
	}
	padding := model.Cents(int64(mid)*int64(w.tcfg.PaddingBps)/10_000 + 1)
	buy := lowest + padding
	sell := highest - padding
	if sell <= buy {
		return
	}

	if !w.makeRoom(w.tcfg.MaxPairs, now, price) {
		return
	}
	p, err := ramp.NewStatic(w.cfg, now, buy, sell)
	if err != nil {
		w.reportNewPairErr(err)
		return
	}
	w.addPair(p)
}
