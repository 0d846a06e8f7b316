package ramp

import (
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/ghwfluffy/coinbase-tradebot/internal/market"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/pair"
)

var (
	// ErrDisabled means the trader (or its cold period) forbids new positions.
	ErrDisabled = errors.New("trader disabled")
	// ErrPaused means a schedule period is holding off new positions.
	ErrPaused = errors.New("new positions paused")
	// ErrPriceCeiling means the sell target exceeds the trader's max value.
	ErrPriceCeiling = errors.New("sell target above max value")
	// ErrInvalidMidpoint means the pair's prices cannot anchor a spread.
	ErrInvalidMidpoint = errors.New("invalid midpoint")
	// ErrBetTooSmall means the bet buys zero quantity at the buy target.
	ErrBetTooSmall = errors.New("bet too small for price")
)

// periodModifier is the resolved period of one configured market at one
// instant: which phase holds and how far into its buffer the instant sits.
type periodModifier struct {
	cal        market.Calendar
	phase      pair.Phase
	period     PeriodConfig
	intoBuffer int64
}

// periodModifiers resolves every configured market to its current phase.
// Boundary-adjacent phases measure intoBuffer toward the boundary; open and
// closed phases measure time since the last boundary.
func periodModifiers(cfg TraderConfig, nowMicros int64) []periodModifier {
	mods := make([]periodModifier, 0, len(cfg.Markets))
	for _, m := range cfg.Markets {
		s := market.At(m.Calendar, nowMicros)
		mod := periodModifier{cal: m.Calendar}
		switch {
		case s.IsOpen():
			till := s.TillClose()
			if s.IsWeekendNext() && till <= m.Weekending.BufferPeriod() {
				mod.phase = pair.PhaseWeekending
				mod.period = m.Weekending
				mod.intoBuffer = m.Weekending.BufferPeriod() - till
			} else if till <= m.Closing.BufferPeriod() {
				mod.phase = pair.PhaseClosing
				mod.period = m.Closing
				mod.intoBuffer = m.Closing.BufferPeriod() - till
			} else {
				mod.phase = pair.PhaseOpen
				mod.period = m.Open
				mod.intoBuffer = s.SinceOpen()
			}
		case s.IsWeekend():
			till := s.TillOpen()
			if till <= m.WeekStarting.BufferPeriod() {
				mod.phase = pair.PhaseWeekStarting
				mod.period = m.WeekStarting
				mod.intoBuffer = m.WeekStarting.BufferPeriod() - till
			} else {
				mod.phase = pair.PhaseWeekend
				mod.period = m.Weekend
				mod.intoBuffer = s.SinceClose()
			}
		default:
			till := s.TillOpen()
			if till <= m.Opening.BufferPeriod() {
				mod.phase = pair.PhaseOpening
				mod.period = m.Opening
				mod.intoBuffer = m.Opening.BufferPeriod() - till
			} else {
				mod.phase = pair.PhaseClosed
				mod.period = m.Closed
				mod.intoBuffer = s.SinceClose()
			}
		}
		mods = append(mods, mod)
	}
	return mods
}

// NewSpread builds a pair centered on price with a proportional spread in
// basis points, then applies every market's current period.
func NewSpread(cfg TraderConfig, nowMicros int64, price model.Cents, spreadBps uint32) (pair.OrderPair, error) {
	if !cfg.Enabled {
		return pair.OrderPair{}, ErrDisabled
	}
	if price <= 0 {
		return pair.OrderPair{}, ErrInvalidMidpoint
	}
	raw, err := model.CheckedMul(int64(price), int64(spreadBps))
	if err != nil {
		return pair.OrderPair{}, errors.Wrap(err, "compute spread")
	}
	// Round the spread up so a nonzero basis-point request never collapses
	// to a zero-width pair.
	spreadCents := (raw + 9_999) / 10_000
	half := model.Cents((spreadCents + 1) / 2)

	p := pair.New(cfg.Name, cfg.BetCents, nowMicros)
	p.BuyPrice = price - half
	p.SellPrice = price + half
	if p.BuyPrice <= 0 {
		return pair.OrderPair{}, ErrInvalidMidpoint
	}
	return finish(cfg, p, nowMicros)
}

// NewStatic builds a pair at fixed buy and sell targets, then applies every
// market's current period.
func NewStatic(cfg TraderConfig, nowMicros int64, buy, sell model.Cents) (pair.OrderPair, error) {
	if !cfg.Enabled {
		return pair.OrderPair{}, ErrDisabled
	}
	if buy <= 0 || sell < buy {
		return pair.OrderPair{}, ErrInvalidMidpoint
	}
	p := pair.New(cfg.Name, cfg.BetCents, nowMicros)
	p.BuyPrice = buy
	p.SellPrice = sell
	return finish(cfg, p, nowMicros)
}

func finish(cfg TraderConfig, p pair.OrderPair, nowMicros int64) (pair.OrderPair, error) {
	for _, mod := range periodModifiers(cfg, nowMicros) {
		if err := applyNewModifier(&p, mod); err != nil {
			return pair.OrderPair{}, err
		}
	}
	if cfg.MaxValue > 0 && p.SellPrice > cfg.MaxValue {
		return pair.OrderPair{}, ErrPriceCeiling
	}
	p.Quantity = model.SatoshiForPrice(p.BuyPrice, p.BetCents)
	if p.Quantity <= 0 {
		return pair.OrderPair{}, ErrBetTooSmall
	}
	p.OrigSellPrice = p.SellPrice
	return p, nil
}

// applyNewModifier applies one market period to a new pair. Inside the ramp
// sub-window the spread widens by up to RampGrade basis points of itself; the
// extra decays to zero as a hot ramp progresses and grows from zero as a cold
// ramp approaches its boundary.
func applyNewModifier(p *pair.OrderPair, mod periodModifier) error {
	buffer := mod.period.BufferPeriod()
	if !mod.period.Hot && buffer == 0 {
		p.AddModifier(pair.SideBuy, mod.cal, mod.phase, pair.ActionDisabled)
		return ErrDisabled
	}
	if mod.intoBuffer > buffer {
		if mod.period.Hot {
			p.AddModifier(pair.SideBuy, mod.cal, mod.phase, pair.ActionPass)
			return nil
		}
		p.AddModifier(pair.SideBuy, mod.cal, mod.phase, pair.ActionFullPause)
		return ErrPaused
	}

	// Cold periods ramp first then pause into the boundary; hot periods
	// pause first then ramp out of it.
	paused := true
	if !mod.period.Hot && mod.intoBuffer < mod.period.RampPeriod {
		paused = false
	} else if mod.period.Hot && mod.intoBuffer > mod.period.PausePeriod {
		paused = false
	}
	if paused {
		p.AddModifier(pair.SideBuy, mod.cal, mod.phase, pair.ActionPause)
		return ErrPaused
	}

	intoRamp := mod.intoBuffer
	if mod.period.Hot {
		intoRamp -= mod.period.PausePeriod
	}
	var rampPercent int64
	if mod.period.RampPeriod > 0 {
		rampPercent = intoRamp * int64(mod.period.RampGrade) / mod.period.RampPeriod
	}
	if mod.period.Hot {
		rampPercent = int64(mod.period.RampGrade) - rampPercent
	}
	if rampPercent <= 0 {
		p.AddModifier(pair.SideBuy, mod.cal, mod.phase, pair.ActionPass)
		return nil
	}

	if p.SellPrice < p.BuyPrice {
		p.SellPrice = p.BuyPrice
	}
	mid := (p.SellPrice + p.BuyPrice + 1) / 2
	if mid <= 0 {
		logs.Errorf("%s pair %s has no usable midpoint", p.Algorithm, p.UUID)
		return ErrInvalidMidpoint
	}
	diff := int64(p.SellPrice - p.BuyPrice)
	spread := diff * 10_000 / int64(mid)
	if spread < 1 {
		spread = 1
	}
	spread += spread * rampPercent / 10_000
	widened := int64(mid) * spread / 10_000
	newBuy := mid - model.Cents(widened)
	newSell := mid + model.Cents(widened)
	if newBuy > p.BuyPrice || newSell < p.SellPrice {
		// Granularity loss can only narrow, never widen. Keep the prices.
		p.AddModifier(pair.SideBuy, mod.cal, mod.phase, pair.ActionPass)
		return nil
	}
	p.BuyPrice = newBuy
	p.SellPrice = newSell
	p.AddModifier(pair.SideBuy, mod.cal, mod.phase, pair.ActionRamp)
	return nil
}

// CheckSale recomputes the sale target of a Holding pair from its original
// target, discounting toward the buy price while closing-side periods accept
// losses. Safe to call repeatedly: each call starts from the original target.
// Reports whether the sale target changed.
func CheckSale(cfg TraderConfig, p *pair.OrderPair, nowMicros int64) bool {
	if p.State != pair.StateHolding {
		return false
	}
	before := p.SellPrice
	p.SellPrice = p.OrigSellPrice
	p.ClearSellModifiers()
	for _, mod := range periodModifiers(cfg, nowMicros) {
		applySellModifier(p, mod)
	}
	return p.SellPrice != before
}

// applySellModifier discounts the sale target by up to PauseAcceptLoss basis
// points of the pair's spread. The discount grows as a cold period approaches
// its boundary and decays as a hot period leaves one.
func applySellModifier(p *pair.OrderPair, mod periodModifier) {
	if mod.period.PauseAcceptLoss == 0 ||
		(mod.period.Hot && mod.intoBuffer >= mod.period.BufferPeriod()) {
		p.AddModifier(pair.SideSell, mod.cal, mod.phase, pair.ActionPass)
		return
	}

	var intoRamp int64
	if mod.period.Hot {
		if mod.intoBuffer > mod.period.PausePeriod {
			intoRamp = mod.intoBuffer - mod.period.PausePeriod
		}
	} else {
		intoRamp = mod.intoBuffer
		if intoRamp > mod.period.RampPeriod {
			intoRamp = mod.period.RampPeriod
		}
	}
	var rampPercent int64
	if mod.period.RampPeriod > 0 {
		rampPercent = intoRamp * int64(mod.period.PauseAcceptLoss) / mod.period.RampPeriod
	}
	if mod.period.Hot {
		rampPercent = int64(mod.period.PauseAcceptLoss) - rampPercent
	}
	if rampPercent <= 0 {
		p.AddModifier(pair.SideSell, mod.cal, mod.phase, pair.ActionPass)
		return
	}

	if p.OrigSellPrice < p.BuyPrice {
		p.OrigSellPrice = p.BuyPrice
	}
	diff := int64(p.OrigSellPrice - p.BuyPrice)
	less := model.Cents(diff * rampPercent / 10_000)
	if less <= 0 {
		p.AddModifier(pair.SideSell, mod.cal, mod.phase, pair.ActionPass)
		return
	}
	if p.SellPrice <= less {
		logs.Errorf("%s pair %s sale discount %s exceeds sell price %s",
			p.Algorithm, p.UUID, less.FormatUSD(), p.SellPrice.FormatUSD())
		return
	}
	p.SellPrice -= less
	p.AddModifier(pair.SideSell, mod.cal, mod.phase, pair.ActionRamp)
}
