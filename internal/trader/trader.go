// Package trader hosts the trading algorithms. Each trader owns a set of
// order pairs, reacts to price and order book changes through the registry,
// and decides when a new position is worth opening.
package trader

import (
	"sync"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/ghwfluffy/coinbase-tradebot/internal/clock"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/pair"
	"github.com/ghwfluffy/coinbase-tradebot/internal/ramp"
	"github.com/ghwfluffy/coinbase-tradebot/internal/storage"
	"github.com/ghwfluffy/coinbase-tradebot/internal/store"
)

const defaultPatienceMicros = int64(30) * 60 * 1_000_000

// Core is the shared machinery of every trading algorithm: the pair list,
// the churn loop, terminal sweeping, and capacity pressure. Strategies plug
// in through the handleNew hook, which runs with the core lock held.
type Core struct {
	cfg   ramp.TraderConfig
	clk   clock.Clock
	sm    *pair.StateMachine
	store storage.Store
	price *model.BtcPrice
	ready *model.BrokerReady

	mu        sync.Mutex
	pairs     []*pair.OrderPair
	handleNew func(price model.Cents)
}

// newCore loads the trader's persisted active pairs and subscribes to price
// and order book changes.
func newCore(cfg ramp.TraderConfig, clk clock.Clock, sm *pair.StateMachine,
	st storage.Store, reg *store.Registry) (*Core, error) {
	c := &Core{
		cfg:   cfg,
		clk:   clk,
		sm:    sm,
		store: st,
		price: store.Get[*model.BtcPrice](reg, store.ConceptPrice),
		ready: store.Get[*model.BrokerReady](reg, store.ConceptBrokerReady),
	}

	loaded, err := st.Select(storage.Filter{Algorithm: cfg.Name, Active: true})
	if err != nil {
		return nil, errors.Wrapf(err, "load %s pairs", cfg.Name)
	}
	for i := range loaded {
		c.pairs = append(c.pairs, &loaded[i])
	}
	if len(c.pairs) > 0 {
		logs.Infof("%s resumed %d active pairs", cfg.Name, len(c.pairs))
	}

	reg.Subscribe(store.ConceptPrice, c.onPrice)
	reg.Subscribe(store.ConceptOrderBook, c.onOrderBook)
	return c, nil
}

// onPrice drives the regular churn cycle and gives the strategy a chance to
// open a new position.
func (c *Core) onPrice() {
	if !c.ready.Ready() {
		return
	}
	price := c.price.Cents()
	if price <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.churnAll(price, false)
	c.sweepTerminal()
	if c.handleNew != nil {
		c.handleNew(price)
	}
}

// onOrderBook forces reconciliation: an order record changed, so fills and
// cancels must be detected now rather than on the next backoff expiry.
func (c *Core) onOrderBook() {
	if !c.ready.Ready() {
		return
	}
	price := c.price.Cents()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.churnAll(price, true)
	c.sweepTerminal()
}

func (c *Core) churnAll(price model.Cents, force bool) {
	now := c.clk.NowMicros()
	for _, p := range c.pairs {
		if p.State == pair.StateHolding && ramp.CheckSale(c.cfg, p, now) {
			logs.Infof("%s pair %s sale target now %s", c.cfg.Name, p.UUID, p.SellPrice.FormatUSD())
			c.sm.Persist(p)
		}
		if force {
			c.sm.ChurnForce(p, price)
		} else {
			c.sm.Churn(p, price)
		}
	}
}

func (c *Core) sweepTerminal() {
	kept := c.pairs[:0]
	for _, p := range c.pairs {
		if p.State.Terminal() {
			logs.Infof("%s retiring pair %s in state %s profit %s",
				c.cfg.Name, p.UUID, p.State, p.Profit.ProfitCents().FormatUSD())
			continue
		}
		kept = append(kept, p)
	}
	c.pairs = kept
}

// addPair persists and starts tracking a new pair.
func (c *Core) addPair(p pair.OrderPair) {
	if err := c.store.Insert(p); err != nil {
		logs.Errorf("%s store pair %s: %+v", c.cfg.Name, p.UUID, err)
		return
	}
	logs.Infof("%s new pair %s buy %s sell %s qty %s",
		c.cfg.Name, p.UUID, p.BuyPrice.FormatUSD(), p.SellPrice.FormatUSD(), p.Quantity.FormatBTC())
	c.pairs = append(c.pairs, &p)
}

func (c *Core) patience() int64 {
	if c.cfg.PatiencePeriod > 0 {
		return c.cfg.PatiencePeriod
	}
	return defaultPatienceMicros
}

// patient reports whether the newest pair has aged past the patience period,
// which is what allows capacity pressure to act at all.
func (c *Core) patient(now int64) bool {
	var newest int64
	for _, p := range c.pairs {
		if p.CreatedMicros > newest {
			newest = p.CreatedMicros
		}
	}
	return newest+c.patience() <= now
}

// makeRoom applies capacity pressure: under the cap it always admits; at the
// cap it waits out the patience period, then retires the Pending pair
// furthest from the market, and failing that admits over the cap.
func (c *Core) makeRoom(maxPairs int, now int64, price model.Cents) bool {
	if maxPairs <= 0 || len(c.pairs) < maxPairs {
		return true
	}
	if !c.patient(now) {
		return false
	}
	if furthest := c.furthestPending(price); furthest != nil {
		logs.Infof("%s retiring furthest pending pair %s for capacity", c.cfg.Name, furthest.UUID)
		c.sm.Retire(furthest)
		c.sweepTerminal()
	}
	return true
}

func (c *Core) furthestPending(price model.Cents) *pair.OrderPair {
	var furthest *pair.OrderPair
	var worst model.Cents = -1
	for _, p := range c.pairs {
		if p.State != pair.StatePending {
			continue
		}
		d := minCents(absCents(p.BuyPrice-price), absCents(p.SellPrice-price))
		if d > worst {
			worst = d
			furthest = p
		}
	}
	return furthest
}

// reportNewPairErr keeps schedule pauses quiet and surfaces real failures.
func (c *Core) reportNewPairErr(err error) {
	switch {
	case errors.Is(err, ramp.ErrPaused), errors.Is(err, ramp.ErrDisabled):
		logs.Debugf("%s not opening: %v", c.cfg.Name, err)
	case errors.Is(err, ramp.ErrPriceCeiling):
		logs.Debugf("%s not opening: %v", c.cfg.Name, err)
	default:
		logs.Warnf("%s new pair: %+v", c.cfg.Name, err)
	}
}

// Pairs returns a snapshot of the tracked pairs.
func (c *Core) Pairs() []pair.OrderPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]pair.OrderPair, 0, len(c.pairs))
	for _, p := range c.pairs {
		out = append(out, *p)
	}
	return out
}

func absCents(c model.Cents) model.Cents {
	if c < 0 {
		return -c
	}
	return c
}

func minCents(a, b model.Cents) model.Cents {
	if a < b {
		return a
	}
	return b
}
