package pair

import (
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/ghwfluffy/coinbase-tradebot/internal/broker"
	"github.com/ghwfluffy/coinbase-tradebot/internal/clock"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/obs"
)

const (
	defaultRetryBackoff     = int64(10_000_000)
	defaultTradeCooldown    = int64(2_000_000)
	defaultKeepActiveWindow = model.Cents(10_000)
	defaultMakerOffset      = model.Cents(200)
)

// Config tunes the reconciliation loop. Zero values take the defaults.
type Config struct {
	// RetryBackoff is how long a pair sits out after a failed broker call,
	// in micros.
	RetryBackoff int64
	// TradeCooldown is the minimum gap between order submissions across
	// all pairs, in micros.
	TradeCooldown int64
	// KeepActiveWindow keeps a resting order alive while the market stays
	// within this many cents of its limit.
	KeepActiveWindow model.Cents
	// MakerOffset is how far inside the current price limit orders are
	// placed so they rest instead of crossing.
	MakerOffset model.Cents
}

func (c Config) withDefaults() Config {
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.TradeCooldown == 0 {
		c.TradeCooldown = defaultTradeCooldown
	}
	if c.KeepActiveWindow == 0 {
		c.KeepActiveWindow = defaultKeepActiveWindow
	}
	if c.MakerOffset == 0 {
		c.MakerOffset = defaultMakerOffset
	}
	return c
}

// Persistence is the slice of the pair store the state machine needs to
// record transitions.
type Persistence interface {
	Update(p OrderPair) error
}

// StateMachine owns every pair state transition. Callers churn pairs against
// the current price; the machine submits, cancels, and reconciles orders and
// escalates unrecoverable broker answers to the Error state.
//
// Not safe for concurrent use: the owning trader serializes access.
type StateMachine struct {
	cfg     Config
	clk     clock.Clock
	brk     broker.Broker
	book    *broker.OrderBook
	wallet  *model.Wallet
	profits *model.Profits
	persist Persistence

	nextTradeMicros int64
}

// NewStateMachine wires the reconciliation loop to its collaborators.
func NewStateMachine(cfg Config, clk clock.Clock, brk broker.Broker, book *broker.OrderBook,
	wallet *model.Wallet, profits *model.Profits, persist Persistence) *StateMachine {
	return &StateMachine{
		cfg:     cfg.withDefaults(),
		clk:     clk,
		brk:     brk,
		book:    book,
		wallet:  wallet,
		profits: profits,
		persist: persist,
	}
}

// Churn advances one pair against the current price. Retry backoff gates the
// work unless force is set; force also reconciles active orders against the
// broker before acting, which is how fills are detected.
func (sm *StateMachine) Churn(p *OrderPair, price model.Cents) {
	sm.churn(p, price, false)
}

// ChurnForce reconciles and advances one pair regardless of backoff.
func (sm *StateMachine) ChurnForce(p *OrderPair, price model.Cents) {
	sm.churn(p, price, true)
}

func (sm *StateMachine) churn(p *OrderPair, price model.Cents, force bool) {
	if p == nil || p.State.Terminal() || p.State == StateNone {
		return
	}
	if force {
		sm.CheckBuyState(p, true)
		sm.CheckSellState(p, true)
	} else if sm.clk.NowMicros() < p.NextTryMicros {
		return
	}

	switch p.State {
	case StatePending:
		sm.handlePending(p, price)
	case StateBuyActive:
		sm.handleBuyActive(p, price)
	case StateHolding:
		sm.handleHolding(p, price)
	case StateSellActive:
		sm.handleSellActive(p, price)
	}
}

// handlePending waits for the market to reach the buy target, then rests a
// maker buy just under the current price.
func (sm *StateMachine) handlePending(p *OrderPair, price model.Cents) {
	if price <= 0 || price > p.BuyPrice {
		return
	}
	now := sm.clk.NowMicros()
	if now < sm.nextTradeMicros {
		return
	}
	if sm.wallet.UsdCents() < p.BetCents {
		logs.Warnf("%s pair %s waiting on funds, have %s want %s",
			p.Algorithm, p.UUID, sm.wallet.UsdCents().FormatUSD(), p.BetCents.FormatUSD())
		p.NextTryMicros = now + sm.cfg.RetryBackoff
		return
	}

	o := broker.Order{
		Buy:        true,
		PriceCents: price - sm.cfg.MakerOffset,
		Quantity:   p.Quantity,
	}
	if err := sm.brk.SubmitOrder(&o); err != nil {
		sm.submitFailed(p, "buy", err)
		return
	}
	obs.OrderResult("buy", "submitted")
	p.BuyOrder = o.UUID
	sm.book.Update(o)
	sm.transition(p, StateBuyActive)
	sm.nextTradeMicros = now + sm.cfg.TradeCooldown
	sm.refreshWallet()
}

// handleBuyActive cancels a resting buy the market has run away from so the
// pair can re-arm at a better price.
func (sm *StateMachine) handleBuyActive(p *OrderPair, price model.Cents) {
	if price <= 0 || p.BuyPrice > price {
		// At or through the limit: let the fill arrive.
		return
	}
	if p.BuyPrice+sm.cfg.KeepActiveWindow > price {
		return
	}
	if err := sm.brk.CancelOrder(p.BuyOrder); err != nil {
		logs.Warnf("%s pair %s cancel buy %s: %+v", p.Algorithm, p.UUID, p.BuyOrder, err)
		p.NextTryMicros = sm.clk.NowMicros() + sm.cfg.RetryBackoff
		sm.CheckBuyState(p, true)
		return
	}
	obs.OrderResult("buy", "canceled")
	sm.book.Drop(p.BuyOrder)
	p.BuyOrder = ""
	sm.transition(p, StatePending)
}

// handleHolding waits for the market to reach the sale target, then rests a
// maker sell just over the current price.
func (sm *StateMachine) handleHolding(p *OrderPair, price model.Cents) {
	if price <= 0 || price < p.SellPrice {
		return
	}
	now := sm.clk.NowMicros()
	if now < sm.nextTradeMicros {
		return
	}

	o := broker.Order{
		Buy:        false,
		PriceCents: price + sm.cfg.MakerOffset,
		Quantity:   p.Quantity,
	}
	if err := sm.brk.SubmitOrder(&o); err != nil {
		sm.submitFailed(p, "sell", err)
		return
	}
	obs.OrderResult("sell", "submitted")
	p.SellOrder = o.UUID
	sm.book.Update(o)
	sm.transition(p, StateSellActive)
	sm.nextTradeMicros = now + sm.cfg.TradeCooldown
	sm.refreshWallet()
}

// handleSellActive cancels a resting sell the market has fallen away from.
func (sm *StateMachine) handleSellActive(p *OrderPair, price model.Cents) {
	if price <= 0 || p.SellPrice < price {
		return
	}
	if p.SellPrice-sm.cfg.KeepActiveWindow < price {
		return
	}
	if err := sm.brk.CancelOrder(p.SellOrder); err != nil {
		logs.Warnf("%s pair %s cancel sell %s: %+v", p.Algorithm, p.UUID, p.SellOrder, err)
		p.NextTryMicros = sm.clk.NowMicros() + sm.cfg.RetryBackoff
		sm.CheckSellState(p, true)
		return
	}
	obs.OrderResult("sell", "canceled")
	sm.book.Drop(p.SellOrder)
	p.SellOrder = ""
	sm.transition(p, StateHolding)
}

func (sm *StateMachine) submitFailed(p *OrderPair, side string, err error) {
	now := sm.clk.NowMicros()
	switch {
	case errors.Is(err, broker.ErrInsufficientFunds):
		obs.OrderResult(side, "no_funds")
		logs.Warnf("%s pair %s %s rejected for funds", p.Algorithm, p.UUID, side)
		p.NextTryMicros = now + sm.cfg.RetryBackoff
		sm.refreshWallet()
	case broker.IsTransient(err):
		obs.OrderResult(side, "retry")
		logs.Warnf("%s pair %s %s submit: %+v", p.Algorithm, p.UUID, side, err)
		p.NextTryMicros = now + sm.cfg.RetryBackoff
	default:
		obs.OrderResult(side, "error")
		logs.Errorf("%s pair %s %s submit: %+v", p.Algorithm, p.UUID, side, err)
		sm.transition(p, StateError)
	}
}

// CheckBuyState reconciles a BuyActive pair against the broker record. The
// order book mirror answers first; a cache miss or force goes to the broker.
func (sm *StateMachine) CheckBuyState(p *OrderPair, force bool) {
	if p.State != StateBuyActive || p.BuyOrder == "" {
		return
	}
	o, ok := sm.fetchOrder(p, p.BuyOrder, force)
	if !ok {
		return
	}
	switch o.State {
	case broker.OrderOpen:
	case broker.OrderFilled:
		// The fill is authoritative for price and size.
		p.BuyPrice = o.PriceCents
		p.Quantity = o.Quantity
		p.Profit.Purchased = o.BeforeFeesPico
		p.Profit.BuyFees = o.FeesPico
		obs.OrderResult("buy", "filled")
		sm.book.Drop(p.BuyOrder)
		sm.transition(p, StateHolding)
		sm.refreshWallet()
	case broker.OrderCanceled:
		sm.book.Drop(p.BuyOrder)
		p.BuyOrder = ""
		sm.transition(p, StateCanceled)
	default:
		logs.Errorf("%s pair %s buy order %s in state %s", p.Algorithm, p.UUID, p.BuyOrder, o.State)
		sm.transition(p, StateError)
	}
}

// CheckSellState reconciles a SellActive pair against the broker record.
func (sm *StateMachine) CheckSellState(p *OrderPair, force bool) {
	if p.State != StateSellActive || p.SellOrder == "" {
		return
	}
	o, ok := sm.fetchOrder(p, p.SellOrder, force)
	if !ok {
		return
	}
	switch o.State {
	case broker.OrderOpen:
	case broker.OrderFilled:
		p.SellPrice = o.PriceCents
		p.Profit.Sold = o.BeforeFeesPico
		p.Profit.SellFees = o.FeesPico
		obs.OrderResult("sell", "filled")
		sm.book.Drop(p.SellOrder)
		sm.transition(p, StateComplete)
		sm.profits.Add(p.Profit)
		obs.SetProfitCents(int64(sm.profits.ProfitCents()))
		sm.refreshWallet()
	case broker.OrderCanceled:
		// Still holding the asset: re-arm the sale.
		sm.book.Drop(p.SellOrder)
		p.SellOrder = ""
		sm.transition(p, StateHolding)
	default:
		logs.Errorf("%s pair %s sell order %s in state %s", p.Algorithm, p.UUID, p.SellOrder, o.State)
		sm.transition(p, StateError)
	}
}

func (sm *StateMachine) fetchOrder(p *OrderPair, uuid string, force bool) (broker.Order, bool) {
	o, ok := sm.book.GetOrder(uuid)
	if ok && !force {
		return o, true
	}
	fetched, err := sm.brk.GetOrder(uuid)
	if err != nil {
		if errors.Is(err, broker.ErrNotFound) {
			logs.Errorf("%s pair %s order %s unknown to broker", p.Algorithm, p.UUID, uuid)
			sm.transition(p, StateError)
			return broker.Order{}, false
		}
		if broker.IsTransient(err) {
			logs.Warnf("%s pair %s order %s lookup: %+v", p.Algorithm, p.UUID, uuid, err)
			// Fall back to whatever the mirror last saw.
			return o, ok
		}
		logs.Errorf("%s pair %s order %s lookup: %+v", p.Algorithm, p.UUID, uuid, err)
		sm.transition(p, StateError)
		return broker.Order{}, false
	}
	sm.book.Update(fetched)
	return fetched, true
}

func (sm *StateMachine) refreshWallet() {
	data, err := sm.brk.GetWallet()
	if err != nil {
		logs.Warnf("wallet refresh: %+v", err)
		return
	}
	sm.wallet.Update(data)
}

func (sm *StateMachine) transition(p *OrderPair, to State) {
	from := p.State
	if from == to {
		return
	}
	p.State = to
	logs.Infof("%s pair %s %s -> %s buy %s sell %s",
		p.Algorithm, p.UUID, from, to, p.BuyPrice.FormatUSD(), p.SellPrice.FormatUSD())
	obs.PairTransition(p.Algorithm, from.String(), to.String())
	if err := sm.persist.Update(*p); err != nil {
		logs.Errorf("persist pair %s: %+v", p.UUID, err)
	}
}

// Retire cancels a Pending pair that has no resting order, used when a
// trader sheds a position for capacity.
func (sm *StateMachine) Retire(p *OrderPair) {
	if p == nil || p.State != StatePending {
		return
	}
	sm.transition(p, StateCanceled)
}

// Persist writes the pair's current record without a transition, used after
// price recomputations.
func (sm *StateMachine) Persist(p *OrderPair) {
	if err := sm.persist.Update(*p); err != nil {
		logs.Errorf("persist pair %s: %+v", p.UUID, err)
	}
}
