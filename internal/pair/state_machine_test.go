package pair_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghwfluffy/coinbase-tradebot/internal/broker"
	"github.com/ghwfluffy/coinbase-tradebot/internal/clock"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/pair"
	"github.com/ghwfluffy/coinbase-tradebot/internal/storage"
)

type fixture struct {
	clk     *clock.Virtual
	paper   *broker.Paper
	book    *broker.OrderBook
	wallet  *model.Wallet
	profits *model.Profits
	store   *storage.Memory
	sm      *pair.StateMachine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clk:     clock.NewVirtual(1_700_000_000_000_000),
		book:    &broker.OrderBook{},
		wallet:  &model.Wallet{},
		profits: &model.Profits{},
		store:   storage.NewMemory(),
	}
	f.paper = broker.NewPaper(f.clk, 1_000_000, 5, 8)
	f.wallet.Update(model.WalletData{UsdCents: 1_000_000})
	f.sm = pair.NewStateMachine(pair.Config{}, f.clk, f.paper, f.book,
		f.wallet, f.profits, f.store)
	return f
}

func (f *fixture) newPair(t *testing.T) *pair.OrderPair {
	t.Helper()
	p := pair.New("spread", 10_000, f.clk.NowMicros())
	p.BuyPrice = 4_995_000
	p.SellPrice = 5_005_000
	p.OrigSellPrice = p.SellPrice
	p.Quantity = model.SatoshiForPrice(p.BuyPrice, p.BetCents)
	require.NoError(t, f.store.Insert(p))
	return &p
}

// tick moves the simulated market and forces a reconcile pass, the same
// sequence the trader runs on an order book update.
func (f *fixture) tick(p *pair.OrderPair, price model.Cents) {
	f.paper.OnPrice(price)
	f.sm.ChurnForce(p, price)
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t)
	p := f.newPair(t)

	// Market above the buy target: nothing to do.
	f.tick(p, 5_000_000)
	assert.Equal(t, pair.StatePending, p.State)

	// Market reaches the buy target: a maker buy rests just under it.
	f.tick(p, 4_995_000)
	require.Equal(t, pair.StateBuyActive, p.State)
	require.NotEmpty(t, p.BuyOrder)
	o, err := f.paper.GetOrder(p.BuyOrder)
	require.NoError(t, err)
	assert.Equal(t, model.Cents(4_994_800), o.PriceCents)

	// Market crosses the resting buy: holding after reconcile.
	f.clk.Advance(3 * time.Second)
	f.tick(p, 4_994_800)
	require.Equal(t, pair.StateHolding, p.State)
	assert.Equal(t, model.Cents(4_994_800), p.BuyPrice)
	assert.NotZero(t, p.Profit.Purchased)
	assert.NotZero(t, p.Profit.BuyFees)

	// Market reaches the sale target: a maker sell rests just over it.
	f.clk.Advance(3 * time.Second)
	f.tick(p, 5_005_000)
	require.Equal(t, pair.StateSellActive, p.State)
	require.NotEmpty(t, p.SellOrder)

	// Market crosses the resting sell: complete, profit realized.
	f.clk.Advance(3 * time.Second)
	f.tick(p, 5_005_200)
	require.Equal(t, pair.StateComplete, p.State)
	assert.NotZero(t, p.Profit.Sold)
	assert.Positive(t, int64(f.profits.ProfitCents()))

	// The transition history reached persistence.
	stored, err := f.store.Select(storage.Filter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, pair.StateComplete, stored[0].State)
}

func TestBuyRepricesWhenMarketRunsAway(t *testing.T) {
	f := newFixture(t)
	p := f.newPair(t)

	f.tick(p, 4_995_000)
	require.Equal(t, pair.StateBuyActive, p.State)
	buyOrder := p.BuyOrder

	// Within the keep-active window: the order stays resting.
	f.clk.Advance(3 * time.Second)
	f.tick(p, 5_004_000)
	assert.Equal(t, pair.StateBuyActive, p.State)
	assert.Equal(t, buyOrder, p.BuyOrder)

	// Past the window: cancel and wait for a better price.
	f.tick(p, 5_006_000)
	require.Equal(t, pair.StatePending, p.State)
	assert.Empty(t, p.BuyOrder)
	o, err := f.paper.GetOrder(buyOrder)
	require.NoError(t, err)
	assert.Equal(t, broker.OrderCanceled, o.State)

	// The hold was released.
	w, err := f.paper.GetWallet()
	require.NoError(t, err)
	assert.Zero(t, w.UsdHeldCents)
	assert.Equal(t, model.Cents(1_000_000), w.UsdCents)
}

func TestTradeCooldownSpacesSubmissions(t *testing.T) {
	f := newFixture(t)
	p1 := f.newPair(t)
	p2 := f.newPair(t)

	f.paper.OnPrice(4_995_000)
	f.sm.Churn(p1, 4_995_000)
	require.Equal(t, pair.StateBuyActive, p1.State)

	// Second submission inside the cooldown is deferred.
	f.sm.Churn(p2, 4_995_000)
	assert.Equal(t, pair.StatePending, p2.State)

	f.clk.Advance(3 * time.Second)
	f.sm.Churn(p2, 4_995_000)
	assert.Equal(t, pair.StateBuyActive, p2.State)
}

func TestTransientSubmitFailureBacksOff(t *testing.T) {
	f := newFixture(t)
	p := f.newPair(t)
	f.paper.OnPrice(4_995_000)
	f.paper.SubmitErr = broker.ErrUnavailable

	f.sm.Churn(p, 4_995_000)
	assert.Equal(t, pair.StatePending, p.State)
	assert.Greater(t, p.NextTryMicros, f.clk.NowMicros())

	// Backoff gates the retry.
	f.sm.Churn(p, 4_995_000)
	assert.Equal(t, pair.StatePending, p.State)

	// Past the backoff with a healthy broker the pair proceeds.
	f.paper.SubmitErr = nil
	f.clk.Advance(11 * time.Second)
	f.sm.Churn(p, 4_995_000)
	assert.Equal(t, pair.StateBuyActive, p.State)
}

func TestBadResponseEscalatesToError(t *testing.T) {
	f := newFixture(t)
	p := f.newPair(t)
	f.paper.OnPrice(4_995_000)
	f.paper.SubmitErr = broker.ErrBadResponse

	f.sm.Churn(p, 4_995_000)
	assert.Equal(t, pair.StateError, p.State)
}

func TestInsufficientFundsSkipsCycle(t *testing.T) {
	f := newFixture(t)
	p := f.newPair(t)
	f.wallet.Update(model.WalletData{UsdCents: 500})
	f.paper.OnPrice(4_995_000)

	f.sm.Churn(p, 4_995_000)
	assert.Equal(t, pair.StatePending, p.State)
	assert.Greater(t, p.NextTryMicros, f.clk.NowMicros())
}

func TestUnknownOrderEscalatesToError(t *testing.T) {
	f := newFixture(t)
	p := f.newPair(t)
	p.State = pair.StateBuyActive
	p.BuyOrder = "not-a-real-order"
	require.NoError(t, f.store.Update(*p))

	f.paper.OnPrice(4_995_000)
	f.sm.ChurnForce(p, 4_995_000)
	assert.Equal(t, pair.StateError, p.State)
}

func TestCanceledBuyTerminatesPair(t *testing.T) {
	f := newFixture(t)
	p := f.newPair(t)

	f.tick(p, 4_995_000)
	require.Equal(t, pair.StateBuyActive, p.State)
	require.NoError(t, f.paper.CancelOrder(p.BuyOrder))

	f.sm.ChurnForce(p, 4_995_000)
	assert.Equal(t, pair.StateCanceled, p.State)
}

func TestCanceledSellReturnsToHolding(t *testing.T) {
	f := newFixture(t)
	p := f.newPair(t)

	f.tick(p, 4_995_000)
	f.clk.Advance(3 * time.Second)
	f.tick(p, 4_994_800)
	require.Equal(t, pair.StateHolding, p.State)

	f.clk.Advance(3 * time.Second)
	f.tick(p, 5_005_000)
	require.Equal(t, pair.StateSellActive, p.State)
	require.NoError(t, f.paper.CancelOrder(p.SellOrder))

	f.sm.ChurnForce(p, 5_004_000)
	assert.Equal(t, pair.StateHolding, p.State)
	assert.Empty(t, p.SellOrder)
}
