package backtest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghwfluffy/coinbase-tradebot/internal/broker"
	"github.com/ghwfluffy/coinbase-tradebot/internal/clock"
	"github.com/ghwfluffy/coinbase-tradebot/internal/feed"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/pair"
	"github.com/ghwfluffy/coinbase-tradebot/internal/ramp"
	"github.com/ghwfluffy/coinbase-tradebot/internal/storage"
	"github.com/ghwfluffy/coinbase-tradebot/internal/store"
	"github.com/ghwfluffy/coinbase-tradebot/internal/trader"
)

func TestReadTicks(t *testing.T) {
	input := `{"time_micros":1000,"price_cents":5000000}

{"time_micros":2000,"price_cents":5000100}
`
	ticks, err := ReadTicks(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, int64(1000), ticks[0].TimeMicros)
	assert.Equal(t, int64(5_000_100), ticks[1].PriceCents)

	_, err = ReadTicks(strings.NewReader(`{"time_micros":1000}`))
	assert.Error(t, err)

	_, err = ReadTicks(strings.NewReader(`not json`))
	assert.Error(t, err)
}

type replayRig struct {
	clk    *clock.Virtual
	queue  *store.ActionQueue
	paper  *broker.Paper
	mem    *storage.Memory
	driver *Driver
}

// newReplayRig assembles the full engine around a single spread trader and a
// started one-worker queue.
func newReplayRig(t *testing.T, t0 int64) *replayRig {
	t.Helper()
	clk := clock.NewVirtual(t0)
	queue := store.NewActionQueue()
	reg := store.NewRegistry(queue)

	price := &model.BtcPrice{}
	book := &broker.OrderBook{}
	wallet := &model.Wallet{}
	fees := &model.FeeTier{}
	profits := &model.Profits{}
	ready := &model.BrokerReady{}
	mtime := &model.MarketTime{}
	reg.Init(store.ConceptPrice, price)
	reg.Init(store.ConceptOrderBook, book)
	reg.Init(store.ConceptWallet, wallet)
	reg.Init(store.ConceptFeeTier, fees)
	reg.Init(store.ConceptProfits, profits)
	reg.Init(store.ConceptBrokerReady, ready)
	reg.Init(store.ConceptTime, mtime)

	paper := broker.NewPaper(clk, 10_000_000, 5, 8)
	mem := storage.NewMemory()
	sm := pair.NewStateMachine(pair.Config{}, clk, paper, book, wallet, profits, mem)

	_, err := trader.NewSpread(trader.SpreadConfig{
		TraderConfig: ramp.TraderConfig{
			Name:     "replay",
			Enabled:  true,
			BetCents: 10_000,
		},
		SpreadBps:     20,
		BufferPercent: 50,
	}, clk, sm, mem, reg)
	require.NoError(t, err)

	syncer := feed.NewSyncer(paper, clk, time.Minute, reg)
	driver := NewDriver(clk, queue, paper, syncer, reg)

	queue.Start(1)
	t.Cleanup(queue.Stop)
	return &replayRig{clk: clk, queue: queue, paper: paper, mem: mem, driver: driver}
}

func TestReplayRunsFullTradeCycle(t *testing.T) {
	t0 := int64(1_700_000_000_000_000)
	sec := int64(time.Second / time.Microsecond)
	rig := newReplayRig(t, t0)

	ticks := []Tick{
		{TimeMicros: t0, PriceCents: 5_000_000},
		{TimeMicros: t0 + 5*sec, PriceCents: 4_995_000},
		{TimeMicros: t0 + 10*sec, PriceCents: 4_994_700},
		{TimeMicros: t0 + 15*sec, PriceCents: 5_005_000},
		{TimeMicros: t0 + 20*sec, PriceCents: 5_005_300},
	}
	result, err := rig.driver.Run(ticks)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Ticks)
	assert.Positive(t, int64(result.ProfitCents))

	stored, err := rig.mem.Select(storage.Filter{})
	require.NoError(t, err)
	var complete int
	for _, p := range stored {
		if p.State == pair.StateComplete {
			complete++
			assert.NotZero(t, p.Profit.Purchased)
			assert.NotZero(t, p.Profit.Sold)
		}
	}
	assert.Equal(t, 1, complete)
}

// A resting order must not keep the dispatch loop busy: reconciliation
// re-publishes the unchanged broker record each pass, and if that counted as
// a change every settle would enqueue the next reaction forever.
func TestReplaySettlesWithRestingOrder(t *testing.T) {
	t0 := int64(1_700_000_000_000_000)
	sec := int64(time.Second / time.Microsecond)
	rig := newReplayRig(t, t0)

	ticks := []Tick{
		{TimeMicros: t0, PriceCents: 5_000_000},
		{TimeMicros: t0 + 5*sec, PriceCents: 4_995_000},
		{TimeMicros: t0 + 10*sec, PriceCents: 4_995_100},
	}
	done := make(chan struct{})
	var result Result
	var err error
	go func() {
		defer close(done)
		result, err = rig.driver.Run(ticks)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("replay never settled with a resting order outstanding")
	}
	require.NoError(t, err)
	assert.Equal(t, 3, result.Ticks)

	stored, err := rig.mem.Select(storage.Filter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, pair.StateBuyActive, stored[0].State)

	w, err := rig.paper.GetWallet()
	require.NoError(t, err)
	assert.NotZero(t, w.UsdHeldCents)
}

func TestReplayRejectsTimeTravel(t *testing.T) {
	clk := clock.NewVirtual(0)
	queue := store.NewActionQueue()
	reg := store.NewRegistry(queue)
	reg.Init(store.ConceptPrice, &model.BtcPrice{})
	reg.Init(store.ConceptOrderBook, &broker.OrderBook{})
	reg.Init(store.ConceptWallet, &model.Wallet{})
	reg.Init(store.ConceptFeeTier, &model.FeeTier{})
	reg.Init(store.ConceptProfits, &model.Profits{})
	reg.Init(store.ConceptBrokerReady, &model.BrokerReady{})
	reg.Init(store.ConceptTime, &model.MarketTime{})

	paper := broker.NewPaper(clk, 1_000_000, 5, 8)
	syncer := feed.NewSyncer(paper, clk, time.Minute, reg)
	driver := NewDriver(clk, queue, paper, syncer, reg)

	_, err := driver.Run(nil)
	assert.Error(t, err)

	_, err = driver.Run([]Tick{
		{TimeMicros: 2_000, PriceCents: 5_000_000},
		{TimeMicros: 1_000, PriceCents: 5_000_000},
	})
	assert.Error(t, err)
}
