// Package backtest replays recorded ticks through the full engine on a
// virtual clock. Each tick settles completely before the next begins, so a
// replay of the same recording always produces the same trades.
package backtest

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/ghwfluffy/coinbase-tradebot/internal/broker"
	"github.com/ghwfluffy/coinbase-tradebot/internal/clock"
	"github.com/ghwfluffy/coinbase-tradebot/internal/feed"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/store"
)

// Tick is one recorded market observation.
type Tick struct {
	TimeMicros int64 `json:"time_micros"`
	PriceCents int64 `json:"price_cents"`
}

// ReadTicks parses a JSONL recording, one tick per line.
func ReadTicks(r io.Reader) ([]Tick, error) {
	var ticks []Tick
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var t Tick
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, errors.Wrapf(err, "tick line %d", line)
		}
		if t.PriceCents <= 0 {
			return nil, errors.Errorf("tick line %d has no price", line)
		}
		ticks = append(ticks, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read ticks")
	}
	return ticks, nil
}

// Result summarizes one replay.
type Result struct {
	Ticks       int
	ProfitCents model.Cents
}

// Driver pushes ticks through the engine: clock, broker sync, paper fills,
// price dispatch, then forced order reconciliation, settling the queue
// between phases.
type Driver struct {
	clk    *clock.Virtual
	queue  *store.ActionQueue
	paper  *broker.Paper
	syncer *feed.Syncer

	price   *model.BtcPrice
	book    *broker.OrderBook
	profits *model.Profits
}

// NewDriver wires the replay driver to the session's registry.
func NewDriver(clk *clock.Virtual, queue *store.ActionQueue, paper *broker.Paper,
	syncer *feed.Syncer, reg *store.Registry) *Driver {
	return &Driver{
		clk:     clk,
		queue:   queue,
		paper:   paper,
		syncer:  syncer,
		price:   store.Get[*model.BtcPrice](reg, store.ConceptPrice),
		book:    store.Get[*broker.OrderBook](reg, store.ConceptOrderBook),
		profits: store.Get[*model.Profits](reg, store.ConceptProfits),
	}
}

// Run replays the ticks in order and reports the realized profit.
func (d *Driver) Run(ticks []Tick) (Result, error) {
	if len(ticks) == 0 {
		return Result{}, errors.New("no ticks to replay")
	}
	logs.Infof("replaying %d ticks", len(ticks))

	last := int64(0)
	for i, tick := range ticks {
		if tick.TimeMicros < last {
			return Result{}, errors.Errorf("tick %d goes back in time", i+1)
		}
		last = tick.TimeMicros

		d.clk.Set(tick.TimeMicros)
		d.syncer.SyncOnce()
		d.settle()

		// Fills happen before the price dispatch reaches the traders, the
		// same order a live tick arrives in.
		cents := model.Cents(tick.PriceCents)
		d.paper.OnPrice(cents)
		d.price.Set(cents)
		d.settle()

		d.book.Updated()
		d.settle()
	}

	result := Result{Ticks: len(ticks), ProfitCents: d.profits.ProfitCents()}
	logs.Infof("replay complete: %d ticks, profit %s", result.Ticks, result.ProfitCents.FormatUSD())
	return result, nil
}

// settle blocks until every reaction from the current phase has run.
func (d *Driver) settle() {
	done := make(chan struct{})
	d.queue.WaitComplete(func() { close(done) })
	<-done
}
