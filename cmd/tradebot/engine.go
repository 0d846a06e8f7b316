package main

import (
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/ghwfluffy/coinbase-tradebot/internal/broker"
	"github.com/ghwfluffy/coinbase-tradebot/internal/clock"
	"github.com/ghwfluffy/coinbase-tradebot/internal/config"
	"github.com/ghwfluffy/coinbase-tradebot/internal/feed"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/pair"
	"github.com/ghwfluffy/coinbase-tradebot/internal/storage"
	"github.com/ghwfluffy/coinbase-tradebot/internal/store"
	"github.com/ghwfluffy/coinbase-tradebot/internal/trader"
)

// session is one assembled engine: queue, registry, storage, broker, state
// machine, and the configured traders.
type session struct {
	cfg   *config.Config
	clk   clock.Clock
	queue *store.ActionQueue
	reg   *store.Registry
	st    storage.Store
	paper *broker.Paper
	sync  *feed.Syncer
}

func newSession(cfg *config.Config, clk clock.Clock) (*session, error) {
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

	var st storage.Store
	var err error
	switch cfg.Database.Driver {
	case "memory":
		st = storage.NewMemory()
	default:
		st, err = storage.OpenPostgres(cfg.Postgres())
		if err != nil {
			return nil, err
		}
	}

	paper := broker.NewPaper(clk, cfg.Broker.FundsCents(), cfg.Broker.MakerBps, cfg.Broker.TakerBps)
	sm := pair.NewStateMachine(pair.Config{}, clk, paper, book, wallet, profits, st)

	for i := range cfg.Traders {
		resolved, err := cfg.Traders[i].Resolve()
		if err != nil {
			st.Close()
			return nil, err
		}
		switch resolved.Kind {
		case "spread":
			_, err = trader.NewSpread(resolved.Spread, clk, sm, st, reg)
		case "static":
			_, err = trader.NewStatic(resolved.Static, clk, sm, st, reg)
		case "time":
			_, err = trader.NewTimeWindow(resolved.TimeWindow, clk, sm, st, reg)
		default:
			err = errors.Errorf("unknown trader kind %q", resolved.Kind)
		}
		if err != nil {
			st.Close()
			return nil, err
		}
		logs.Infof("trader %s (%s) ready", cfg.Traders[i].Name, resolved.Kind)
	}

	syncer := feed.NewSyncer(paper, clk,
		time.Duration(cfg.Feed.WalletPollSeconds)*time.Second, reg)

	return &session{
		cfg:   cfg,
		clk:   clk,
		queue: queue,
		reg:   reg,
		st:    st,
		paper: paper,
		sync:  syncer,
	}, nil
}

// close tears the session down: queue first so no reaction races storage.
func (s *session) close() {
	s.queue.Stop()
	if err := s.st.Close(); err != nil {
		logs.Warnf("close storage: %+v", err)
	}
}
