package feed

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"github.com/ghwfluffy/coinbase-tradebot/internal/broker"
	"github.com/ghwfluffy/coinbase-tradebot/internal/clock"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/store"
)

// Syncer periodically pulls wallet balances and the fee tier from the broker
// and advances the MarketTime concept. The BrokerReady gate flips after the
// first successful sync, which is what releases the traders.
type Syncer struct {
	brk      broker.Broker
	clk      clock.Clock
	interval time.Duration

	wallet *model.Wallet
	fees   *model.FeeTier
	ready  *model.BrokerReady
	mtime  *model.MarketTime
}

// NewSyncer binds the sync loop to the registry concepts.
func NewSyncer(brk broker.Broker, clk clock.Clock, interval time.Duration, reg *store.Registry) *Syncer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Syncer{
		brk:      brk,
		clk:      clk,
		interval: interval,
		wallet:   store.Get[*model.Wallet](reg, store.ConceptWallet),
		fees:     store.Get[*model.FeeTier](reg, store.ConceptFeeTier),
		ready:    store.Get[*model.BrokerReady](reg, store.ConceptBrokerReady),
		mtime:    store.Get[*model.MarketTime](reg, store.ConceptTime),
	}
}

// Run syncs immediately and then on the interval until the context ends.
func (s *Syncer) Run(ctx context.Context) {
	s.SyncOnce()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncOnce()
		}
	}
}

// SyncOnce performs a single broker sync pass.
func (s *Syncer) SyncOnce() {
	s.mtime.Set(s.clk.NowMicros())

	data, err := s.brk.GetWallet()
	if err != nil {
		logs.Warnf("wallet sync: %+v", err)
		return
	}
	s.wallet.Update(data)

	if maker, err := s.brk.GetFeeTier(); err != nil {
		logs.Warnf("fee tier sync: %+v", err)
	} else {
		s.fees.Update(maker, maker)
	}

	if !s.ready.Ready() {
		logs.Infof("broker state synced, wallet %s / %s BTC",
			data.UsdCents.FormatUSD(), data.BtcSatoshi.FormatBTC())
	}
	s.ready.Mark()
}
