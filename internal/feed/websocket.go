// Package feed keeps the reactive data concepts current: the websocket price
// stream and the periodic broker sync.
package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/obs"
	"github.com/ghwfluffy/coinbase-tradebot/internal/store"
)

// PriceFeedOptions configures the market data stream.
type PriceFeedOptions struct {
	URL            string
	ProductID      string
	ReconnectDelay time.Duration
}

// PriceFeed streams ticker prices into the BtcPrice concept, reconnecting
// with a fixed delay whenever the stream drops.
type PriceFeed struct {
	opt   PriceFeedOptions
	price *model.BtcPrice
}

// NewPriceFeed binds the feed to the registry's price concept.
func NewPriceFeed(opt PriceFeedOptions, reg *store.Registry) *PriceFeed {
	if opt.ReconnectDelay <= 0 {
		opt.ReconnectDelay = 5 * time.Second
	}
	return &PriceFeed{
		opt:   opt,
		price: store.Get[*model.BtcPrice](reg, store.ConceptPrice),
	}
}

type subscribeRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

type tickerMessage struct {
	Type      string          `json:"type"`
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
}

// Run streams until the context is canceled. The reconnect delay doubles on
// consecutive quick failures and resets after a stream that held for a while.
func (f *PriceFeed) Run(ctx context.Context) {
	delay := f.opt.ReconnectDelay
	for {
		start := time.Now()
		if err := f.stream(ctx); err != nil {
			logs.Warnf("price feed: %+v", err)
		}
		if time.Since(start) > time.Minute {
			delay = f.opt.ReconnectDelay
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay < 8*f.opt.ReconnectDelay {
			delay *= 2
		}
	}
}

func (f *PriceFeed) stream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.opt.URL, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s", f.opt.URL)
	}
	defer conn.Close()

	// Unblock the read loop on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sub := subscribeRequest{
		Type:       "subscribe",
		ProductIDs: []string{f.opt.ProductID},
		Channels:   []string{"ticker"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return errors.Wrap(err, "subscribe")
	}
	logs.Infof("price feed subscribed to %s", f.opt.ProductID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read")
		}
		f.handle(raw)
	}
}

func (f *PriceFeed) handle(raw []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logs.Debugf("price feed skipping frame: %v", err)
		return
	}
	if msg.Type != "ticker" || msg.ProductID != f.opt.ProductID {
		return
	}
	cents := model.ParseUSD(msg.Price.String())
	if cents <= 0 {
		return
	}
	f.price.Set(cents)
	obs.SetPriceCents(int64(cents))
}
