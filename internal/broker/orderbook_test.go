package broker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghwfluffy/coinbase-tradebot/internal/store"
)

func TestOrderBookNotifiesOnlyOnChange(t *testing.T) {
	q := store.NewActionQueue()
	q.Start(1)
	defer q.Stop()
	reg := store.NewRegistry(q)
	book := &OrderBook{}
	reg.Init(store.ConceptOrderBook, book)

	var notified atomic.Int64
	reg.Subscribe(store.ConceptOrderBook, func() { notified.Add(1) })

	o := Order{UUID: "a", Buy: true, PriceCents: 4_994_800, Quantity: 200_200, State: OrderOpen}
	book.Update(o)

	// Re-publishing the identical record is what forced reconciliation does
	// on every pass: it must not notify again.
	book.Update(o)
	book.Update(o)

	o.State = OrderFilled
	book.Update(o)

	done := make(chan struct{})
	q.WaitComplete(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue never drained")
	}
	assert.Equal(t, int64(2), notified.Load())

	got, ok := book.GetOrder("a")
	require.True(t, ok)
	assert.Equal(t, OrderFilled, got.State)
}

func TestOrderBookIgnoresInvalidRecords(t *testing.T) {
	book := &OrderBook{}
	book.Update(Order{})
	book.Update(Order{UUID: "a"})
	_, ok := book.GetOrder("a")
	assert.False(t, ok)
}
