package store

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDeliversEveryActionOnce(t *testing.T) {
	q := NewActionQueue()
	q.Start(4)
	defer q.Stop()

	const producers = 8
	const perProducer = 250

	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				q.Queue(func() { count.Add(1) })
			}
		}()
	}
	wg.Wait()

	done := make(chan struct{})
	q.WaitComplete(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue never drained")
	}
	assert.Equal(t, int64(producers*perProducer), count.Load())
	assert.Zero(t, q.Depth())
}

func TestWaitCompleteImmediateWhenIdle(t *testing.T) {
	q := NewActionQueue()
	q.Start(1)
	defer q.Stop()

	fired := false
	q.WaitComplete(func() { fired = true })
	assert.True(t, fired)
}

func TestWaitCompleteImmediateWhenStopped(t *testing.T) {
	q := NewActionQueue()
	fired := false
	q.WaitComplete(func() { fired = true })
	assert.True(t, fired)
}

func TestStopDrainsBacklog(t *testing.T) {
	q := NewActionQueue()
	q.Start(1)

	block := make(chan struct{})
	q.Queue(func() { <-block })
	var count atomic.Int64
	for i := 0; i < 10; i++ {
		q.Queue(func() { count.Add(1) })
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(block)
	}()
	q.Stop()
	assert.Equal(t, int64(10), count.Load())
	assert.Zero(t, q.Depth())
}

func TestStopReleasesWaiters(t *testing.T) {
	q := NewActionQueue()
	q.Start(1)

	block := make(chan struct{})
	q.Queue(func() { <-block })

	released := make(chan struct{})
	// Give the worker a moment to pick the action up.
	time.Sleep(50 * time.Millisecond)
	q.WaitComplete(func() { close(released) })

	close(block)
	q.Stop()
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never released")
	}
}

type counterModel struct {
	Notifier
}

func TestRegistryDispatchesToSubscribers(t *testing.T) {
	q := NewActionQueue()
	q.Start(2)
	defer q.Stop()

	reg := NewRegistry(q)
	m := &counterModel{}
	reg.Init(ConceptPrice, m)

	var a, b atomic.Int64
	reg.Subscribe(ConceptPrice, func() { a.Add(1) })
	reg.Subscribe(ConceptPrice, func() { b.Add(1) })

	for i := 0; i < 10; i++ {
		m.Updated()
	}

	done := make(chan struct{})
	q.WaitComplete(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch never settled")
	}
	assert.Equal(t, int64(10), a.Load())
	assert.Equal(t, int64(10), b.Load())
}

func TestRegistryGet(t *testing.T) {
	reg := NewRegistry(NewActionQueue())
	m := &counterModel{}
	reg.Init(ConceptWallet, m)

	got := Get[*counterModel](reg, ConceptWallet)
	require.Same(t, m, got)

	assert.Panics(t, func() {
		Get[*counterModel](reg, ConceptFeeTier)
	})
}
