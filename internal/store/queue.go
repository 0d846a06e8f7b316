package store

import (
	"sync"

	"github.com/yanun0323/logs"
)

// ActionQueue runs queued reactions FIFO on a fixed pool of workers.
// Subscriber code dispatched through it never runs on the mutating thread.
type ActionQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	actions []func()
	waiters []func()
	running bool
	active  int
	wg      sync.WaitGroup
}

// NewActionQueue allocates a stopped queue.
func NewActionQueue() *ActionQueue {
	q := &ActionQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker pool.
func (q *ActionQueue) Start(workers int) {
	if workers <= 0 {
		workers = 4
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	logs.Infof("starting action queue with %d workers", workers)
	q.running = true
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
}

// Stop shuts the pool down cooperatively: workers run the remaining backlog
// down, then any idle-barrier waiters are released. No queued action is
// dropped.
func (q *ActionQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cond.Broadcast()
	q.mu.Unlock()

	q.wg.Wait()

	q.mu.Lock()
	waiters := q.waiters
	q.waiters = nil
	q.mu.Unlock()
	for _, cb := range waiters {
		cb()
	}
	logs.Info("action queue stopped")
}

// Queue appends an action to the FIFO.
func (q *ActionQueue) Queue(action func()) {
	q.mu.Lock()
	q.actions = append(q.actions, action)
	q.mu.Unlock()
	q.cond.Signal()
}

// Depth reports queued plus in-flight actions.
func (q *ActionQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions) + q.active
}

// WaitComplete invokes cb once the queue is empty with no in-flight action.
// If the queue is already idle (or stopped) cb runs immediately on the
// calling goroutine. This is the idle barrier a replay driver uses to settle
// one logical tick before advancing the next.
func (q *ActionQueue) WaitComplete(cb func()) {
	q.mu.Lock()
	if q.running && (q.active > 0 || len(q.actions) > 0) {
		q.waiters = append(q.waiters, cb)
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()
	cb()
}

func (q *ActionQueue) run() {
	defer q.wg.Done()
	q.mu.Lock()
	for {
		for q.running && len(q.actions) == 0 {
			q.cond.Wait()
		}
		if !q.running && len(q.actions) == 0 {
			q.mu.Unlock()
			return
		}

		action := q.actions[0]
		q.actions = q.actions[1:]
		q.active++
		q.mu.Unlock()

		action()

		q.mu.Lock()
		q.active--
		if q.active == 0 && len(q.actions) == 0 && len(q.waiters) > 0 {
			waiters := q.waiters
			q.waiters = nil
			q.mu.Unlock()
			for _, cb := range waiters {
				cb()
			}
			q.mu.Lock()
		}
	}
}
