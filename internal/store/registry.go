package store

import (
	"fmt"
	"sync"
)

// Concept tags one reactive data singleton. Tags are explicit so the registry
// never depends on runtime type identity.
type Concept uint8

const (
	ConceptNone Concept = iota
	ConceptTime
	ConceptPrice
	ConceptOrderBook
	ConceptWallet
	ConceptFeeTier
	ConceptProfits
	ConceptBrokerReady
)

func (c Concept) String() string {
	switch c {
	case ConceptTime:
		return "Time"
	case ConceptPrice:
		return "Price"
	case ConceptOrderBook:
		return "OrderBook"
	case ConceptWallet:
		return "Wallet"
	case ConceptFeeTier:
		return "FeeTier"
	case ConceptProfits:
		return "Profits"
	case ConceptBrokerReady:
		return "BrokerReady"
	default:
		return "None"
	}
}

// Model is satisfied by embedding Notifier.
type Model interface {
	bind(notify func())
}

// Notifier is the change-notify hook embedded by every data concept.
// A model's mutator calls Updated after writing under its own lock; the hook
// enqueues subscriber closures onto the action queue so subscriber code never
// runs on the mutating goroutine.
type Notifier struct {
	notify func()
}

func (n *Notifier) bind(notify func()) {
	n.notify = notify
}

// Updated fires the change hook.
func (n *Notifier) Updated() {
	if n.notify != nil {
		n.notify()
	}
}

// Registry owns one live instance per data concept for a session, plus the
// subscriber lists. Subscriptions are fixed at setup time, before the first
// mutation, which keeps notification free of list races.
type Registry struct {
	queue *ActionQueue

	mu     sync.RWMutex
	models map[Concept]Model
	subs   map[Concept][]func()
}

// NewRegistry creates a registry dispatching through the given queue.
func NewRegistry(queue *ActionQueue) *Registry {
	return &Registry{
		queue:  queue,
		models: make(map[Concept]Model),
		subs:   make(map[Concept][]func()),
	}
}

// Init installs the singleton for a concept and binds its notify hook.
func (r *Registry) Init(concept Concept, m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.bind(func() { r.dispatch(concept) })
	r.models[concept] = m
}

// Subscribe registers fn to run on the action queue after every mutation of
// the concept. Call only during setup.
func (r *Registry) Subscribe(concept Concept, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[concept] = append(r.subs[concept], fn)
}

func (r *Registry) dispatch(concept Concept) {
	r.mu.RLock()
	subs := r.subs[concept]
	r.mu.RUnlock()
	for _, fn := range subs {
		r.queue.Queue(fn)
	}
}

func (r *Registry) model(concept Concept) Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[concept]
}

// Get returns the registered singleton for a concept.
// It panics on a missing or mistyped registration: both are wiring bugs that
// must fail at startup, not trading time.
func Get[T Model](r *Registry, concept Concept) T {
	m := r.model(concept)
	if m == nil {
		panic(fmt.Sprintf("store: concept %s not registered", concept))
	}
	typed, ok := m.(T)
	if !ok {
		panic(fmt.Sprintf("store: concept %s registered as %T", concept, m))
	}
	return typed
}
