// Package pair tracks one buy+sell trade intention end-to-end and drives it
// through its lifecycle against the broker.
package pair

import (
	"github.com/google/uuid"

	"github.com/ghwfluffy/coinbase-tradebot/internal/market"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
)

// State is the lifecycle position of an order pair. Transitions are owned
// exclusively by the state machine.
type State uint8

const (
	StateNone State = iota
	StatePending
	StateBuyActive
	StateHolding
	StateSellActive
	StateComplete
	StateCanceled
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateBuyActive:
		return "BuyActive"
	case StateHolding:
		return "Holding"
	case StateSellActive:
		return "SellActive"
	case StateComplete:
		return "Complete"
	case StateCanceled:
		return "Canceled"
	case StateError:
		return "Error"
	default:
		return "None"
	}
}

// ParseState is the inverse of String. Unknown strings map to StateNone.
func ParseState(s string) State {
	for st := StatePending; st <= StateError; st++ {
		if st.String() == s {
			return st
		}
	}
	return StateNone
}

// Terminal reports whether the pair has finished its lifecycle.
func (s State) Terminal() bool {
	return s >= StateComplete
}

// Side tags which leg of the pair a modifier applied to.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// Phase is the market period a modifier derived from.
type Phase uint8

const (
	PhaseOpen Phase = iota
	PhaseClosing
	PhaseClosed
	PhaseOpening
	PhaseWeekending
	PhaseWeekend
	PhaseWeekStarting
)

func (p Phase) String() string {
	switch p {
	case PhaseClosing:
		return "Closing"
	case PhaseClosed:
		return "Closed"
	case PhaseOpening:
		return "Opening"
	case PhaseWeekending:
		return "Weekending"
	case PhaseWeekend:
		return "Weekend"
	case PhaseWeekStarting:
		return "WeekStarting"
	default:
		return "Open"
	}
}

// ModifierAction is what a period modifier did to the pair.
type ModifierAction uint8

const (
	// ActionPass: period applied with no price/bet change.
	ActionPass ModifierAction = iota
	// ActionDisabled: period permanently disables new positions.
	ActionDisabled
	// ActionFullPause: past the buffer of a cold period.
	ActionFullPause
	// ActionPause: inside the pause sub-window.
	ActionPause
	// ActionRamp: spread or sale price scaled inside the ramp sub-window.
	ActionRamp
)

func (a ModifierAction) String() string {
	switch a {
	case ActionDisabled:
		return "disabled"
	case ActionFullPause:
		return "full pause"
	case ActionPause:
		return "pause"
	case ActionRamp:
		return "ramp"
	default:
		return "pass"
	}
}

// Modifier is one structured entry in a pair's ordered audit trail of applied
// period adjustments.
type Modifier struct {
	Side     Side
	Calendar market.Calendar
	Phase    Phase
	Action   ModifierAction
}

// OrderPair is one tracked trade intention. Once the state is non-None the
// active fields (bet, prices, quantity) are strictly positive.
type OrderPair struct {
	UUID      string
	Algorithm string
	State     State

	BuyOrder  string
	SellOrder string

	BetCents      model.Cents
	BuyPrice      model.Cents
	SellPrice     model.Cents
	Quantity      model.Satoshi
	OrigSellPrice model.Cents

	CreatedMicros int64
	NextTryMicros int64

	Profit    model.ProfitData
	Modifiers []Modifier
}

// New creates a Pending pair for a trading algorithm.
func New(algorithm string, bet model.Cents, createdMicros int64) OrderPair {
	return OrderPair{
		UUID:          uuid.NewString(),
		Algorithm:     algorithm,
		State:         StatePending,
		BetCents:      bet,
		CreatedMicros: createdMicros,
	}
}

// MidPrice is the midpoint of the pair's targets.
func (p *OrderPair) MidPrice() model.Cents {
	return (p.BuyPrice + p.SellPrice) / 2
}

// BuyValue is the quote value reserved at the buy target.
func (p *OrderPair) BuyValue() model.Cents {
	return model.ValueCents(p.BuyPrice, p.Quantity)
}

// SellValue is the quote value realized at the sell target.
func (p *OrderPair) SellValue() model.Cents {
	return model.ValueCents(p.SellPrice, p.Quantity)
}

// AddModifier appends a structured audit entry.
func (p *OrderPair) AddModifier(side Side, cal market.Calendar, phase Phase, action ModifierAction) {
	p.Modifiers = append(p.Modifiers, Modifier{Side: side, Calendar: cal, Phase: phase, Action: action})
}

// ClearSellModifiers removes stale sell-side audit entries before a
// sale recomputation reapplies them.
func (p *OrderPair) ClearSellModifiers() {
	kept := p.Modifiers[:0]
	for _, m := range p.Modifiers {
		if m.Side != SideSell {
			kept = append(kept, m)
		}
	}
	p.Modifiers = kept
}
