// Package broker defines the narrow interface the engine consumes for order
// entry and account state, together with the error taxonomy the state machine
// keys its retry/escalate decisions on.
package broker

import (
	"errors"

	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
)

var (
	// ErrUnavailable is a transient I/O failure: retry with backoff.
	ErrUnavailable = errors.New("broker unavailable")
	// ErrPostOnly means a maker order would have crossed the book.
	ErrPostOnly = errors.New("post-only order would cross")
	// ErrInsufficientFunds means the wallet cannot cover the order.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotFound means the broker has no record of the order.
	ErrNotFound = errors.New("order not found")
	// ErrBadResponse is a malformed or contradictory broker response.
	// Automation for the affected pair halts pending manual review.
	ErrBadResponse = errors.New("malformed broker response")
)

// IsTransient reports whether an error warrants a retry instead of an
// Error-state escalation.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrPostOnly)
}

// OrderState is the broker-side lifecycle of one order.
type OrderState uint8

const (
	OrderNone OrderState = iota
	OrderOpen
	OrderFilled
	OrderCanceled
	OrderError
)

func (s OrderState) String() string {
	switch s {
	case OrderOpen:
		return "Open"
	case OrderFilled:
		return "Filled"
	case OrderCanceled:
		return "Canceled"
	case OrderError:
		return "Error"
	default:
		return "None"
	}
}

// Order is the broker-side record of one limit order.
type Order struct {
	UUID          string
	Buy           bool
	PriceCents    model.Cents
	Quantity      model.Satoshi
	State         OrderState
	CreatedMicros int64

	// Fill economics, populated once filled.
	BeforeFeesPico model.Pico
	FeesPico       model.Pico
}

// Valid reports whether the record refers to a known order.
func (o Order) Valid() bool {
	return o.UUID != "" && o.State != OrderNone
}

// ValueCents is the reserved quote value of the order.
func (o Order) ValueCents() model.Cents {
	return model.ValueCents(o.PriceCents, o.Quantity)
}

// Broker is the order-entry collaborator. Implementations own their own
// timeout behavior; callers bound retry frequency, not duration.
type Broker interface {
	// GetOrder fetches the authoritative record for an order.
	GetOrder(uuid string) (Order, error)
	// SubmitOrder places a maker-only limit order, assigning UUID on success.
	SubmitOrder(o *Order) error
	// CancelOrder cancels a resting order.
	CancelOrder(uuid string) error
	// GetWallet fetches current balances.
	GetWallet() (model.WalletData, error)
	// GetFeeTier fetches the maker fee rate in basis points.
	GetFeeTier() (uint32, error)
}
