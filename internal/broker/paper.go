package broker

import (
	"sync"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"github.com/ghwfluffy/coinbase-tradebot/internal/clock"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
)

// picoPerSatoshiCent converts (cents x satoshi) directly to pico dollars.
const picoPerSatoshiCent = int64(model.PicoPerCent) / int64(model.SatoshiPerBtc)

// Paper simulates the broker against a mock ledger: post-only admission,
// price-crossing fills, fee-tier fees. It backs tests and replay runs.
type Paper struct {
	clk      clock.Clock
	makerBps uint32
	takerBps uint32

	mu sync.Mutex

	// Injected failures for failure-path tests, read under mu.
	SubmitErr   error
	GetOrderErr error
	CancelErr   error

	lastPrice model.Cents
	usd       model.Cents
	usdHeld   model.Cents
	btc       model.Satoshi
	btcHeld   model.Satoshi
	orders    map[string]Order
}

// NewPaper creates a paper broker funded with usdCents.
func NewPaper(clk clock.Clock, usdCents model.Cents, makerBps, takerBps uint32) *Paper {
	return &Paper{
		clk:      clk,
		makerBps: makerBps,
		takerBps: takerBps,
		usd:      usdCents,
		orders:   make(map[string]Order),
	}
}

// OnPrice advances the simulated market: resting orders crossed by the new
// price fill at their limit price.
func (p *Paper) OnPrice(cents model.Cents) {
	if cents <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrice = cents
	for id, o := range p.orders {
		if o.State != OrderOpen {
			continue
		}
		if (o.Buy && cents <= o.PriceCents) || (!o.Buy && cents >= o.PriceCents) {
			p.fill(&o)
			p.orders[id] = o
		}
	}
}

func (p *Paper) fill(o *Order) {
	gross, err := model.CheckedMul(int64(o.PriceCents), int64(o.Quantity))
	if err != nil {
		o.State = OrderError
		return
	}
	grossPico, err := model.CheckedMul(gross, picoPerSatoshiCent)
	if err != nil {
		o.State = OrderError
		return
	}
	o.BeforeFeesPico = model.Pico(grossPico)
	o.FeesPico = model.Pico(grossPico * int64(p.makerBps) / 10_000)
	o.State = OrderFilled

	value := o.ValueCents()
	if o.Buy {
		if p.usdHeld >= value {
			p.usdHeld -= value
		} else {
			p.usdHeld = 0
		}
		p.btc += o.Quantity
	} else {
		if p.btcHeld >= o.Quantity {
			p.btcHeld -= o.Quantity
		} else {
			p.btcHeld = 0
		}
		p.usd += model.Cents(int64(o.BeforeFeesPico-o.FeesPico) / int64(model.PicoPerCent))
	}
	logs.Debugf("paper fill %s order %s at %s", side(o.Buy), o.UUID, o.PriceCents.FormatUSD())
}

// GetOrder returns the simulated broker record.
func (p *Paper) GetOrder(id string) (Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.GetOrderErr != nil {
		return Order{}, p.GetOrderErr
	}
	o, ok := p.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// SubmitOrder admits a maker-only order against the ledger.
func (p *Paper) SubmitOrder(o *Order) error {
	if o == nil || o.PriceCents <= 0 || o.Quantity <= 0 {
		return ErrBadResponse
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SubmitErr != nil {
		return p.SubmitErr
	}

	// Maker-only: the order must rest, not cross.
	if p.lastPrice > 0 {
		if o.Buy && o.PriceCents >= p.lastPrice {
			return ErrPostOnly
		}
		if !o.Buy && o.PriceCents <= p.lastPrice {
			return ErrPostOnly
		}
	}

	if o.Buy {
		value := o.ValueCents()
		if p.usd < value {
			return ErrInsufficientFunds
		}
		p.usd -= value
		p.usdHeld += value
	} else {
		if p.btc < o.Quantity {
			return ErrInsufficientFunds
		}
		p.btc -= o.Quantity
		p.btcHeld += o.Quantity
	}

	o.UUID = uuid.NewString()
	o.State = OrderOpen
	o.CreatedMicros = p.clk.NowMicros()
	p.orders[o.UUID] = *o
	return nil
}

// CancelOrder cancels a resting order and releases its hold.
func (p *Paper) CancelOrder(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CancelErr != nil {
		return p.CancelErr
	}
	o, ok := p.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.State != OrderOpen {
		return nil
	}
	if o.Buy {
		value := o.ValueCents()
		if p.usdHeld >= value {
			p.usdHeld -= value
		}
		p.usd += value
	} else {
		if p.btcHeld >= o.Quantity {
			p.btcHeld -= o.Quantity
		}
		p.btc += o.Quantity
	}
	o.State = OrderCanceled
	p.orders[id] = o
	return nil
}

// GetWallet returns the ledger snapshot.
func (p *Paper) GetWallet() (model.WalletData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.WalletData{
		UsdCents:       p.usd,
		UsdHeldCents:   p.usdHeld,
		BtcSatoshi:     p.btc,
		BtcHeldSatoshi: p.btcHeld,
	}, nil
}

// GetFeeTier returns the maker rate in basis points.
func (p *Paper) GetFeeTier() (uint32, error) {
	return p.makerBps, nil
}

func side(buy bool) string {
	if buy {
		return "buy"
	}
	return "sell"
}
