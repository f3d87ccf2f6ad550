package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNoPrice is returned when a paper order carries no price and the
// simulator has no last traded price for the instrument either.
var ErrNoPrice = errors.New("broker: no price available for paper fill")

// PriceSource resolves last traded prices for paper fills on orders
// that carry no explicit price.
type PriceSource interface {
	LastPrice(segment, securityID string) (decimal.Decimal, bool)
}

// Paper is the paper-trading broker: every order fills immediately and
// fully, at the order's price or at the last traded price. No slippage
// model — the scalper's fee config is where friction lives.
type Paper struct {
	mu     sync.Mutex
	prices PriceSource // optional
	fail   error       // injected failure, tests only
	fills  []Fill
}

// NewPaper creates a paper broker. prices may be nil if every order
// carries its own price.
func NewPaper(prices PriceSource) *Paper {
	return &Paper{prices: prices}
}

// FailWith makes every subsequent Execute return err (nil restores
// normal fills). Tests only.
func (p *Paper) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

// Fills returns a copy of every fill acknowledged so far.
func (p *Paper) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Fill, len(p.fills))
	copy(out, p.fills)
	return out
}

func (p *Paper) Execute(ctx context.Context, order Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail != nil {
		return Fill{}, p.fail
	}

	price := order.Price
	if price.IsZero() {
		if p.prices == nil {
			return Fill{}, ErrNoPrice
		}
		last, ok := p.prices.LastPrice(order.Segment, order.SecurityID)
		if !ok {
			return Fill{}, ErrNoPrice
		}
		price = last
	}

	fill := Fill{
		OrderID:   uuid.New().String(),
		Quantity:  order.Quantity,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}
	p.fills = append(p.fills, fill)
	return fill, nil
}
