package venue

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"arb-route-alerts/internal/currency"
)

// Kind identifies how a venue is quoted. Dispatch is a closed switch over
// kind; venue instances only carry addressing data.
type Kind string

const (
	// KindConstantProduct quotes through a Uniswap V2 style router.
	KindConstantProduct Kind = "constant_product"
	// KindConcentratedLiquidity quotes through a Uniswap V3 style quoter.
	KindConcentratedLiquidity Kind = "concentrated_liquidity"
	// KindAggregator quotes through an HTTP aggregator API.
	KindAggregator Kind = "aggregator"
)

// Direction names one leg of a round trip.
type Direction int

const (
	// ToAsset converts reference currency into the asset (buy leg).
	ToAsset Direction = iota
	// ToReference converts the asset back into reference currency (sell leg).
	ToReference
)

func (d Direction) String() string {
	if d == ToAsset {
		return "to_asset"
	}
	return "to_reference"
}

// Token carries the addressing metadata of a tradable token.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int32
}

// Venue is one priceable counterparty. Stateless, configured at startup.
type Venue struct {
	ID       string
	Kind     Kind
	ChainID  int64
	Contract common.Address // router or quoter contract for on-chain kinds
	Endpoint string         // base URL for aggregator kind
	// GasCost is the simulated round-leg gas cost in reference-currency units.
	GasCost decimal.Decimal
}

// Request asks one venue to convert an exact input amount along a leg.
type Request struct {
	Venue     Venue
	Direction Direction
	Asset     Token
	Reference Token
	Input     currency.Amount
}

// In returns the token being spent for this leg.
func (r Request) In() Token {
	if r.Direction == ToAsset {
		return r.Reference
	}
	return r.Asset
}

// Out returns the token being received for this leg.
func (r Request) Out() Token {
	if r.Direction == ToAsset {
		return r.Asset
	}
	return r.Reference
}

// QuoteSource is the single capability the engine consumes from venues. A
// failed leg is an error return, never a panic; callers treat it as "skip
// this leg".
type QuoteSource interface {
	Quote(ctx context.Context, req Request) (currency.Amount, error)
}

// ErrUnsupportedKind flags a venue kind no backend can serve.
var ErrUnsupportedKind = errors.New("venue: unsupported kind")

// Dispatcher routes quote requests to the backend matching the venue kind.
type Dispatcher struct {
	onchain    *OnchainSource
	aggregator *AggregatorSource
}

// NewDispatcher wires concrete backends into a single QuoteSource.
func NewDispatcher(onchain *OnchainSource, aggregator *AggregatorSource) *Dispatcher {
	return &Dispatcher{onchain: onchain, aggregator: aggregator}
}

// Quote dispatches on the venue kind.
func (d *Dispatcher) Quote(ctx context.Context, req Request) (currency.Amount, error) {
	switch req.Venue.Kind {
	case KindConstantProduct, KindConcentratedLiquidity:
		if d.onchain == nil {
			return currency.Amount{}, fmt.Errorf("venue %s: %w", req.Venue.ID, ErrUnsupportedKind)
		}
		return d.onchain.Quote(ctx, req)
	case KindAggregator:
		if d.aggregator == nil {
			return currency.Amount{}, fmt.Errorf("venue %s: %w", req.Venue.ID, ErrUnsupportedKind)
		}
		return d.aggregator.Quote(ctx, req)
	default:
		return currency.Amount{}, fmt.Errorf("venue %s kind %q: %w", req.Venue.ID, req.Venue.Kind, ErrUnsupportedKind)
	}
}

var _ QuoteSource = (*Dispatcher)(nil)
