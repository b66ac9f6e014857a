package venue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"arb-route-alerts/internal/currency"
)

const (
	v2RouterABIJSON = `[{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}]`
	v3QuoterABIJSON = `[{"inputs":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"name":"quoteExactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}]`
)

var (
	v2RouterABI abi.ABI
	v3QuoterABI abi.ABI

	// Fee tiers probed on concentrated-liquidity quoters. The best finite
	// quote across tiers wins; a tier with no pool simply reverts.
	v3FeeTiers = []int64{500, 3000, 10000}
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(v2RouterABIJSON))
	if err != nil {
		panic("failed to parse V2 router ABI: " + err.Error())
	}
	v2RouterABI = parsed

	parsed, err = abi.JSON(strings.NewReader(v3QuoterABIJSON))
	if err != nil {
		panic("failed to parse V3 quoter ABI: " + err.Error())
	}
	v3QuoterABI = parsed
}

// OnchainOptions parameterise the on-chain quote backend.
type OnchainOptions struct {
	RPCURLs map[int64]string // chain id -> rpc endpoint
	Timeout time.Duration
}

// OnchainSource quotes constant-product routers and concentrated-liquidity
// quoters over Ethereum RPC. Clients are dialed lazily per chain.
type OnchainSource struct {
	opts      OnchainOptions
	logger    zerolog.Logger
	clientMux sync.Mutex
	clients   map[int64]*ethclient.Client
}

// NewOnchainSource builds the on-chain backend.
func NewOnchainSource(opts OnchainOptions, logger zerolog.Logger) *OnchainSource {
	return &OnchainSource{
		opts:    opts,
		logger:  logger.With().Str("component", "onchain_source").Logger(),
		clients: make(map[int64]*ethclient.Client),
	}
}

// Quote prices one leg on a V2 router or V3 quoter.
func (o *OnchainSource) Quote(ctx context.Context, req Request) (currency.Amount, error) {
	if req.Input.IsZero() {
		return currency.Amount{}, errors.New("onchain: input amount is zero")
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := o.getClient(ctx, req.Venue.ChainID)
	if err != nil {
		return currency.Amount{}, err
	}

	switch req.Venue.Kind {
	case KindConstantProduct:
		return o.quoteV2(ctx, client, req)
	case KindConcentratedLiquidity:
		return o.quoteV3(ctx, client, req)
	default:
		return currency.Amount{}, fmt.Errorf("onchain: venue %s kind %q: %w", req.Venue.ID, req.Venue.Kind, ErrUnsupportedKind)
	}
}

func (o *OnchainSource) quoteV2(ctx context.Context, client *ethclient.Client, req Request) (currency.Amount, error) {
	path := []common.Address{req.In().Address, req.Out().Address}

	payload, err := v2RouterABI.Pack("getAmountsOut", req.Input.Raw(), path)
	if err != nil {
		return currency.Amount{}, fmt.Errorf("pack getAmountsOut: %w", err)
	}

	contract := req.Venue.Contract
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: payload}, nil)
	if err != nil {
		return currency.Amount{}, fmt.Errorf("venue %s getAmountsOut: %w", req.Venue.ID, err)
	}

	outputs, err := v2RouterABI.Unpack("getAmountsOut", res)
	if err != nil {
		return currency.Amount{}, fmt.Errorf("unpack getAmountsOut: %w", err)
	}
	if len(outputs) != 1 {
		return currency.Amount{}, errors.New("unexpected getAmountsOut response")
	}

	amounts, ok := outputs[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return currency.Amount{}, errors.New("failed to decode getAmountsOut amounts")
	}

	out := amounts[len(amounts)-1]
	if out.Sign() <= 0 {
		return currency.Amount{}, fmt.Errorf("venue %s returned zero output", req.Venue.ID)
	}
	return currency.New(out, req.Out().Decimals), nil
}

func (o *OnchainSource) quoteV3(ctx context.Context, client *ethclient.Client, req Request) (currency.Amount, error) {
	contract := req.Venue.Contract

	var best *big.Int
	var lastErr error
	for _, tier := range v3FeeTiers {
		payload, err := v3QuoterABI.Pack(
			"quoteExactInputSingle",
			req.In().Address,
			req.Out().Address,
			big.NewInt(tier),
			req.Input.Raw(),
			big.NewInt(0),
		)
		if err != nil {
			return currency.Amount{}, fmt.Errorf("pack quoteExactInputSingle: %w", err)
		}

		res, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: payload}, nil)
		if err != nil {
			// No pool at this fee tier reverts; keep probing the others.
			lastErr = err
			continue
		}

		outputs, err := v3QuoterABI.Unpack("quoteExactInputSingle", res)
		if err != nil {
			lastErr = err
			continue
		}
		if len(outputs) != 1 {
			lastErr = errors.New("unexpected quoteExactInputSingle response")
			continue
		}
		out, ok := outputs[0].(*big.Int)
		if !ok || out.Sign() <= 0 {
			lastErr = errors.New("failed to decode quoteExactInputSingle output")
			continue
		}

		if best == nil || out.Cmp(best) > 0 {
			best = out
		}
	}

	if best == nil {
		if lastErr == nil {
			lastErr = errors.New("no fee tier produced a quote")
		}
		return currency.Amount{}, fmt.Errorf("venue %s: %w", req.Venue.ID, lastErr)
	}
	return currency.New(best, req.Out().Decimals), nil
}

func (o *OnchainSource) getClient(ctx context.Context, chainID int64) (*ethclient.Client, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if client, ok := o.clients[chainID]; ok {
		return client, nil
	}

	url, ok := o.opts.RPCURLs[chainID]
	if !ok || url == "" {
		return nil, fmt.Errorf("onchain: no rpc url configured for chain %d", chainID)
	}

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial chain %d: %w", chainID, err)
	}
	o.clients[chainID] = client
	return client, nil
}

var _ QuoteSource = (*OnchainSource)(nil)
