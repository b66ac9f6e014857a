package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"arb-route-alerts/internal/currency"
)

const (
	aggregatorQuotePath         = "/sor/quote/v3"
	aggregatorFallbackQuotePath = "/sor/quote/v2"
	// Sentinel caller address the aggregator accepts for pure quoting.
	quoteUserAddr = "0x0000000000000000000000000000000000000001"
)

// AggregatorOptions parameterise the HTTP aggregator backend.
type AggregatorOptions struct {
	Timeout       time.Duration
	UserAgent     string
	SlippageLimit float64
}

// AggregatorSource quotes through an Odos-style smart-order-router API. The
// primary versioned endpoint is tried first; HTTP 410 (version retired)
// falls back to the previous version.
type AggregatorSource struct {
	opts   AggregatorOptions
	logger zerolog.Logger
	client *http.Client
}

// NewAggregatorSource builds the HTTP aggregator backend.
func NewAggregatorSource(opts AggregatorOptions, logger zerolog.Logger) *AggregatorSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &AggregatorSource{
		opts:   opts,
		logger: logger.With().Str("component", "aggregator_source").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Quote prices one leg through the aggregator API.
func (s *AggregatorSource) Quote(ctx context.Context, req Request) (currency.Amount, error) {
	if req.Venue.Endpoint == "" {
		return currency.Amount{}, fmt.Errorf("aggregator venue %s: endpoint not configured", req.Venue.ID)
	}
	if req.Input.IsZero() {
		return currency.Amount{}, errors.New("aggregator: input amount is zero")
	}

	base := strings.TrimRight(req.Venue.Endpoint, "/")

	out, err := s.quoteOnce(ctx, base+aggregatorQuotePath, req)
	if err != nil {
		var gone *versionRetiredError
		if errors.As(err, &gone) {
			s.logger.Debug().Str("venue", req.Venue.ID).Msg("primary quote version retired, using fallback")
			return s.quoteOnce(ctx, base+aggregatorFallbackQuotePath, req)
		}
		return currency.Amount{}, err
	}
	return out, nil
}

func (s *AggregatorSource) quoteOnce(ctx context.Context, endpoint string, req Request) (currency.Amount, error) {
	payload := sorQuoteRequest{
		ChainID: req.Venue.ChainID,
		InputTokens: []sorToken{{
			TokenAddress: strings.ToLower(req.In().Address.Hex()),
			Amount:       req.Input.Raw().String(),
		}},
		OutputTokens: []sorProportion{{
			TokenAddress: strings.ToLower(req.Out().Address.Hex()),
			Proportion:   1,
		}},
		UserAddr:             quoteUserAddr,
		SlippageLimitPercent: s.opts.SlippageLimit,
		DisableRFQs:          true,
		Compact:              true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return currency.Amount{}, fmt.Errorf("marshal quote payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return currency.Amount{}, fmt.Errorf("create quote request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		httpReq.Header.Set("User-Agent", ua)
	} else {
		httpReq.Header.Set("User-Agent", "arbwatcher/1.0")
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return currency.Amount{}, fmt.Errorf("venue %s quote request: %w", req.Venue.ID, err)
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return currency.Amount{}, fmt.Errorf("read quote response: %w", err)
	}

	if resp.StatusCode == http.StatusGone {
		return currency.Amount{}, &versionRetiredError{endpoint: endpoint}
	}
	if resp.StatusCode != http.StatusOK {
		return currency.Amount{}, parseAggregatorError(req.Venue.ID, resp.StatusCode, payloadBytes)
	}

	var quoteRes sorQuoteResponse
	if err := json.Unmarshal(payloadBytes, &quoteRes); err != nil {
		return currency.Amount{}, fmt.Errorf("decode quote response: %w", err)
	}
	if len(quoteRes.OutAmounts) == 0 {
		return currency.Amount{}, fmt.Errorf("venue %s quote missing outAmounts", req.Venue.ID)
	}

	atoms, err := decimal.NewFromString(quoteRes.OutAmounts[0])
	if err != nil {
		return currency.Amount{}, fmt.Errorf("parse out amount: %w", err)
	}
	if atoms.Sign() <= 0 {
		return currency.Amount{}, fmt.Errorf("venue %s returned non-positive output", req.Venue.ID)
	}

	return currency.New(atoms.BigInt(), req.Out().Decimals), nil
}

type versionRetiredError struct {
	endpoint string
}

func (e *versionRetiredError) Error() string {
	return fmt.Sprintf("aggregator endpoint retired: %s", e.endpoint)
}

type sorToken struct {
	TokenAddress string `json:"tokenAddress"`
	Amount       string `json:"amount"`
}

type sorProportion struct {
	TokenAddress string  `json:"tokenAddress"`
	Proportion   float64 `json:"proportion"`
}

type sorQuoteRequest struct {
	ChainID              int64           `json:"chainId"`
	InputTokens          []sorToken      `json:"inputTokens"`
	OutputTokens         []sorProportion `json:"outputTokens"`
	UserAddr             string          `json:"userAddr"`
	SlippageLimitPercent float64         `json:"slippageLimitPercent"`
	DisableRFQs          bool            `json:"disableRFQs"`
	Compact              bool            `json:"compact"`
}

type sorQuoteResponse struct {
	OutAmounts []string `json:"outAmounts"`
	PathID     string   `json:"pathId"`
}

type aggregatorErrorResponse struct {
	ErrorCode   int    `json:"errorCode"`
	Detail      string `json:"detail"`
	Description string `json:"description"`
}

func parseAggregatorError(venueID string, status int, payload []byte) error {
	var apiErr aggregatorErrorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Detail != "" {
			return fmt.Errorf("venue %s api error (%d): %s", venueID, status, apiErr.Detail)
		}
		if apiErr.Description != "" {
			return fmt.Errorf("venue %s api error (%d): %s", venueID, status, apiErr.Description)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("venue %s api error (%d): %s", venueID, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("venue %s api error (%d)", venueID, status)
}

var _ QuoteSource = (*AggregatorSource)(nil)
