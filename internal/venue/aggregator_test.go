package venue

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"arb-route-alerts/internal/currency"
)

func testRequest(endpoint string) Request {
	return Request{
		Venue: Venue{
			ID:       "odos",
			Kind:     KindAggregator,
			ChainID:  137,
			Endpoint: endpoint,
			GasCost:  decimal.NewFromFloat(0.1),
		},
		Direction: ToReference,
		Asset:     Token{Symbol: "LINK", Address: common.HexToAddress("0x53E0bca35eC356BD5ddDFebbD1Fc0fD03FaBad39"), Decimals: 18},
		Reference: Token{Symbol: "USDC", Address: common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"), Decimals: 6},
		Input:     currency.New(big.NewInt(1_000_000_000_000_000_000), 18),
	}
}

func TestAggregatorQuoteSuccess(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body sorQuoteRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.ChainID != 137 {
			t.Fatalf("chainId 应为 137, 实际 %d", body.ChainID)
		}
		if len(body.InputTokens) != 1 || body.InputTokens[0].Amount != "1000000000000000000" {
			t.Fatalf("输入数量不正确: %#v", body.InputTokens)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"outAmounts": []string{"14500000"}})
	}))
	defer srv.Close()

	src := NewAggregatorSource(AggregatorOptions{Timeout: time.Second}, zerolog.Nop())
	out, err := src.Quote(context.Background(), testRequest(srv.URL))
	if err != nil {
		t.Fatalf("Quote 应成功: %v", err)
	}
	if gotPath != aggregatorQuotePath {
		t.Fatalf("应请求主版本路径, 实际 %s", gotPath)
	}
	if out.Raw().Int64() != 14_500_000 {
		t.Fatalf("期望 14500000 atoms, 实际 %s", out.Raw())
	}
	if out.Decimals() != 6 {
		t.Fatalf("输出应使用 USDC 精度, 实际 %d", out.Decimals())
	}
}

func TestAggregatorVersionFallback(t *testing.T) {
	paths := make([]string, 0, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == aggregatorQuotePath {
			w.WriteHeader(http.StatusGone)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"outAmounts": []string{"9000000"}})
	}))
	defer srv.Close()

	src := NewAggregatorSource(AggregatorOptions{Timeout: time.Second}, zerolog.Nop())
	out, err := src.Quote(context.Background(), testRequest(srv.URL))
	if err != nil {
		t.Fatalf("fallback 应成功: %v", err)
	}
	if len(paths) != 2 || paths[1] != aggregatorFallbackQuotePath {
		t.Fatalf("应在 410 后回退到旧版本, 实际 %v", paths)
	}
	if out.Raw().Int64() != 9_000_000 {
		t.Fatalf("期望 9000000 atoms, 实际 %s", out.Raw())
	}
}

func TestAggregatorHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"detail": "no liquidity"})
	}))
	defer srv.Close()

	src := NewAggregatorSource(AggregatorOptions{Timeout: time.Second}, zerolog.Nop())
	if _, err := src.Quote(context.Background(), testRequest(srv.URL)); err == nil {
		t.Fatal("HTTP 400 应返回错误")
	}
}

func TestAggregatorMissingEndpoint(t *testing.T) {
	src := NewAggregatorSource(AggregatorOptions{}, zerolog.Nop())
	req := testRequest("")
	if _, err := src.Quote(context.Background(), req); err == nil {
		t.Fatal("缺少 endpoint 应报错")
	}
}

func TestDispatcherUnsupportedKind(t *testing.T) {
	d := NewDispatcher(nil, nil)
	req := testRequest("http://localhost")
	req.Venue.Kind = Kind("mystery")
	if _, err := d.Quote(context.Background(), req); err == nil {
		t.Fatal("未知 kind 应报错")
	}
}
