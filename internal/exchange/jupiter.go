// Package exchange holds the outbound collaborators: the Jupiter swap
// aggregator and the Solana RPC wrapper.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Native SOL pseudo-mint and its fixed precision.
const (
	NativeMint     = "So11111111111111111111111111111111111111112"
	NativeDecimals = 9
)

// JupiterClient talks to the Jupiter quote/swap/price APIs.
type JupiterClient struct {
	Base      string
	PriceBase string
	Http      *http.Client
	log       zerolog.Logger
}

// Quote is the subset of the Jupiter quote response the pipeline needs.
type Quote struct {
	InputMint      string  `json:"inputMint"`
	OutputMint     string  `json:"outputMint"`
	InAmount       string  `json:"inAmount"`
	OutAmount      string  `json:"outAmount"`
	OtherAmount    string  `json:"otherAmountThreshold"`
	SlippageBps    int     `json:"slippageBps"`
	RoutePlan      any     `json:"routePlan"`
	PriceImpactPct float64 `json:"priceImpactPct,string"`
}

func NewJupiterClient(base, priceBase string, log zerolog.Logger) *JupiterClient {
	return &JupiterClient{
		Base:      strings.TrimRight(base, "/"),
		PriceBase: strings.TrimRight(priceBase, "/"),
		Http:      &http.Client{Timeout: 30 * time.Second},
		log:       log.With().Str("comp", "jupiter").Logger(),
	}
}

// GetQuote fetches a pre-trade quote. amount is in smallest units
// (lamports for SOL; token decimals apply).
func (j *JupiterClient) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", fmt.Sprintf("%d", amount))
	q.Set("slippageBps", fmt.Sprintf("%d", slippageBps))
	u := j.Base + "/quote?" + q.Encode()

	req, _ := http.NewRequestWithContext(ctx, "GET", u, nil)
	resp, err := j.Http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("jupiter quote status %d", resp.StatusCode)
	}
	var out Quote
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	j.log.Debug().
		Str("in", shortMint(inputMint)).Str("out", shortMint(outputMint)).
		Uint64("amount", amount).Str("out_amount", out.OutAmount).
		Float64("impact_pct", out.PriceImpactPct).
		Msg("quote")
	return &out, nil
}

// GetSwapTransaction asks Jupiter to build an unsigned transaction for the
// quote and returns it base64-encoded.
func (j *JupiterClient) GetSwapTransaction(ctx context.Context, quote *Quote, userPublicKey string, priorityFeeMicroLamports int64) (string, error) {
	payload := map[string]any{
		"quoteResponse":    quote,
		"userPublicKey":    userPublicKey,
		"wrapAndUnwrapSol": true,
	}
	if priorityFeeMicroLamports > 0 {
		payload["computeUnitPriceMicroLamports"] = priorityFeeMicroLamports
	}
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequestWithContext(ctx, "POST", j.Base+"/swap", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := j.Http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("jupiter swap status %d", resp.StatusCode)
	}
	var sr struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", err
	}
	if sr.SwapTransaction == "" {
		return "", fmt.Errorf("no transaction in jupiter response")
	}
	return sr.SwapTransaction, nil
}

// GetTokenPrice returns USD prices keyed by mint. Used for best-effort
// record enrichment only.
func (j *JupiterClient) GetTokenPrice(ctx context.Context, mints []string) (map[string]float64, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(mints, ","))
	u := j.PriceBase + "/price?" + q.Encode()

	req, _ := http.NewRequestWithContext(ctx, "GET", u, nil)
	resp, err := j.Http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("jupiter price status %d", resp.StatusCode)
	}
	var pr struct {
		Data map[string]struct {
			Price float64 `json:"price"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, err
	}
	prices := make(map[string]float64, len(pr.Data))
	for mint, info := range pr.Data {
		prices[mint] = info.Price
	}
	return prices, nil
}

func shortMint(mint string) string {
	if len(mint) > 8 {
		return mint[:8]
	}
	return mint
}
