package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

const skrMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func TestGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("inputMint") != NativeMint || q.Get("outputMint") != skrMint {
			t.Errorf("mints not forwarded: %v", q)
		}
		if q.Get("amount") != "500000000" || q.Get("slippageBps") != "100" {
			t.Errorf("amount/slippage not forwarded: %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"inputMint": "` + NativeMint + `",
			"outputMint": "` + skrMint + `",
			"inAmount": "500000000",
			"outAmount": "2000000",
			"otherAmountThreshold": "1980000",
			"slippageBps": 100,
			"priceImpactPct": "0.0123"
		}`))
	}))
	defer srv.Close()

	j := NewJupiterClient(srv.URL, srv.URL, zerolog.Nop())
	quote, err := j.GetQuote(context.Background(), NativeMint, skrMint, 500_000_000, 100)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.OutAmount != "2000000" {
		t.Fatalf("out amount: %s", quote.OutAmount)
	}
	if quote.PriceImpactPct != 0.0123 {
		t.Fatalf("price impact must decode from the quoted string, got %v", quote.PriceImpactPct)
	}
}

func TestGetQuoteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	j := NewJupiterClient(srv.URL, srv.URL, zerolog.Nop())
	if _, err := j.GetQuote(context.Background(), NativeMint, skrMint, 1, 50); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestGetSwapTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/swap" || r.Method != "POST" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["userPublicKey"] != "pubkey123" {
			t.Errorf("user key not forwarded: %v", payload["userPublicKey"])
		}
		if payload["wrapAndUnwrapSol"] != true {
			t.Errorf("wrapAndUnwrapSol must be set")
		}
		if payload["computeUnitPriceMicroLamports"] != float64(5000) {
			t.Errorf("priority fee not forwarded: %v", payload["computeUnitPriceMicroLamports"])
		}
		json.NewEncoder(w).Encode(map[string]string{"swapTransaction": "dHhkYXRh"})
	}))
	defer srv.Close()

	j := NewJupiterClient(srv.URL, srv.URL, zerolog.Nop())
	tx, err := j.GetSwapTransaction(context.Background(), &Quote{OutAmount: "1"}, "pubkey123", 5000)
	if err != nil {
		t.Fatalf("swap tx: %v", err)
	}
	if tx != "dHhkYXRh" {
		t.Fatalf("unexpected tx: %s", tx)
	}
}

func TestGetSwapTransactionOmitsZeroFee(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		if _, ok := payload["computeUnitPriceMicroLamports"]; ok {
			t.Errorf("zero priority fee must be omitted")
		}
		json.NewEncoder(w).Encode(map[string]string{"swapTransaction": "dHg="})
	}))
	defer srv.Close()

	j := NewJupiterClient(srv.URL, srv.URL, zerolog.Nop())
	if _, err := j.GetSwapTransaction(context.Background(), &Quote{}, "pk", 0); err != nil {
		t.Fatalf("swap tx: %v", err)
	}
}

func TestGetSwapTransactionMissingTx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	j := NewJupiterClient(srv.URL, srv.URL, zerolog.Nop())
	if _, err := j.GetSwapTransaction(context.Background(), &Quote{}, "pk", 0); err == nil {
		t.Fatal("expected error when response has no transaction")
	}
}

func TestGetTokenPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("ids") != NativeMint+","+skrMint {
			t.Errorf("ids not joined: %s", r.URL.Query().Get("ids"))
		}
		w.Write([]byte(`{"data": {
			"` + NativeMint + `": {"price": 171.25},
			"` + skrMint + `": {"price": 0.95}
		}}`))
	}))
	defer srv.Close()

	j := NewJupiterClient(srv.URL, srv.URL, zerolog.Nop())
	prices, err := j.GetTokenPrice(context.Background(), []string{NativeMint, skrMint})
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if prices[NativeMint] != 171.25 || prices[skrMint] != 0.95 {
		t.Fatalf("unexpected prices: %v", prices)
	}
}
