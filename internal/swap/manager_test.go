package swap

import (
	"context"
	"errors"
	"math"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/el-gregus/skr-swap/internal/account"
	"github.com/el-gregus/skr-swap/internal/config"
	"github.com/el-gregus/skr-swap/internal/exchange"
	"github.com/el-gregus/skr-swap/internal/store"
)

const (
	solMint = exchange.NativeMint
	skrMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type stubAggregator struct {
	quote    *exchange.Quote
	quoteErr error
	tx       string
	txErr    error
	prices   map[string]float64
	priceErr error
}

func (s *stubAggregator) GetQuote(ctx context.Context, in, out string, amount uint64, bps int) (*exchange.Quote, error) {
	return s.quote, s.quoteErr
}

func (s *stubAggregator) GetSwapTransaction(ctx context.Context, q *exchange.Quote, pubkey string, fee int64) (string, error) {
	return s.tx, s.txErr
}

func (s *stubAggregator) GetTokenPrice(ctx context.Context, mints []string) (map[string]float64, error) {
	return s.prices, s.priceErr
}

type stubChain struct {
	decimals   uint8
	decErr     error
	sig        solana.Signature
	sendErr    error
	confirmed  bool
	confirmErr error
	fee        uint64
	feeErr     error
	balance    uint64
	balanceErr error
}

func (s *stubChain) GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	return s.balance, s.balanceErr
}

func (s *stubChain) GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	return s.balance, s.balanceErr
}

func (s *stubChain) GetTokenDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	return s.decimals, s.decErr
}

func (s *stubChain) SendTransaction(ctx context.Context, txBase64 string, signer solana.PrivateKey) (solana.Signature, error) {
	return s.sig, s.sendErr
}

func (s *stubChain) ConfirmTransaction(ctx context.Context, sig solana.Signature, maxRetries int) (bool, error) {
	return s.confirmed, s.confirmErr
}

func (s *stubChain) GetTransactionFee(ctx context.Context, sig solana.Signature) (uint64, error) {
	return s.fee, s.feeErr
}

type memRecorder struct {
	nextID    int64
	created   int
	completed map[int64]store.Completion
	failed    map[int64]string
	balances  map[string]float64
}

func newMemRecorder() *memRecorder {
	return &memRecorder{
		completed: make(map[int64]store.Completion),
		failed:    make(map[int64]string),
		balances:  make(map[string]float64),
	}
}

func (m *memRecorder) CreateSwap(accountID, label, in, out string, amount float64, meta map[string]any) (int64, error) {
	m.nextID++
	m.created++
	return m.nextID, nil
}

func (m *memRecorder) CompleteSwap(id int64, c store.Completion) error {
	m.completed[id] = c
	return nil
}

func (m *memRecorder) FailSwap(id int64, errMsg string) error {
	m.failed[id] = errMsg
	return nil
}

func (m *memRecorder) UpsertWalletBalance(accountID, token string, balance float64) error {
	m.balances[token] = balance
	return nil
}

func testAccount() *account.Account {
	return &account.Account{
		ID:      "acct1",
		Label:   "Test",
		Enabled: true,
		Key:     solana.NewWallet().PrivateKey,
		Strategy: config.Strategy{
			TokenPair:  "SOL-SKR",
			BaseToken:  "SOL",
			QuoteToken: "SKR",
		},
	}
}

func testMints() map[string]string {
	return map[string]string{"SOL": solMint, "SKR": skrMint}
}

func newTestManager(agg *stubAggregator, chain *stubChain, rec *memRecorder) *Manager {
	return NewManager(testAccount(), agg, chain, rec, nil, testMints(), 0, 3, zerolog.Nop())
}

func testSig() solana.Signature {
	var sig solana.Signature
	sig[0] = 0x42
	return sig
}

func TestExecuteCompletes(t *testing.T) {
	agg := &stubAggregator{
		quote: &exchange.Quote{OutAmount: "2000000", PriceImpactPct: 0.12},
		tx:    "dGVzdA==",
		prices: map[string]float64{
			solMint: 100.0,
			skrMint: 25.0,
		},
	}
	chain := &stubChain{decimals: 6, sig: testSig(), confirmed: true, fee: 5000, balance: 1_000_000}
	rec := newMemRecorder()
	m := newTestManager(agg, chain, rec)

	res := m.Execute(context.Background(), Request{
		AccountID: "acct1", InputToken: "SOL", OutputToken: "SKR", Amount: 0.5, SlippageBps: 100,
	})

	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if rec.created != 1 {
		t.Fatalf("expected exactly one record, got %d", rec.created)
	}
	c, ok := rec.completed[res.RecordID]
	if !ok {
		t.Fatalf("record not finalized as completed")
	}
	if c.Signature != testSig().String() {
		t.Fatalf("signature not recorded")
	}
	if c.OutputAmount != 2.0 {
		t.Fatalf("expected output 2.0 (decimals=6), got %v", c.OutputAmount)
	}
	if c.Price != 4.0 {
		t.Fatalf("expected realized price 4.0, got %v", c.Price)
	}
	if c.Slippage != 0.12 {
		t.Fatalf("expected price impact recorded as slippage, got %v", c.Slippage)
	}
	if c.OutputUSD == nil || c.OutputPriceUSD == nil {
		t.Fatalf("expected USD enrichment")
	}
	// output_amount * output_usd_price == output_usd within rounding tolerance.
	if math.Abs(c.OutputAmount**c.OutputPriceUSD-*c.OutputUSD) > 1e-9 {
		t.Fatalf("USD round-trip mismatch: %v * %v != %v", c.OutputAmount, *c.OutputPriceUSD, *c.OutputUSD)
	}
	// Fee converts through the native input leg: 5000 lamports at $100.
	if c.FeeUSD == nil || math.Abs(*c.FeeUSD-0.0005) > 1e-12 {
		t.Fatalf("unexpected fee usd: %v", c.FeeUSD)
	}
}

func TestExecuteFailsAtSend(t *testing.T) {
	agg := &stubAggregator{
		quote: &exchange.Quote{OutAmount: "1000"},
		tx:    "dGVzdA==",
	}
	chain := &stubChain{decimals: 6, sendErr: errors.New("blockhash expired")}
	rec := newMemRecorder()
	m := newTestManager(agg, chain, rec)

	res := m.Execute(context.Background(), Request{InputToken: "SOL", OutputToken: "SKR", Amount: 0.5})

	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.Signature != "" {
		t.Fatalf("failed attempt must not carry a signature")
	}
	msg, ok := rec.failed[res.RecordID]
	if !ok {
		t.Fatalf("record not finalized as failed")
	}
	if msg == "" {
		t.Fatalf("failed record needs a human-readable error")
	}
	if len(rec.completed) != 0 {
		t.Fatalf("failed attempt must not be completed")
	}
}

func TestExecuteFailsAtQuote(t *testing.T) {
	agg := &stubAggregator{quoteErr: errors.New("502")}
	rec := newMemRecorder()
	m := newTestManager(agg, &stubChain{decimals: 6}, rec)

	res := m.Execute(context.Background(), Request{InputToken: "SOL", OutputToken: "SKR", Amount: 1})
	if res.Success {
		t.Fatalf("expected failure")
	}
	if len(rec.failed) != 1 {
		t.Fatalf("expected one failed record, got %d", len(rec.failed))
	}
}

func TestConfirmationTimeoutStillCompletes(t *testing.T) {
	agg := &stubAggregator{quote: &exchange.Quote{OutAmount: "1000000"}, tx: "dGVzdA=="}
	chain := &stubChain{decimals: 6, sig: testSig(), confirmed: false}
	rec := newMemRecorder()
	m := newTestManager(agg, chain, rec)

	res := m.Execute(context.Background(), Request{InputToken: "SOL", OutputToken: "SKR", Amount: 1})
	if !res.Success {
		t.Fatalf("confirmation timeout must not fail the record: %q", res.Error)
	}
	if _, ok := rec.completed[res.RecordID]; !ok {
		t.Fatalf("record should be completed with the signature as outcome")
	}
}

func TestUnknownTokenMakesNoRecord(t *testing.T) {
	rec := newMemRecorder()
	m := newTestManager(&stubAggregator{}, &stubChain{}, rec)

	res := m.Execute(context.Background(), Request{InputToken: "DOGE", OutputToken: "SKR", Amount: 1})
	if res.Success {
		t.Fatalf("expected failure for unknown token")
	}
	if rec.created != 0 {
		t.Fatalf("unknown token must not create a record")
	}
}

func TestEnrichmentFailureDoesNotFail(t *testing.T) {
	agg := &stubAggregator{
		quote:    &exchange.Quote{OutAmount: "1000000"},
		tx:       "dGVzdA==",
		priceErr: errors.New("price api down"),
	}
	chain := &stubChain{decimals: 6, sig: testSig(), confirmed: true, feeErr: errors.New("rpc down")}
	rec := newMemRecorder()
	m := newTestManager(agg, chain, rec)

	res := m.Execute(context.Background(), Request{InputToken: "SOL", OutputToken: "SKR", Amount: 1})
	if !res.Success {
		t.Fatalf("enrichment failures must not fail the pipeline: %q", res.Error)
	}
	c := rec.completed[res.RecordID]
	if c.InputUSD != nil || c.FeeUSD != nil {
		t.Fatalf("expected null enrichment fields when lookups fail")
	}
}
