// Package swap runs the quote→build→sign→send→confirm pipeline for one
// attempt and finalizes its record. Every attempt that reaches Execute is
// auditable: the PENDING record is written before the first external call.
package swap

import (
	"context"
	"fmt"
	"math"
	"strconv"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/el-gregus/skr-swap/internal/account"
	"github.com/el-gregus/skr-swap/internal/events"
	"github.com/el-gregus/skr-swap/internal/exchange"
	"github.com/el-gregus/skr-swap/internal/metrics"
	"github.com/el-gregus/skr-swap/internal/store"
)

// Request is one fully-sized swap attempt. Amount is in input-token units.
type Request struct {
	AccountID   string
	InputToken  string
	OutputToken string
	Amount      float64
	SlippageBps int
}

// Result is the terminal outcome of an attempt. A failed pipeline is a
// normal result, not an error; nothing propagates past the signal handler.
type Result struct {
	Success      bool
	RecordID     int64
	Signature    string
	InputAmount  float64
	OutputAmount float64
	Price        float64
	Slippage     float64
	Error        string
}

// Aggregator is the liquidity-routing collaborator.
type Aggregator interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*exchange.Quote, error)
	GetSwapTransaction(ctx context.Context, quote *exchange.Quote, userPublicKey string, priorityFeeMicroLamports int64) (string, error)
	GetTokenPrice(ctx context.Context, mints []string) (map[string]float64, error)
}

// Chain is the RPC collaborator.
type Chain interface {
	GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error)
	GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)
	GetTokenDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
	SendTransaction(ctx context.Context, txBase64 string, signer solana.PrivateKey) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature, maxRetries int) (bool, error)
	GetTransactionFee(ctx context.Context, sig solana.Signature) (uint64, error)
}

// Recorder is the persistence collaborator.
type Recorder interface {
	CreateSwap(accountID, accountLabel, inputToken, outputToken string, inputAmount float64, meta map[string]any) (int64, error)
	CompleteSwap(id int64, c store.Completion) error
	FailSwap(id int64, errMsg string) error
	UpsertWalletBalance(accountID, token string, balance float64) error
}

const fallbackDecimals = 9

// Manager executes swaps for a single account.
type Manager struct {
	acct           *account.Account
	jupiter        Aggregator
	chain          Chain
	store          Recorder
	bus            *events.Bus
	mints          map[string]string // symbol -> mint
	priorityFee    int64
	confirmRetries int
	log            zerolog.Logger
}

func NewManager(acct *account.Account, jupiter Aggregator, chain Chain, st Recorder, bus *events.Bus, mints map[string]string, priorityFee int64, confirmRetries int, log zerolog.Logger) *Manager {
	return &Manager{
		acct:           acct,
		jupiter:        jupiter,
		chain:          chain,
		store:          st,
		bus:            bus,
		mints:          mints,
		priorityFee:    priorityFee,
		confirmRetries: confirmRetries,
		log:            log.With().Str("comp", "swap").Str("account", acct.ID).Logger(),
	}
}

// Execute runs one attempt to a terminal record state. External-call
// failures short-circuit to FAILED; a confirmation timeout and enrichment
// failures do not.
func (m *Manager) Execute(ctx context.Context, req Request) Result {
	inputMint := m.mints[req.InputToken]
	outputMint := m.mints[req.OutputToken]
	if inputMint == "" || outputMint == "" {
		err := fmt.Sprintf("unknown token: %s or %s", req.InputToken, req.OutputToken)
		m.log.Error().Str("input", req.InputToken).Str("output", req.OutputToken).Msg("unknown token, no attempt made")
		return Result{InputAmount: req.Amount, Error: err}
	}

	id, err := m.store.CreateSwap(m.acct.ID, m.acct.Label, req.InputToken, req.OutputToken, req.Amount,
		map[string]any{"slippage_bps": req.SlippageBps})
	if err != nil {
		// Without an auditable record no external call is made.
		m.log.Error().Err(err).Msg("create swap record")
		return Result{InputAmount: req.Amount, Error: "create swap record: " + err.Error()}
	}
	m.publish(events.EventSwapStarted, map[string]any{
		"id": id, "account": m.acct.ID, "input": req.InputToken, "output": req.OutputToken, "amount": req.Amount,
	})

	inDecimals := m.resolveDecimals(ctx, inputMint)
	outDecimals := m.resolveDecimals(ctx, outputMint)

	baseUnits := toBaseUnits(req.Amount, inDecimals)
	if baseUnits == 0 {
		return m.fail(id, req, fmt.Sprintf("amount %g rounds to zero base units", req.Amount))
	}

	quote, err := m.jupiter.GetQuote(ctx, inputMint, outputMint, baseUnits, req.SlippageBps)
	if err != nil {
		return m.fail(id, req, "failed to get quote from Jupiter: "+err.Error())
	}
	if quote == nil {
		return m.fail(id, req, "failed to get quote from Jupiter")
	}

	txBase64, err := m.jupiter.GetSwapTransaction(ctx, quote, m.acct.PublicKey().String(), m.priorityFee)
	if err != nil {
		return m.fail(id, req, "failed to get swap transaction from Jupiter: "+err.Error())
	}

	sig, err := m.chain.SendTransaction(ctx, txBase64, m.acct.Key)
	if err != nil {
		return m.fail(id, req, "failed to send transaction: "+err.Error())
	}

	confirmed, err := m.chain.ConfirmTransaction(ctx, sig, m.confirmRetries)
	if err != nil || !confirmed {
		// The transaction may still land; the signature is already the
		// recorded outcome, so this is a warning rather than a failure.
		m.log.Warn().Str("sig", sig.String()).Err(err).Msg("transaction sent but confirmation not observed")
	}

	outputAmount := fromBaseUnits(parseUnits(quote.OutAmount), outDecimals)
	price := 0.0
	if req.Amount > 0 {
		price = outputAmount / req.Amount
	}

	completion := store.Completion{
		Signature:    sig.String(),
		OutputAmount: outputAmount,
		Price:        price,
		Slippage:     quote.PriceImpactPct,
	}
	m.enrich(ctx, &completion, inputMint, outputMint, req.Amount, outputAmount, sig)

	if err := m.store.CompleteSwap(id, completion); err != nil {
		m.log.Error().Err(err).Int64("swap_id", id).Msg("complete swap record")
	}
	m.snapshotBalances(ctx, req.InputToken, req.OutputToken)

	metrics.SwapsTotal.WithLabelValues(m.acct.ID, store.StatusCompleted).Inc()
	m.publish(events.EventSwapCompleted, map[string]any{
		"id": id, "account": m.acct.ID, "signature": completion.Signature,
		"output_amount": outputAmount, "price": price,
	})
	m.log.Info().
		Float64("in", req.Amount).Str("in_token", req.InputToken).
		Float64("out", outputAmount).Str("out_token", req.OutputToken).
		Float64("price", price).Str("sig", shortSig(completion.Signature)).
		Msg("swap completed")

	return Result{
		Success:      true,
		RecordID:     id,
		Signature:    completion.Signature,
		InputAmount:  req.Amount,
		OutputAmount: outputAmount,
		Price:        price,
		Slippage:     quote.PriceImpactPct,
	}
}

func (m *Manager) fail(id int64, req Request, msg string) Result {
	m.log.Error().Int64("swap_id", id).Str("error", msg).Msg("swap failed")
	if err := m.store.FailSwap(id, msg); err != nil {
		m.log.Error().Err(err).Int64("swap_id", id).Msg("fail swap record")
	}
	metrics.SwapsTotal.WithLabelValues(m.acct.ID, store.StatusFailed).Inc()
	m.publish(events.EventSwapFailed, map[string]any{"id": id, "account": m.acct.ID, "error": msg})
	return Result{RecordID: id, InputAmount: req.Amount, Error: msg}
}

// resolveDecimals returns a mint's precision. Native SOL is fixed; other
// mints are queried with a fallback when the lookup fails.
func (m *Manager) resolveDecimals(ctx context.Context, mint string) uint8 {
	if mint == exchange.NativeMint {
		return exchange.NativeDecimals
	}
	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		m.log.Warn().Str("mint", mint).Err(err).Msg("bad mint address, using fallback decimals")
		return fallbackDecimals
	}
	dec, err := m.chain.GetTokenDecimals(ctx, pk)
	if err != nil {
		m.log.Warn().Str("mint", mint).Err(err).Msg("decimals lookup failed, using fallback")
		return fallbackDecimals
	}
	return dec
}

// enrich fills USD pricing and fee fields best-effort. Nothing here can
// fail the pipeline.
func (m *Manager) enrich(ctx context.Context, c *store.Completion, inputMint, outputMint string, inputAmount, outputAmount float64, sig solana.Signature) {
	prices, err := m.jupiter.GetTokenPrice(ctx, []string{inputMint, outputMint})
	if err != nil {
		m.log.Warn().Err(err).Msg("price enrichment unavailable")
		prices = nil
	}
	if p, ok := prices[inputMint]; ok && p > 0 {
		c.InputPriceUSD = ptr(p)
		c.InputUSD = ptr(inputAmount * p)
	}
	if p, ok := prices[outputMint]; ok && p > 0 {
		c.OutputPriceUSD = ptr(p)
		c.OutputUSD = ptr(outputAmount * p)
	}

	feeLamports, err := m.chain.GetTransactionFee(ctx, sig)
	if err != nil {
		m.log.Warn().Err(err).Msg("fee lookup unavailable")
		return
	}
	feeSOL := float64(feeLamports) / math.Pow10(exchange.NativeDecimals)

	// Convert the fee with whichever trade leg is native SOL; fall back to
	// a dedicated price lookup when neither leg is.
	solUSD := 0.0
	switch {
	case inputMint == exchange.NativeMint && c.InputPriceUSD != nil:
		solUSD = *c.InputPriceUSD
	case outputMint == exchange.NativeMint && c.OutputPriceUSD != nil:
		solUSD = *c.OutputPriceUSD
	default:
		if solPrices, perr := m.jupiter.GetTokenPrice(ctx, []string{exchange.NativeMint}); perr == nil {
			solUSD = solPrices[exchange.NativeMint]
		}
	}
	if solUSD > 0 {
		c.FeeUSD = ptr(feeSOL * solUSD)
	}
}

// snapshotBalances refreshes the dashboard's wallet_state rows for the two
// legs of the trade. Best-effort only.
func (m *Manager) snapshotBalances(ctx context.Context, tokens ...string) {
	for _, token := range tokens {
		mint := m.mints[token]
		if mint == "" {
			continue
		}
		var units float64
		if mint == exchange.NativeMint {
			lamports, err := m.chain.GetBalance(ctx, m.acct.PublicKey())
			if err != nil {
				continue
			}
			units = fromBaseUnits(lamports, exchange.NativeDecimals)
		} else {
			pk, err := solana.PublicKeyFromBase58(mint)
			if err != nil {
				continue
			}
			raw, err := m.chain.GetTokenBalance(ctx, m.acct.PublicKey(), pk)
			if err != nil {
				continue
			}
			units = fromBaseUnits(raw, m.resolveDecimals(ctx, mint))
		}
		if err := m.store.UpsertWalletBalance(m.acct.ID, token, units); err != nil {
			m.log.Warn().Err(err).Str("token", token).Msg("wallet snapshot not recorded")
		}
	}
}

func (m *Manager) publish(e events.Event, payload any) {
	if m.bus != nil {
		m.bus.Publish(e, payload)
	}
}

func toBaseUnits(amount float64, decimals uint8) uint64 {
	if amount <= 0 {
		return 0
	}
	return uint64(math.Round(amount * math.Pow10(int(decimals))))
}

func fromBaseUnits(units uint64, decimals uint8) float64 {
	return float64(units) / math.Pow10(int(decimals))
}

func parseUnits(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func ptr(v float64) *float64 { return &v }

func shortSig(sig string) string {
	if len(sig) > 16 {
		return sig[:16]
	}
	return sig
}
