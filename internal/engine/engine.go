// Package engine hosts one actor goroutine per account. The actor owns the
// account's sequence gate and trading state, so signal handling, sizing,
// and the swap attempt for one account are strictly serialized: no second
// attempt starts before the previous one reaches a terminal record state.
package engine

import (
	"context"
	"math"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/el-gregus/skr-swap/internal/account"
	"github.com/el-gregus/skr-swap/internal/exchange"
	"github.com/el-gregus/skr-swap/internal/gate"
	"github.com/el-gregus/skr-swap/internal/metrics"
	"github.com/el-gregus/skr-swap/internal/signal"
	"github.com/el-gregus/skr-swap/internal/swap"
)

// Executor runs one sized swap attempt to a terminal record state.
type Executor interface {
	Execute(ctx context.Context, req swap.Request) swap.Result
}

// BalanceReader is the subset of the chain client the sizer needs.
type BalanceReader interface {
	GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error)
	GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)
	GetTokenDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
}

// Engine consumes routed signals for a single account.
type Engine struct {
	acct  *account.Account
	gate  *gate.Gate
	exec  Executor
	chain BalanceReader
	mints map[string]string
	log   zerolog.Logger
	in    chan *signal.Signal

	// Mutated only from the actor goroutine.
	lastAction     signal.Action
	lastSwapTime   map[string]time.Time
	lastSellOutput float64

	now func() time.Time
}

func New(acct *account.Account, exec Executor, chain BalanceReader, mints map[string]string, log zerolog.Logger) *Engine {
	return &Engine{
		acct:         acct,
		gate:         gate.New(),
		exec:         exec,
		chain:        chain,
		mints:        mints,
		log:          log.With().Str("comp", "engine").Str("account", acct.ID).Logger(),
		in:           make(chan *signal.Signal, 64),
		lastSwapTime: make(map[string]time.Time),
		now:          time.Now,
	}
}

// Submit hands a routed signal to the actor. Inbound volume is expected to
// be low; if the buffer is somehow full the signal is dropped with a log
// rather than blocking the webhook handler.
func (e *Engine) Submit(sig *signal.Signal) {
	select {
	case e.in <- sig:
	default:
		e.log.Warn().Str("symbol", sig.Symbol).Msg("engine queue full, signal dropped")
	}
}

// Run processes signals until the context is canceled. An attempt already
// in flight runs to its terminal state; cancellation only stops intake.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-e.in:
			e.handle(context.Background(), sig)
		}
	}
}

func (e *Engine) handle(ctx context.Context, sig *signal.Signal) {
	res := e.gate.Apply(sig.Symbol, sig.Kind, sig.Action)
	if res.From != res.To {
		e.log.Info().
			Str("symbol", sig.Symbol).Str("kind", sig.Kind).Str("action", string(sig.Action)).
			Stringer("from", res.From).Stringer("to", res.To).
			Msg("sequence state")
	}
	if !res.Execute {
		return
	}
	metrics.GateExecutions.WithLabelValues(e.acct.ID, string(sig.Action)).Inc()
	e.executeSignal(ctx, sig)
}

func (e *Engine) executeSignal(ctx context.Context, sig *signal.Signal) {
	if !sig.Action.Valid() {
		e.reject("invalid_action", sig)
		return
	}
	if e.lastAction != "" && e.lastAction == sig.Action {
		e.reject("duplicate_action", sig)
		return
	}
	if !e.cooldownPassed(sig.Symbol) {
		e.reject("cooldown", sig)
		return
	}

	quoteUnits, quoteWired, quoteErr := e.readTokenUnits(ctx, e.acct.Strategy.QuoteToken)
	if !e.positionAllows(sig.Action, quoteUnits, quoteWired, quoteErr) {
		e.reject("position_check", sig)
		return
	}

	req, ok := e.buildRequest(ctx, sig.Action, quoteUnits, quoteWired, quoteErr)
	if !ok {
		return
	}

	result := e.exec.Execute(ctx, req)
	if !result.Success {
		e.log.Error().Str("error", result.Error).Msg("swap attempt failed")
		return
	}

	e.lastSwapTime[sig.Symbol] = e.now()
	e.lastAction = sig.Action
	if sig.Action == signal.Sell {
		e.lastSellOutput = result.OutputAmount
	}
}

func (e *Engine) reject(reason string, sig *signal.Signal) {
	metrics.EngineRejects.WithLabelValues(e.acct.ID, reason).Inc()
	e.log.Info().
		Str("reason", reason).Str("symbol", sig.Symbol).Str("action", string(sig.Action)).
		Msg("execution rejected")
}

func (e *Engine) cooldownPassed(symbol string) bool {
	minBetween := e.acct.Strategy.MinTimeBetweenSwaps
	if minBetween <= 0 {
		return true
	}
	last, ok := e.lastSwapTime[symbol]
	if !ok {
		return true
	}
	return e.now().Sub(last) >= time.Duration(minBetween)*time.Second
}

// positionAllows checks the quote-token holding against the configured
// threshold: BUY only when not already holding, SELL only when holding.
// When the check cannot be wired at all (no chain client, unknown mint)
// it passes rather than blocking trading; when the wired query errors it
// rejects, since assuming a balance for the direction check would be
// conjuring data. The asymmetry is intentional.
func (e *Engine) positionAllows(action signal.Action, units float64, wired bool, readErr error) bool {
	if !wired {
		e.log.Debug().Msg("position check not wired, allowing")
		return true
	}
	if readErr != nil {
		e.log.Warn().Err(readErr).Msg("position check balance read failed")
		return false
	}
	threshold := e.acct.Strategy.MinQuoteThreshold
	if action == signal.Buy {
		return units < threshold
	}
	return units >= threshold
}

// buildRequest sizes the attempt. A false return is a silent no-op: no
// record is created.
func (e *Engine) buildRequest(ctx context.Context, action signal.Action, quoteUnits float64, quoteWired bool, quoteErr error) (swap.Request, bool) {
	strat := e.acct.Strategy
	req := swap.Request{
		AccountID:   e.acct.ID,
		SlippageBps: strat.MaxSlippageBps,
	}

	if action == signal.Sell {
		// Sweep the entire quote-token holding.
		if !quoteWired || quoteErr != nil || quoteUnits <= 0 {
			e.log.Info().Float64("balance", quoteUnits).Msg("nothing to sell, skipping")
			return req, false
		}
		req.InputToken = strat.QuoteToken
		req.OutputToken = strat.BaseToken
		req.Amount = quoteUnits
		return req, true
	}

	// BUY: retrade the last sell's proceeds, else the configured default,
	// capped by what the base wallet can spend after the fee reserve.
	target := strat.DefaultSwapSize
	if e.lastSellOutput > 0 {
		target = e.lastSellOutput
	}

	baseUnits, baseWired, baseErr := e.readTokenUnits(ctx, strat.BaseToken)
	if baseWired {
		if baseErr != nil {
			e.log.Warn().Err(baseErr).Msg("base balance read failed, skipping buy")
			return req, false
		}
		available := baseUnits - strat.MinBaseReserve
		if available <= 0 {
			e.log.Info().Float64("balance", baseUnits).Float64("reserve", strat.MinBaseReserve).
				Msg("no base balance available, skipping buy")
			return req, false
		}
		if available < target {
			e.log.Info().Float64("target", target).Float64("available", available).
				Msg("reducing buy size to available balance")
			target = available
		}
	}

	req.InputToken = strat.BaseToken
	req.OutputToken = strat.QuoteToken
	req.Amount = target
	return req, true
}

// readTokenUnits reads a token balance in whole-token units. wired=false
// means the check could not be performed at all (no client or mint).
func (e *Engine) readTokenUnits(ctx context.Context, token string) (units float64, wired bool, err error) {
	if e.chain == nil {
		return 0, false, nil
	}
	mint := e.mints[token]
	if mint == "" {
		return 0, false, nil
	}
	if mint == exchange.NativeMint {
		lamports, err := e.chain.GetBalance(ctx, e.acct.PublicKey())
		if err != nil {
			return 0, true, err
		}
		return float64(lamports) / math.Pow10(exchange.NativeDecimals), true, nil
	}

	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, false, nil
	}
	raw, err := e.chain.GetTokenBalance(ctx, e.acct.PublicKey(), pk)
	if err != nil {
		return 0, true, err
	}
	decimals, derr := e.chain.GetTokenDecimals(ctx, pk)
	if derr != nil {
		decimals = exchange.NativeDecimals
	}
	return float64(raw) / math.Pow10(int(decimals)), true, nil
}
