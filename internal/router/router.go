// Package router records inbound signals and fans them out to every
// enabled account trading the signal's symbol.
package router

import (
	"github.com/rs/zerolog"

	"github.com/el-gregus/skr-swap/internal/account"
	"github.com/el-gregus/skr-swap/internal/events"
	"github.com/el-gregus/skr-swap/internal/metrics"
	"github.com/el-gregus/skr-swap/internal/signal"
)

// Sink receives routed signals for one account; satisfied by *engine.Engine.
type Sink interface {
	Submit(sig *signal.Signal)
}

// SignalStore is the observability slice of the persistence collaborator.
type SignalStore interface {
	RecordSignal(action, symbol, kind, timeframe string, amount, price float64, note string, payload map[string]string) (int64, error)
}

// Router dispatches signals to account engines.
type Router struct {
	reg     *account.Registry
	engines map[string]Sink
	store   SignalStore
	bus     *events.Bus
	log     zerolog.Logger
}

func New(reg *account.Registry, engines map[string]Sink, store SignalStore, bus *events.Bus, log zerolog.Logger) *Router {
	return &Router{
		reg:     reg,
		engines: engines,
		store:   store,
		bus:     bus,
		log:     log.With().Str("comp", "router").Logger(),
	}
}

// Handle records the signal and fans it out. An account matches when its
// trading pair, base token, or quote token equals the signal symbol; the
// routed copy is re-symbolized to the account's canonical pair. Zero
// matches is observable, not an error.
func (r *Router) Handle(sig *signal.Signal) {
	r.log.Info().Str("action", string(sig.Action)).Str("symbol", sig.Symbol).Str("kind", sig.Kind).Msg("routing signal")
	metrics.SignalsTotal.WithLabelValues(string(sig.Action), sig.Symbol).Inc()

	if r.store != nil {
		if _, err := r.store.RecordSignal(string(sig.Action), sig.Symbol, sig.Kind, sig.Timeframe, sig.Amount, sig.Price, sig.Note, sig.Metadata); err != nil {
			r.log.Error().Err(err).Msg("record signal")
		}
	}
	if r.bus != nil {
		r.bus.Publish(events.EventSignalReceived, map[string]any{
			"action": sig.Action, "symbol": sig.Symbol, "kind": sig.Kind,
		})
	}

	routed := 0
	for _, acct := range r.reg.All() {
		if !acct.Enabled {
			continue
		}
		strat := acct.Strategy
		if sig.Symbol != strat.TokenPair && sig.Symbol != strat.BaseToken && sig.Symbol != strat.QuoteToken {
			continue
		}
		sink := r.engines[acct.ID]
		if sink == nil {
			continue
		}
		routedSig := *sig
		routedSig.Symbol = strat.TokenPair
		sink.Submit(&routedSig)
		metrics.SignalsRouted.WithLabelValues(acct.ID).Inc()
		routed++
	}

	if routed == 0 {
		metrics.SignalsUnmatched.Inc()
		r.log.Warn().Str("symbol", sig.Symbol).Msg("no accounts matched signal symbol")
	} else {
		r.log.Info().Int("accounts", routed).Msg("signal routed")
	}
}
