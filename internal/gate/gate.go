// Package gate implements the three-stage confirmation state machine that
// must fire before any swap is attempted. A single-indicator alert never
// trades on its own: a setup signal arms the gate, a mean signal confirms
// it, and only a matching confirmation/trend signal executes.
package gate

import (
	"strings"

	"github.com/el-gregus/skr-swap/internal/signal"
)

// Stage is the per-symbol confirmation progress.
type Stage int

const (
	Idle Stage = iota
	Armed
	Confirmed
)

func (s Stage) String() string {
	switch s {
	case Armed:
		return "ARMED"
	case Confirmed:
		return "CONFIRMED"
	default:
		return "IDLE"
	}
}

// Normalized signal-kind vocabulary.
const (
	kindArm     = "mr-low"
	kindMean    = "mean"
	kindConfirm = "conf"
)

var kindAliases = map[string]string{
	"mr-low":       kindArm,
	"mrlow":        kindArm,
	"meanrev-low":  kindArm,
	"mean-rev-low": kindArm,
	"mean":         kindMean,
	"conf":         kindConfirm,
	"trend":        kindConfirm,
}

// normalizeKind lowercases and strips punctuation variance before lookup.
// Unknown or missing kinds map to the empty string and never advance state.
func normalizeKind(raw string) string {
	k := strings.ToLower(strings.TrimSpace(raw))
	k = strings.ReplaceAll(k, "_", "-")
	k = strings.ReplaceAll(k, " ", "-")
	return kindAliases[k]
}

type state struct {
	stage  Stage
	action signal.Action
}

// Result describes what a signal did to the gate.
type Result struct {
	Execute bool
	From    Stage
	To      Stage
}

// Gate tracks confirmation state per symbol. Each account engine owns one
// Gate and applies signals from a single goroutine, so there is no lock.
// State is in-memory only; a restart resets every symbol to Idle.
type Gate struct {
	states map[string]state
}

func New() *Gate {
	return &Gate{states: make(map[string]state)}
}

// Stage returns the current stage for the symbol.
func (g *Gate) Stage(symbol string) Stage {
	return g.states[symbol].stage
}

// Apply runs one signal through the transition table and reports whether
// the caller should execute a swap. Only a conf/trend signal arriving on a
// Confirmed gate with a matching action fires; it also clears the gate so
// the next trade needs a full fresh sequence.
func (g *Gate) Apply(symbol, rawKind string, action signal.Action) Result {
	cur := g.states[symbol]
	res := Result{From: cur.stage, To: cur.stage}

	switch normalizeKind(rawKind) {
	case kindArm:
		if cur.stage != Idle && cur.action == action {
			// Duplicate arm in the same direction is an idempotent no-op;
			// never downgrade Confirmed back to Armed.
			return res
		}
		g.states[symbol] = state{stage: Armed, action: action}
		res.To = Armed

	case kindMean:
		if cur.stage == Armed && cur.action == action {
			g.states[symbol] = state{stage: Confirmed, action: action}
			res.To = Confirmed
		}

	case kindConfirm:
		if cur.stage == Confirmed && cur.action == action {
			delete(g.states, symbol)
			res.To = Idle
			res.Execute = true
		}
	}
	return res
}
