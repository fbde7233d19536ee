// Package signal standardizes the alert payloads shared between the webhook
// layer, the router, and the per-account engines.
package signal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Action is the trade direction carried by a signal.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// Valid reports whether the action is one of the two supported directions.
func (a Action) Valid() bool { return a == Buy || a == Sell }

// ErrMalformed marks inbound alerts that fail structural validation. The
// webhook layer maps it to a 400.
var ErrMalformed = errors.New("malformed signal")

// Signal is a normalized trading alert. Instances are treated as immutable
// once built; the router re-symbolizes a copy, never the original.
type Signal struct {
	Action    Action
	Symbol    string // trading-pair key, e.g. "SOL-SKR"
	Kind      string // confirmation-stage tag, empty when absent
	Timeframe string
	Amount    float64 // 0 when absent
	Price     float64 // 0 when absent
	At        time.Time
	Note      string
	Metadata  map[string]string
}

const alertFields = 7

// ParseAlert splits a raw delimited alert of the form
//
//	SYMBOL,TIMEFRAME,SOURCE,KIND,ACTION,TIME,PRICE
//
// into a Signal. Field count, the source tag, and the action are validated
// strictly; the timestamp and price parse leniently and drop to zero values
// on failure.
func ParseAlert(raw, sourceTag string) (*Signal, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) != alertFields {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformed, alertFields, len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if parts[2] != sourceTag {
		return nil, fmt.Errorf("%w: unknown source tag %q", ErrMalformed, parts[2])
	}

	action := Action(strings.ToUpper(parts[4]))
	if !action.Valid() {
		return nil, fmt.Errorf("%w: invalid action %q", ErrMalformed, parts[4])
	}
	if parts[0] == "" {
		return nil, fmt.Errorf("%w: missing symbol", ErrMalformed)
	}

	sig := &Signal{
		Action:    action,
		Symbol:    parts[0],
		Kind:      parts[3],
		Timeframe: parts[1],
		Metadata: map[string]string{
			"source":      parts[2],
			"signal_time": parts[5],
		},
	}
	if ts, err := time.Parse(time.RFC3339, parts[5]); err == nil {
		sig.At = ts
	}
	if px, err := strconv.ParseFloat(parts[6], 64); err == nil {
		sig.Price = px
	}
	return sig, nil
}
