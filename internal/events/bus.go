// Package events provides a lightweight channel pub/sub broker used to feed
// the dashboard websocket stream.
package events

import "sync"

// Event names published by the core.
type Event string

const (
	EventSignalReceived Event = "signal_received"
	EventSwapStarted    Event = "swap_started"
	EventSwapCompleted  Event = "swap_completed"
	EventSwapFailed     Event = "swap_failed"
)

// All lists every event a firehose subscriber cares about.
var All = []Event{EventSignalReceived, EventSwapStarted, EventSwapCompleted, EventSwapFailed}

// Envelope is the wire shape pushed to websocket clients.
type Envelope struct {
	Type Event `json:"type"`
	Data any   `json:"data"`
}

// Bus is a non-blocking fan-out broker. Slow subscribers drop messages
// rather than stalling the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan Envelope
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan Envelope)}
}

// Subscribe registers a listener and returns the channel plus an
// unsubscribe function that closes it.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, buffer)
	b.subs[e] = append(b.subs[e], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, unsub
}

// Publish fans the payload out to current subscribers without blocking.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- Envelope{Type: e, Data: payload}:
		default:
			// drop if the subscriber is slow; keep the broker non-blocking
		}
	}
}
