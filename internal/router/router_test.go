package router

import (
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/el-gregus/skr-swap/internal/account"
	"github.com/el-gregus/skr-swap/internal/config"
	"github.com/el-gregus/skr-swap/internal/signal"
)

type captureSink struct {
	got []*signal.Signal
}

func (c *captureSink) Submit(sig *signal.Signal) { c.got = append(c.got, sig) }

type memSignalStore struct {
	recorded int
}

func (m *memSignalStore) RecordSignal(action, symbol, kind, timeframe string, amount, price float64, note string, payload map[string]string) (int64, error) {
	m.recorded++
	return int64(m.recorded), nil
}

func testRegistry(t *testing.T, cfgs []config.Account) *account.Registry {
	t.Helper()
	for i := range cfgs {
		if cfgs[i].PrivateKey == "" {
			cfgs[i].PrivateKey = solana.NewWallet().PrivateKey.String()
		}
	}
	reg, err := account.BuildRegistry(cfgs, zerolog.Nop())
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func TestHandleFansOutToMatchingAccounts(t *testing.T) {
	reg := testRegistry(t, []config.Account{
		{ID: "a1", Enabled: true, Strategy: config.Strategy{TokenPair: "SOL-SKR", BaseToken: "SOL", QuoteToken: "SKR"}},
		{ID: "a2", Enabled: true, Strategy: config.Strategy{TokenPair: "SOL-SKR", BaseToken: "SOL", QuoteToken: "SKR"}},
		{ID: "a3", Enabled: true, Strategy: config.Strategy{TokenPair: "SOL-BONK", BaseToken: "SOL", QuoteToken: "BONK"}},
	})
	sinks := map[string]Sink{"a1": &captureSink{}, "a2": &captureSink{}, "a3": &captureSink{}}
	st := &memSignalStore{}
	r := New(reg, sinks, st, nil, zerolog.Nop())

	r.Handle(&signal.Signal{Action: signal.Buy, Symbol: "SOL-SKR", Kind: "conf"})

	if n := len(sinks["a1"].(*captureSink).got); n != 1 {
		t.Fatalf("a1 should receive the signal, got %d", n)
	}
	if n := len(sinks["a2"].(*captureSink).got); n != 1 {
		t.Fatalf("a2 should receive the signal, got %d", n)
	}
	if n := len(sinks["a3"].(*captureSink).got); n != 0 {
		t.Fatalf("a3 trades a different pair, got %d", n)
	}
	if st.recorded != 1 {
		t.Fatalf("signal must be persisted once, got %d", st.recorded)
	}
}

func TestHandleMatchesByTokenAndResymbolizes(t *testing.T) {
	reg := testRegistry(t, []config.Account{
		{ID: "a1", Enabled: true, Strategy: config.Strategy{TokenPair: "SOL-SKR", BaseToken: "SOL", QuoteToken: "SKR"}},
	})
	sink := &captureSink{}
	r := New(reg, map[string]Sink{"a1": sink}, nil, nil, zerolog.Nop())

	// A bare quote-token symbol still matches, and the routed copy carries
	// the account's canonical pair.
	r.Handle(&signal.Signal{Action: signal.Sell, Symbol: "SKR", Kind: "conf"})

	if len(sink.got) != 1 {
		t.Fatalf("quote-token symbol must match, got %d", len(sink.got))
	}
	if sink.got[0].Symbol != "SOL-SKR" {
		t.Fatalf("routed signal must be re-symbolized, got %q", sink.got[0].Symbol)
	}
}

func TestHandleCopiesPerAccount(t *testing.T) {
	reg := testRegistry(t, []config.Account{
		{ID: "a1", Enabled: true, Strategy: config.Strategy{TokenPair: "SOL-SKR", BaseToken: "SOL", QuoteToken: "SKR"}},
		{ID: "a2", Enabled: true, Strategy: config.Strategy{TokenPair: "SOL-SKR", BaseToken: "SOL", QuoteToken: "SKR"}},
	})
	s1, s2 := &captureSink{}, &captureSink{}
	r := New(reg, map[string]Sink{"a1": s1, "a2": s2}, nil, nil, zerolog.Nop())

	orig := &signal.Signal{Action: signal.Buy, Symbol: "SOL", Kind: "mean"}
	r.Handle(orig)

	if s1.got[0] == s2.got[0] {
		t.Fatalf("each account must get its own copy")
	}
	if s1.got[0] == orig {
		t.Fatalf("the inbound signal itself must not be shared")
	}
	if orig.Symbol != "SOL" {
		t.Fatalf("re-symbolizing must not mutate the inbound signal")
	}
}

func TestHandleSkipsDisabledAccounts(t *testing.T) {
	reg := testRegistry(t, []config.Account{
		{ID: "a1", Enabled: false, Strategy: config.Strategy{TokenPair: "SOL-SKR", BaseToken: "SOL", QuoteToken: "SKR"}},
	})
	sink := &captureSink{}
	r := New(reg, map[string]Sink{"a1": sink}, nil, nil, zerolog.Nop())

	r.Handle(&signal.Signal{Action: signal.Buy, Symbol: "SOL-SKR", Kind: "conf"})

	if len(sink.got) != 0 {
		t.Fatalf("disabled account must not receive signals")
	}
}

func TestHandleZeroMatchesIsNotAnError(t *testing.T) {
	reg := testRegistry(t, []config.Account{
		{ID: "a1", Enabled: true, Strategy: config.Strategy{TokenPair: "SOL-SKR", BaseToken: "SOL", QuoteToken: "SKR"}},
	})
	st := &memSignalStore{}
	r := New(reg, map[string]Sink{"a1": &captureSink{}}, st, nil, zerolog.Nop())

	r.Handle(&signal.Signal{Action: signal.Buy, Symbol: "ETH-USDC", Kind: "conf"})

	// Still recorded even though nothing matched.
	if st.recorded != 1 {
		t.Fatalf("unmatched signal must still be persisted")
	}
}
