// Package account builds the immutable registry of trading wallets from
// configuration at startup. Accounts are never mutated afterwards; hot
// reload is out of scope.
package account

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/el-gregus/skr-swap/internal/config"
)

// Account pairs a signing key with its strategy parameters. The private
// key is exclusively owned here and must never be logged in full.
type Account struct {
	ID       string
	Label    string
	Enabled  bool
	Key      solana.PrivateKey
	Strategy config.Strategy
}

// PublicKey returns the wallet address.
func (a *Account) PublicKey() solana.PublicKey { return a.Key.PublicKey() }

// Registry is the static account map consulted by the router.
type Registry struct {
	accounts map[string]*Account
	order    []string
}

// BuildRegistry parses every configured account. Entries with a missing or
// unparsable key are skipped with a log rather than failing startup, so a
// single bad credential does not take down trading for the rest.
func BuildRegistry(cfgs []config.Account, log zerolog.Logger) (*Registry, error) {
	r := &Registry{accounts: make(map[string]*Account)}

	for _, c := range cfgs {
		if c.ID == "" {
			log.Warn().Msg("account config missing id, skipping")
			continue
		}
		if c.PrivateKey == "" {
			log.Warn().Str("account", c.ID).Msg("account missing private key, skipping")
			continue
		}
		key, err := solana.PrivateKeyFromBase58(c.PrivateKey)
		if err != nil {
			log.Error().Str("account", c.ID).Err(err).Msg("invalid private key, skipping")
			continue
		}
		label := c.Label
		if label == "" {
			label = c.ID
		}
		acct := &Account{
			ID:       c.ID,
			Label:    label,
			Enabled:  c.Enabled,
			Key:      key,
			Strategy: c.Strategy,
		}
		r.accounts[acct.ID] = acct
		r.order = append(r.order, acct.ID)

		log.Info().
			Str("account", acct.ID).
			Str("label", acct.Label).
			Bool("enabled", acct.Enabled).
			Str("address", shortAddr(acct.PublicKey().String())).
			Str("pair", acct.Strategy.TokenPair).
			Msg("account initialized")
	}

	if len(r.accounts) == 0 {
		return nil, fmt.Errorf("no usable accounts configured")
	}
	return r, nil
}

// Get returns the account by id, or nil.
func (r *Registry) Get(id string) *Account { return r.accounts[id] }

// All returns accounts in configuration order.
func (r *Registry) All() []*Account {
	out := make([]*Account, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.accounts[id])
	}
	return out
}

func shortAddr(addr string) string {
	if len(addr) > 16 {
		return addr[:16] + "..."
	}
	return addr
}
