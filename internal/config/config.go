// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, listen addresses, and logging.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogDir      string `yaml:"log_dir"`
}

// Solana describes chain RPC connectivity.
type Solana struct {
	RpcURL     string `yaml:"rpc_url"`
	Commitment string `yaml:"commitment"` // processed|confirmed|finalized
}

// Jupiter describes the swap aggregator endpoints and transaction tuning.
type Jupiter struct {
	APIURL           string `yaml:"api_url"`
	PriceAPIURL      string `yaml:"price_api_url"`
	ComputeUnitPrice int64  `yaml:"compute_unit_price"` // priority fee, micro-lamports
	ConfirmRetries   int    `yaml:"confirm_retries"`
}

// Webhook configures inbound alert validation.
type Webhook struct {
	SourceTag string `yaml:"source_tag"`
}

// Store configures persistence.
type Store struct {
	Path string `yaml:"path"`
}

// Strategy groups the per-account trading knobs.
type Strategy struct {
	TokenPair           string  `yaml:"token_pair"`
	BaseToken           string  `yaml:"base_token"`
	QuoteToken          string  `yaml:"quote_token"`
	DefaultSwapSize     float64 `yaml:"default_swap_size"`
	MaxSlippageBps      int     `yaml:"max_slippage_bps"`
	MinTimeBetweenSwaps int     `yaml:"min_time_between_swaps"` // seconds, <=0 disables the cooldown
	MinQuoteThreshold   float64 `yaml:"min_quote_threshold"`
	MinBaseReserve      float64 `yaml:"min_base_reserve"`
}

// Account declares one wallet the bot trades with.
type Account struct {
	ID         string   `yaml:"id"`
	Label      string   `yaml:"label"`
	Enabled    bool     `yaml:"enabled"`
	PrivateKey string   `yaml:"private_key"`
	Strategy   Strategy `yaml:"strategy"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App               `yaml:"app"`
	Solana   Solana            `yaml:"solana"`
	Jupiter  Jupiter           `yaml:"jupiter"`
	Webhook  Webhook           `yaml:"webhook"`
	Store    Store             `yaml:"store"`
	Tokens   map[string]string `yaml:"tokens"` // symbol -> mint address
	Accounts []Account         `yaml:"accounts"`
}

// Load reads a YAML file, expands ${VAR} references from the environment
// (a .env file is honored if present), applies env overrides, and hydrates
// a Config struct.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.Expand(string(data), func(name string) string {
		return os.Getenv(name)
	})

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyDefaults()
	config.applyEnvOverrides()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.ListenAddr == "" {
		c.App.ListenAddr = ":8080"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Solana.RpcURL == "" {
		c.Solana.RpcURL = "https://api.mainnet-beta.solana.com"
	}
	if c.Solana.Commitment == "" {
		c.Solana.Commitment = "confirmed"
	}
	if c.Jupiter.APIURL == "" {
		c.Jupiter.APIURL = "https://quote-api.jup.ag/v6"
	}
	if c.Jupiter.PriceAPIURL == "" {
		c.Jupiter.PriceAPIURL = "https://price.jup.ag/v4"
	}
	if c.Jupiter.ConfirmRetries <= 0 {
		c.Jupiter.ConfirmRetries = 30
	}
	if c.Store.Path == "" {
		c.Store.Path = "./data/skr_swap.db"
	}
	if c.Webhook.SourceTag == "" {
		c.Webhook.SourceTag = "SKRBOT"
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.App.LogLevel = v
	}
	if v := os.Getenv("SOLANA_RPC_URL"); v != "" {
		c.Solana.RpcURL = v
	}
	if v := os.Getenv("JUPITER_API_URL"); v != "" {
		c.Jupiter.APIURL = v
	}
}
