// Package config loads the distribution tooling configuration from
// environment variables. Callers inject the resulting Config explicitly;
// there is no process-wide cached instance.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// Nanoerg defaults, 0.001 ERG each.
const (
	DefaultMinBoxValue  = 1_000_000
	DefaultTxFee        = 1_000_000
	DefaultWalletBuffer = 1_000_000
)

// Default cron expressions: demurrage Tuesdays 13:00, bonus every minute
// (the bonus schedule is normally overridden per deployment).
const (
	DefaultDemurrageCron = "0 13 * * 2"
	DefaultBonusCron     = "* * * * *"
)

// NodeConfig points at the Ergo node whose wallet signs and submits.
type NodeConfig struct {
	URL         string
	APIKey      string
	NetworkType string
}

// WalletConfig identifies the distributing wallet. The mnemonic is only
// needed for offline signing setups; the node wallet path ignores it.
type WalletConfig struct {
	Address  string
	Mnemonic string
}

// APIConfig holds the external HTTP API endpoints.
type APIConfig struct {
	ExplorerBase     string
	SigscoreURL      string
	ParticipationURL string
	MinersBonusURL   string
	MiningWaveAPIKey string
}

// TelegramConfig holds the notification bot settings. The admin pair is a
// separate bot/chat for operator summaries.
type TelegramConfig struct {
	BotToken    string
	ChatID      string
	AdminToken  string
	AdminChatID string
}

// DistributionConfig holds the fee/carve-out knobs shared by the services.
type DistributionConfig struct {
	MinBoxValue    int64
	TxFee          int64
	WalletBuffer   int64
	PoolFeePercent decimal.Decimal
	PoolFeeAddress string
	OutputDir      string
}

type Config struct {
	Node         NodeConfig
	Wallet       WalletConfig
	APIs         APIConfig
	Telegram     TelegramConfig
	Distribution DistributionConfig
	SentryDSN    string
}

// LoadFromEnv reads the configuration from environment variables, applying
// defaults for everything optional, then validates it.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Node: NodeConfig{
			URL:         envOr("NODE_URL", "http://localhost:9053"),
			APIKey:      os.Getenv("NODE_API_KEY"),
			NetworkType: envOr("NETWORK_TYPE", "mainnet"),
		},
		Wallet: WalletConfig{
			Address:  os.Getenv("WALLET_ADDRESS"),
			Mnemonic: os.Getenv("WALLET_MNEMONIC"),
		},
		APIs: APIConfig{
			ExplorerBase:     envOr("EXPLORER_URL", "https://api.ergoplatform.com/api/v1"),
			SigscoreURL:      envOr("SIGSCORE_API_URL", "https://api.ergominers.com/sigscore/miners?pageSize=5000"),
			ParticipationURL: envOr("MINERS_PARTICIPATION_API_URL", "https://api.ergominers.com/sigscore/miners/average-participation"),
			MinersBonusURL:   envOr("MINERS_BONUS_API_URL", "https://api.ergominers.com/sigscore/miners/bonus"),
			MiningWaveAPIKey: os.Getenv("MINING_WAVE_API_KEY"),
		},
		Telegram: TelegramConfig{
			BotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:      os.Getenv("TELEGRAM_ADMIN_CHAT_ID"),
			AdminToken:  os.Getenv("ADMIN_TELEGRAM_BOT_TOKEN"),
			AdminChatID: os.Getenv("ADMIN_TELEGRAM_CHAT_ID"),
		},
		Distribution: DistributionConfig{
			PoolFeeAddress: envOr("POOL_FEE_ADDRESS", "9iAFh6SzzSbowjsJPaRQwJfx4Ts4EzXt78UVGLgGaYTdab8SiEt"),
			OutputDir:      envOr("OUTPUT_DIR", "."),
		},
		SentryDSN: os.Getenv("SENTRY_DSN"),
	}

	var err error
	if cfg.Distribution.MinBoxValue, err = envInt64("MIN_BOX_VALUE", DefaultMinBoxValue); err != nil {
		return nil, err
	}
	if cfg.Distribution.TxFee, err = envInt64("TX_FEE", DefaultTxFee); err != nil {
		return nil, err
	}
	if cfg.Distribution.WalletBuffer, err = envInt64("WALLET_BUFFER", DefaultWalletBuffer); err != nil {
		return nil, err
	}

	feeStr := envOr("POOL_FEE_PERCENTAGE", "0.01")
	cfg.Distribution.PoolFeePercent, err = decimal.NewFromString(feeStr)
	if err != nil {
		return nil, fmt.Errorf("POOL_FEE_PERCENTAGE is not a number: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration. Wallet address requirements are
// service-specific and checked by the services themselves.
func (cfg *Config) Validate() error {
	if cfg.Node.URL == "" {
		return fmt.Errorf("NODE_URL is required")
	}
	if cfg.APIs.ExplorerBase == "" {
		return fmt.Errorf("EXPLORER_URL is required")
	}
	if cfg.Node.NetworkType != "mainnet" && cfg.Node.NetworkType != "testnet" {
		return fmt.Errorf("NETWORK_TYPE must be 'mainnet' or 'testnet', got: %s", cfg.Node.NetworkType)
	}
	pct := cfg.Distribution.PoolFeePercent
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("POOL_FEE_PERCENTAGE must be between 0 and 1, got: %s", pct)
	}
	if cfg.Distribution.MinBoxValue <= 0 || cfg.Distribution.TxFee <= 0 {
		return fmt.Errorf("MIN_BOX_VALUE and TX_FEE must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s is not an integer: %w", key, err)
	}
	return n, nil
}
