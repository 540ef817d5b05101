package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/xraph/tiersale"
	"github.com/xraph/tiersale/sale"
)

// Config is the daemon configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Transfer   TransferConfig   `mapstructure:"transfer"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Sale       SaleConfig       `mapstructure:"sale"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	BasePath string `mapstructure:"base_path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	// Driver is "memory" or "leveldb".
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type TransferConfig struct {
	// Driver is "nop" or "book". The book driver keeps balances in memory
	// and starts from Balances.
	Driver   string            `mapstructure:"driver"`
	Balances map[string]string `mapstructure:"balances"`
}

type SettlementConfig struct {
	Treasury        string `mapstructure:"treasury"`
	Reserve         string `mapstructure:"reserve"`
	PaymentAsset    string `mapstructure:"payment_asset"`
	PaymentDecimals int32  `mapstructure:"payment_decimals"`
	SaleAsset       string `mapstructure:"sale_asset"`
}

// SaleConfig describes a sale to create at startup when none exists for
// Owner. Amounts are human-readable decimals.
type SaleConfig struct {
	Owner string       `mapstructure:"owner"`
	Tiers []TierConfig `mapstructure:"tiers"`
}

type TierConfig struct {
	// Supply is in whole tokens.
	Supply string `mapstructure:"supply"`
	// Price is the payment for one whole token.
	Price string `mapstructure:"price"`
	// MaxPerWallet is the payment cap per participant.
	MaxPerWallet string `mapstructure:"max_per_wallet"`
}

// loadConfig reads path (if non-empty) and TIERSALE_* environment overrides.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_path", "/")
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "data/tiersale")
	v.SetDefault("transfer.driver", "nop")
	v.SetDefault("settlement.payment_decimals", 6)

	v.SetEnvPrefix("TIERSALE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// settlement returns the sale settlement accounts.
func (c *Config) settlement() sale.Settlement {
	return sale.Settlement{
		Treasury:     c.Settlement.Treasury,
		Reserve:      c.Settlement.Reserve,
		PaymentAsset: c.Settlement.PaymentAsset,
		SaleAsset:    c.Settlement.SaleAsset,
	}
}

// tiers converts the configured schedule into ledger units.
func (c *Config) tiers() ([]sale.Tier, error) {
	if len(c.Sale.Tiers) == 0 {
		return nil, errors.New("no tiers configured")
	}

	tiers := make([]sale.Tier, len(c.Sale.Tiers))
	for i, t := range c.Sale.Tiers {
		var err error
		if tiers[i].Supply, err = tiersale.ParseUnits(t.Supply, tiersale.Decimals); err != nil {
			return nil, fmt.Errorf("tier %d supply: %w", i, err)
		}
		if tiers[i].Price, err = tiersale.ParseUnits(t.Price, c.Settlement.PaymentDecimals); err != nil {
			return nil, fmt.Errorf("tier %d price: %w", i, err)
		}
		if tiers[i].MaxPerWallet, err = tiersale.ParseUnits(t.MaxPerWallet, c.Settlement.PaymentDecimals); err != nil {
			return nil, fmt.Errorf("tier %d max_per_wallet: %w", i, err)
		}
	}
	return tiers, nil
}

// logLevel parses Log.Level, defaulting to info.
func (c *Config) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
