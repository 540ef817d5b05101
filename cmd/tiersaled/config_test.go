package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/xraph/tiersale"
)

const testConfig = `
server:
  port: 9090
log:
  level: debug
store:
  driver: leveldb
  path: /tmp/sale
settlement:
  treasury: treasury
  reserve: reserve
  payment_asset: USDC
  payment_decimals: 6
  sale_asset: SALE
sale:
  owner: issuer
  tiers:
    - supply: "10"
      price: "0.5"
      max_per_wallet: "100"
    - supply: "5.5"
      price: "1"
      max_per_wallet: "250.25"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, testConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9090 || cfg.Store.Driver != "leveldb" || cfg.logLevel() != slog.LevelDebug {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Transfer.Driver != "nop" || cfg.Server.BasePath != "/" {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	tiers, err := cfg.tiers()
	if err != nil {
		t.Fatal(err)
	}
	if tiers[0].Supply != 10*tiersale.Scale || tiers[0].Price != 500_000 || tiers[0].MaxPerWallet != 100_000_000 {
		t.Errorf("tier 0 = %+v", tiers[0])
	}
	if tiers[1].Supply != 5*tiersale.Scale+tiersale.Scale/2 || tiers[1].MaxPerWallet != 250_250_000 {
		t.Errorf("tier 1 = %+v", tiers[1])
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TIERSALE_SERVER_PORT", "7070")
	t.Setenv("TIERSALE_STORE_DRIVER", "memory")

	cfg, err := loadConfig(writeConfig(t, testConfig))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7070 || cfg.Store.Driver != "memory" {
		t.Errorf("env overrides ignored: %+v", cfg)
	}
}

func TestTiersRejectsBadAmounts(t *testing.T) {
	cfg := &Config{Settlement: SettlementConfig{PaymentDecimals: 6}}
	if _, err := cfg.tiers(); err == nil {
		t.Error("expected error for empty schedule")
	}

	cfg.Sale.Tiers = []TierConfig{{Supply: "1", Price: "0.0000001", MaxPerWallet: "1"}}
	if _, err := cfg.tiers(); err == nil {
		t.Error("expected error for price finer than payment decimals")
	}
}

func TestNewTransfererCreditsBook(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, testConfig))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Transfer.Driver = "book"
	cfg.Transfer.Balances = map[string]string{"alice": "25"}

	if _, err := newTransferer(cfg); err != nil {
		t.Fatal(err)
	}

	cfg.Transfer.Driver = "carrier-pigeon"
	if _, err := newTransferer(cfg); err == nil {
		t.Error("expected unknown driver error")
	}
}
