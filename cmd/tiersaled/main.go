// Command tiersaled serves a tiersale engine over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xraph/tiersale"
	"github.com/xraph/tiersale/api"
	"github.com/xraph/tiersale/sale"
	"github.com/xraph/tiersale/store"
	"github.com/xraph/tiersale/store/leveldb"
	"github.com/xraph/tiersale/store/memory"
	"github.com/xraph/tiersale/transfer"
	transfermem "github.com/xraph/tiersale/transfer/memory"
)

func main() {
	configPath := flag.String("config", os.Getenv("TIERSALE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("tiersaled stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *Config, logger *slog.Logger) error {
	st, err := openStore(cfg.Store)
	if err != nil {
		return err
	}

	tr, err := newTransferer(cfg)
	if err != nil {
		return err
	}

	eng := tiersale.New(st,
		tiersale.WithLogger(logger),
		tiersale.WithTransferer(tr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := eng.Stop(); err != nil {
			logger.Error("engine stop", "error", err)
		}
	}()

	if err := bootstrapSale(ctx, eng, cfg, logger); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.New(eng, api.WithLogger(logger)).Handler(cfg.Server.BasePath),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(cfg StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.New(), nil
	case "leveldb":
		return leveldb.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newTransferer(cfg *Config) (transfer.Transferer, error) {
	switch cfg.Transfer.Driver {
	case "", "nop":
		return transfer.Nop, nil
	case "book":
		book := transfermem.New()
		for owner, amount := range cfg.Transfer.Balances {
			units, err := tiersale.ParseUnits(amount, cfg.Settlement.PaymentDecimals)
			if err != nil {
				return nil, fmt.Errorf("balance of %s: %w", owner, err)
			}
			if err := book.Credit(owner, cfg.Settlement.PaymentAsset, units); err != nil {
				return nil, err
			}
		}
		if cfg.Settlement.Reserve != "" && len(cfg.Sale.Tiers) > 0 {
			tiers, err := cfg.tiers()
			if err != nil {
				return nil, err
			}
			supply, err := (&sale.Sale{Tiers: tiers}).TotalSupply()
			if err != nil {
				return nil, err
			}
			if err := book.Credit(cfg.Settlement.Reserve, cfg.Settlement.SaleAsset, supply); err != nil {
				return nil, err
			}
		}
		return book, nil
	default:
		return nil, fmt.Errorf("unknown transfer driver %q", cfg.Transfer.Driver)
	}
}

// bootstrapSale creates the configured sale unless its owner already has one.
func bootstrapSale(ctx context.Context, eng *tiersale.Engine, cfg *Config, logger *slog.Logger) error {
	if cfg.Sale.Owner == "" || len(cfg.Sale.Tiers) == 0 {
		return nil
	}

	existing, err := eng.ListSales(ctx, sale.ListOpts{Owner: cfg.Sale.Owner, Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Info("using existing sale", "sale_id", existing[0].ID.String())
		return nil
	}

	tiers, err := cfg.tiers()
	if err != nil {
		return err
	}
	_, err = eng.InitializeSale(ctx, cfg.Sale.Owner, tiers, cfg.settlement())
	return err
}
