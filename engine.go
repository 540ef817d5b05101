package tiersale

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/plugin"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
	"github.com/xraph/tiersale/store"
	"github.com/xraph/tiersale/transfer"
	"github.com/xraph/tiersale/types"
)

// Engine hosts tiered sales: it loads ledgers from the store, runs purchases
// against them one at a time per sale, moves funds through a Transferer and
// commits the result.
type Engine struct {
	store      store.Store
	plugins    *plugin.Registry
	logger     *slog.Logger
	transferer transfer.Transferer

	// Configuration
	transferTimeout time.Duration

	// One mutex per sale ID with purchases in flight.
	locksMu sync.Mutex
	locks   map[string]*saleLock
}

// saleLock is released from Engine.locks once nobody holds or awaits it.
type saleLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		transferer:      transfer.Nop,
		transferTimeout: 30 * time.Second,
		locks:           make(map[string]*saleLock),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithTransferer sets the collaborator that moves payment and allocation.
func WithTransferer(t transfer.Transferer) Option {
	return func(e *Engine) {
		e.transferer = t
	}
}

// WithTransferTimeout bounds each transfer call. Zero disables the bound.
func WithTransferTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.transferTimeout = d
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("tiersale engine started",
		"plugins", e.plugins.Count(),
		"transfer_timeout", e.transferTimeout,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// ──────────────────────────────────────────────────
// Sale management
// ──────────────────────────────────────────────────

// SaleOption configures a sale at initialization.
type SaleOption func(*sale.Sale)

// WithSaleMetadata attaches free-form labels to a sale.
func WithSaleMetadata(md map[string]string) SaleOption {
	return func(s *sale.Sale) {
		s.Metadata = md
	}
}

// InitializeSale validates a tier schedule and persists a new sale
// positioned on its first tier. Nothing is stored when the schedule is
// invalid.
func (e *Engine) InitializeSale(ctx context.Context, owner string, tiers []sale.Tier, settlement sale.Settlement, opts ...SaleOption) (*sale.Sale, error) {
	s, err := sale.Initialize(owner, tiers)
	if err != nil {
		e.logger.Info("sale initialization rejected", "owner", owner, "error", err)
		return nil, err
	}

	s.ID = id.NewSaleID()
	s.Entity = types.NewEntity()
	s.Settlement = settlement
	for _, opt := range opts {
		opt(s)
	}

	if err := e.store.CreateSale(ctx, s); err != nil {
		return nil, err
	}

	e.logger.Info("sale initialized",
		"sale_id", s.ID.String(),
		"owner", owner,
		"tiers", len(s.Tiers),
	)
	e.plugins.EmitSaleInitialized(ctx, s)
	return s, nil
}

// GetSale retrieves a sale by ID.
func (e *Engine) GetSale(ctx context.Context, saleID id.SaleID) (*sale.Sale, error) {
	return e.store.GetSale(ctx, saleID)
}

// ListSales lists sales.
func (e *Engine) ListSales(ctx context.Context, opts sale.ListOpts) ([]*sale.Sale, error) {
	return e.store.ListSales(ctx, opts)
}

// Progress returns the read model of a sale.
func (e *Engine) Progress(ctx context.Context, saleID id.SaleID) (*sale.Progress, error) {
	s, err := e.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	p := s.Progress()
	return &p, nil
}

// ──────────────────────────────────────────────────
// Participants and receipts
// ──────────────────────────────────────────────────

// GetParticipant returns a participant's ledger. A participant who has never
// bought gets a zeroed ledger sized to the sale's schedule.
func (e *Engine) GetParticipant(ctx context.Context, saleID id.SaleID, address string) (*participant.Ledger, error) {
	s, err := e.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	l, _, err := e.loadParticipant(ctx, s, address)
	return l, err
}

// ListParticipants lists the participants of a sale.
func (e *Engine) ListParticipants(ctx context.Context, saleID id.SaleID, opts participant.ListOpts) ([]*participant.Ledger, error) {
	return e.store.ListParticipants(ctx, saleID, opts)
}

// GetPurchase retrieves a purchase receipt by ID.
func (e *Engine) GetPurchase(ctx context.Context, purchaseID id.PurchaseID) (*purchase.Purchase, error) {
	return e.store.GetPurchase(ctx, purchaseID)
}

// ListPurchases lists the receipts of a sale.
func (e *Engine) ListPurchases(ctx context.Context, saleID id.SaleID, opts purchase.ListOpts) ([]*purchase.Purchase, error) {
	return e.store.ListPurchases(ctx, saleID, opts)
}

// loadParticipant fetches a ledger or builds an empty one. isNew reports
// whether the ledger has never been stored.
func (e *Engine) loadParticipant(ctx context.Context, s *sale.Sale, address string) (l *participant.Ledger, isNew bool, err error) {
	l, err = e.store.GetParticipant(ctx, s.ID, address)
	switch {
	case err == nil:
		return l, false, nil
	case errors.Is(err, ErrParticipantNotFound):
		return participant.New(s.ID, address, len(s.Tiers)), true, nil
	default:
		return nil, false, err
	}
}

// lock serializes purchases against one sale.
func (e *Engine) lock(saleID id.SaleID) func() {
	key := saleID.String()

	e.locksMu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &saleLock{}
		e.locks[key] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, key)
		}
		e.locksMu.Unlock()
	}
}
