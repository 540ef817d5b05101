package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onSaleInitialized   []OnSaleInitialized
	onTierAdvanced      []OnTierAdvanced
	onSaleExhausted     []OnSaleExhausted
	onPurchaseCommitted []OnPurchaseCommitted
	onPurchaseRejected  []OnPurchaseRejected
	onSettlementFailed  []OnSettlementFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnSaleInitialized); ok {
		r.onSaleInitialized = append(r.onSaleInitialized, v)
	}
	if v, ok := p.(OnTierAdvanced); ok {
		r.onTierAdvanced = append(r.onTierAdvanced, v)
	}
	if v, ok := p.(OnSaleExhausted); ok {
		r.onSaleExhausted = append(r.onSaleExhausted, v)
	}
	if v, ok := p.(OnPurchaseCommitted); ok {
		r.onPurchaseCommitted = append(r.onPurchaseCommitted, v)
	}
	if v, ok := p.(OnPurchaseRejected); ok {
		r.onPurchaseRejected = append(r.onPurchaseRejected, v)
	}
	if v, ok := p.(OnSettlementFailed); ok {
		r.onSettlementFailed = append(r.onSettlementFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	typ  reflect.Type
	name string
}{
	{reflect.TypeFor[OnInit](), "OnInit"},
	{reflect.TypeFor[OnShutdown](), "OnShutdown"},
	{reflect.TypeFor[OnSaleInitialized](), "OnSaleInitialized"},
	{reflect.TypeFor[OnTierAdvanced](), "OnTierAdvanced"},
	{reflect.TypeFor[OnSaleExhausted](), "OnSaleExhausted"},
	{reflect.TypeFor[OnPurchaseCommitted](), "OnPurchaseCommitted"},
	{reflect.TypeFor[OnPurchaseRejected](), "OnPurchaseRejected"},
	{reflect.TypeFor[OnSettlementFailed](), "OnSettlementFailed"},
}

// implementedInterfaces returns the hook names a plugin implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every plugin in hooks and logs failures. Hook errors
// never reach the caller.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks []T, call func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	emit(ctx, r, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	emit(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitSaleInitialized emits a sale initialized event.
func (r *Registry) EmitSaleInitialized(ctx context.Context, s *sale.Sale) {
	r.mu.RLock()
	plugins := r.onSaleInitialized
	r.mu.RUnlock()

	emit(ctx, r, "OnSaleInitialized", plugins, func(p OnSaleInitialized) error {
		return p.OnSaleInitialized(ctx, s)
	})
}

// EmitTierAdvanced emits a tier advanced event.
func (r *Registry) EmitTierAdvanced(ctx context.Context, s *sale.Sale, from int) {
	r.mu.RLock()
	plugins := r.onTierAdvanced
	r.mu.RUnlock()

	emit(ctx, r, "OnTierAdvanced", plugins, func(p OnTierAdvanced) error {
		return p.OnTierAdvanced(ctx, s, from)
	})
}

// EmitSaleExhausted emits a sale exhausted event.
func (r *Registry) EmitSaleExhausted(ctx context.Context, s *sale.Sale) {
	r.mu.RLock()
	plugins := r.onSaleExhausted
	r.mu.RUnlock()

	emit(ctx, r, "OnSaleExhausted", plugins, func(p OnSaleExhausted) error {
		return p.OnSaleExhausted(ctx, s)
	})
}

// EmitPurchaseCommitted emits a purchase committed event.
func (r *Registry) EmitPurchaseCommitted(ctx context.Context, pur *purchase.Purchase) {
	r.mu.RLock()
	plugins := r.onPurchaseCommitted
	r.mu.RUnlock()

	emit(ctx, r, "OnPurchaseCommitted", plugins, func(p OnPurchaseCommitted) error {
		return p.OnPurchaseCommitted(ctx, pur)
	})
}

// EmitPurchaseRejected emits a purchase rejected event.
func (r *Registry) EmitPurchaseRejected(ctx context.Context, saleID id.SaleID, participant string, amount uint64, cause error) {
	r.mu.RLock()
	plugins := r.onPurchaseRejected
	r.mu.RUnlock()

	emit(ctx, r, "OnPurchaseRejected", plugins, func(p OnPurchaseRejected) error {
		return p.OnPurchaseRejected(ctx, saleID, participant, amount, cause)
	})
}

// EmitSettlementFailed emits a settlement failed event.
func (r *Registry) EmitSettlementFailed(ctx context.Context, pur *purchase.Purchase, cause error) {
	r.mu.RLock()
	plugins := r.onSettlementFailed
	r.mu.RUnlock()

	emit(ctx, r, "OnSettlementFailed", plugins, func(p OnSettlementFailed) error {
		return p.OnSettlementFailed(ctx, pur, cause)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the purchase pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
