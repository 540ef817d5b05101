package extension

import (
	"time"

	"github.com/xraph/tiersale"
	"github.com/xraph/tiersale/plugin"
	"github.com/xraph/tiersale/store"
	"github.com/xraph/tiersale/transfer"
)

// Option configures the tiersale Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithTransferer sets the collaborator that moves payment and allocation.
func WithTransferer(t transfer.Transferer) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, tiersale.WithTransferer(t))
	}
}

// WithEngineOption passes a tiersale.Option through to the underlying engine.
func WithEngineOption(opt tiersale.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a tiersale plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, tiersale.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix of the HTTP handler.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithTransferTimeout bounds each transfer call.
func WithTransferTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.TransferTimeout = d }
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}
