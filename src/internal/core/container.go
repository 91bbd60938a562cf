package core

import (
	"fmt"
	"sync/atomic"

	"github.com/wlt-go/wlt/src/internal/config"
	"github.com/wlt-go/wlt/src/internal/log"
	"github.com/wlt-go/wlt/src/internal/metrics"
	"github.com/wlt-go/wlt/src/internal/networking"
	"github.com/wlt-go/wlt/src/internal/outlet"
	"github.com/wlt-go/wlt/src/internal/service"
)

// AppDependencies is a dependency injection container that holds all application dependencies.
//
// The mark table is created once. The catalog and labels are swapped as a
// pair by Reload; front-ends read them on every request.
//
// Usage:
//
//	deps, err := core.NewAppDependencies(core.AppConfig{Config: cfg})
//	res, err := deps.Service().Apply(ctx, addr, 0, 0x1, 4)
type AppDependencies struct {
	config   atomic.Pointer[config.Config]
	labels   atomic.Pointer[outlet.Labels]
	table    networking.MarkTable
	service  *service.OutletService
	resolver *networking.Resolver
	metrics  *metrics.Metrics
}

// AppConfig holds configuration for creating application dependencies.
type AppConfig struct {
	// Config is the loaded and validated configuration.
	Config *config.Config

	// DryRun keeps all entries in process memory instead of the kernel map.
	DryRun bool

	// Table overrides the mark table built from Config.Nftables. Used in tests.
	Table networking.MarkTable

	// ResolvConf is the resolv.conf used for hostname lookups (default: /etc/resolv.conf).
	ResolvConf string
}

// NewAppDependencies creates a new dependency container with production implementations.
func NewAppDependencies(cfg AppConfig) (*AppDependencies, error) {
	catalog, err := outlet.FromConfig(cfg.Config)
	if err != nil {
		return nil, err
	}
	labels, err := outlet.NewLabels(cfg.Config.Labels)
	if err != nil {
		return nil, fmt.Errorf("invalid labels: %w", err)
	}

	table := cfg.Table
	if table == nil {
		nft := cfg.Config.Nftables
		if cfg.DryRun {
			nft.Backend = networking.BackendMemory
		}
		if table, err = networking.NewMarkTable(nft); err != nil {
			return nil, err
		}
	}

	m := metrics.NewMetrics()

	d := &AppDependencies{
		table:    table,
		service:  service.NewOutletService(catalog, table, service.WithMetrics(m)),
		resolver: networking.NewResolver(cfg.ResolvConf),
		metrics:  m,
	}
	d.config.Store(cfg.Config)
	d.labels.Store(labels)

	return d, nil
}

// Config returns the configuration currently in effect.
func (d *AppDependencies) Config() *config.Config {
	return d.config.Load()
}

// Labels returns the labels currently in effect.
func (d *AppDependencies) Labels() *outlet.Labels {
	return d.labels.Load()
}

// Catalog returns the catalog currently in effect.
func (d *AppDependencies) Catalog() *outlet.Catalog {
	return d.service.Catalog()
}

// Table returns the mark table.
func (d *AppDependencies) Table() networking.MarkTable {
	return d.table
}

// Service returns the outlet service.
func (d *AppDependencies) Service() *service.OutletService {
	return d.service
}

// Resolver returns the hostname resolver.
func (d *AppDependencies) Resolver() *networking.Resolver {
	return d.resolver
}

// Metrics returns the metrics registry.
func (d *AppDependencies) Metrics() *metrics.Metrics {
	return d.metrics
}

// Reload swaps in the outlet groups, durations and labels of cfg. cfg must
// already be validated. Nothing changes when the catalog cannot be built.
//
// Listener and nftables settings only take effect on restart.
func (d *AppDependencies) Reload(cfg *config.Config) (err error) {
	defer func() { d.metrics.ObserveReload(err) }()

	catalog, err := outlet.FromConfig(cfg)
	if err != nil {
		return err
	}
	labels, err := outlet.NewLabels(cfg.Labels)
	if err != nil {
		return fmt.Errorf("invalid labels: %w", err)
	}

	old := d.config.Load()
	if old.Nftables != cfg.Nftables {
		log.Warnf("nftables settings changed, restart to apply them")
	}
	if old.Web != cfg.Web || old.SSH != cfg.SSH || old.Metrics != cfg.Metrics {
		log.Warnf("Listener settings changed, restart to apply them")
	}

	d.service.SetCatalog(catalog)
	d.labels.Store(labels)
	d.config.Store(cfg)
	log.SetVerbose(cfg.General.Verbose)

	log.Infof("Loaded %s", catalog)
	return nil
}
