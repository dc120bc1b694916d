package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"portald/internal/domain"
	"portald/internal/infra/bridge"
	"portald/internal/infra/catalog"
	"portald/internal/infra/dispatch"
	"portald/internal/infra/payment"
	"portald/internal/infra/registry"
	"portald/internal/infra/schemafetch"
	"portald/internal/infra/store"
	"portald/internal/infra/telemetry"
)

// Application assembles the daemon from its resolved configuration. The
// payment agent must be reachable at startup; everything else degrades
// softly.
type Application struct {
	cfg      catalog.Config
	logger   *zap.Logger
	loader   *catalog.Loader
	registry *registry.Registry
	bridge   *bridge.Bridge
	store    *store.Store
	promReg  *prometheus.Registry
}

func New(ctx context.Context, cfg catalog.Config, logger *zap.Logger) (*Application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	paymentClient, err := payment.Open(ctx, payment.Config{
		AgentURL: cfg.PaymentAgentURL,
		Wallet: domain.WalletConfig{
			Path:    cfg.Wallet.Path,
			Network: cfg.Wallet.Network,
			RPCURL:  cfg.Wallet.RPCURL,
		},
		Timeout: cfg.PaymentTimeout(),
	}, logger)
	if err != nil {
		return nil, err
	}

	var cache *store.Store
	if cfg.StorePath != "" {
		cache, err = store.Open(expandHome(cfg.StorePath), logger)
		if err != nil {
			// Cache is an availability optimization, not a dependency.
			logger.Warn("portal cache unavailable", zap.String("path", cfg.StorePath), zap.Error(err))
			cache = nil
		}
	}

	var metrics domain.Metrics
	var promReg *prometheus.Registry
	if cfg.Observability.Enabled {
		promReg = prometheus.NewRegistry()
		metrics = telemetry.NewPrometheusMetrics(promReg)
	} else {
		metrics = telemetry.NewNoopMetrics()
	}

	fetcher := schemafetch.NewFetcher(cfg.SchemaFetchTimeout(), logger)
	reg := registry.New(registry.Config{
		Whitelist:   cfg.Portals,
		Concurrency: cfg.RefreshConcurrency,
	}, paymentClient, fetcher, cacheOrNil(cache), metrics, logger)

	dispatcher := dispatch.New(paymentClient, logger)

	b := bridge.New(bridge.Config{
		Version: Version,
		Resync:  cfg.Resync(),
	}, reg, dispatcher, metrics, logger)

	return &Application{
		cfg:      cfg,
		logger:   logger.Named("app"),
		loader:   catalog.NewLoader(logger),
		registry: reg,
		bridge:   b,
		store:    cache,
		promReg:  promReg,
	}, nil
}

// Run serves the bridge on the configured transport until ctx is canceled.
// configPath, when set, is watched so whitelist edits apply without restart.
func (a *Application) Run(ctx context.Context, configPath string) error {
	defer a.close()

	if a.cfg.Observability.Enabled {
		go func() {
			err := telemetry.StartHTTPServer(ctx, telemetry.HTTPServerOptions{
				Addr:     a.cfg.Observability.ListenAddress,
				Registry: a.promReg,
			}, a.logger)
			if err != nil {
				a.logger.Warn("observability server failed", zap.Error(err))
			}
		}()
	}

	if configPath != "" {
		err := a.loader.Watch(ctx, configPath, func(next catalog.Config) {
			a.registry.SetWhitelist(next.Portals)
			if _, err := a.registry.Refresh(ctx); err != nil {
				a.logger.Warn("portal sync after config reload failed", zap.Error(err))
			}
		})
		if err != nil {
			a.logger.Warn("config watch unavailable", zap.Error(err))
		}
	}

	if a.cfg.Transport == "http" {
		return a.bridge.RunStreamableHTTP(ctx, a.cfg.HTTP.ListenAddress, a.cfg.HTTP.Path)
	}
	return a.bridge.Run(ctx)
}

func (a *Application) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("portal cache close failed", zap.Error(err))
		}
	}
}

// expandHome resolves a leading "~/" against the user's home directory. The
// wallet path is left alone; the payment agent resolves it on its side.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// cacheOrNil avoids handing the registry a typed nil behind its interface.
func cacheOrNil(s *store.Store) registry.PortalCache {
	if s == nil {
		return nil
	}
	return s
}
