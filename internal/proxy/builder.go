package proxy

import (
	"context"
	"fmt"
	"net/http"

	"candlegate/internal/cache"
	"candlegate/internal/config"
	"candlegate/internal/logging"
	"candlegate/internal/metrics"
	"candlegate/internal/middleware"
	"candlegate/internal/observability"
	"candlegate/internal/upstream"
)

const (
	CandlesRoute = "/api/candles"
	HealthRoute  = "/healthz"
	MetricsRoute = "/metrics"
)

type Builder struct {
	cfg    *config.Config
	logger logging.Logger

	// Fetcher replaces the provider client when set.
	Fetcher Fetcher
}

func NewBuilder(cfg *config.Config, logger logging.Logger) *Builder {
	return &Builder{
		cfg:    cfg,
		logger: logger,
	}
}

// Build wires the cache, provider client and HTTP stack into a server.
// Background work (the cache sweeper) stops when ctx is done.
func (b *Builder) Build(ctx context.Context) (*http.Server, *Engine, error) {
	memCache := cache.NewInMemoryCache(b.cfg.Cache.MaxEntries, nil)
	memCache.StartSweeper(ctx, b.cfg.Cache.SweepInterval, b.cfg.Cache.TTL, func(removed int) {
		metrics.SetCacheEntries(memCache.Len())
		if removed > 0 {
			b.logger.Debug("cache sweep", "removed", removed)
		}
	})

	fetcher := b.Fetcher
	if fetcher == nil {
		if b.cfg.Upstream.APIKey == "" {
			b.logger.Info("no upstream api key configured; provider calls will be rejected upstream")
		}
		fetcher = upstream.NewClient(
			b.cfg.Upstream.BaseURL,
			b.cfg.Upstream.APIKey,
			b.cfg.Upstream.OutputSize,
			b.cfg.Upstream.Timeout,
		)
	}

	engine := NewEngine(memCache, fetcher, b.cfg.Cache.TTL, b.logger)
	engine.Coalesce = b.cfg.CoalesceEnabled()

	mux := http.NewServeMux()
	mux.Handle(CandlesRoute, engine)
	mux.Handle(MetricsRoute, metrics.Handler())
	mux.HandleFunc(HealthRoute, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mws := []middleware.Middleware{
		middleware.RequestID,
		middleware.AccessLog(b.logger, CandlesRoute, HealthRoute, MetricsRoute),
		observability.HTTPMiddleware,
		middleware.CORS(b.cfg.Server.CORS.AllowedOrigins),
	}

	if len(b.cfg.Server.IPBlockCIDRs) > 0 {
		ipMw, err := middleware.IPFilter(b.logger, b.cfg.Server.IPBlockCIDRs)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid ipBlockCIDRs: %w", err)
		}
		mws = append(mws, ipMw)
	}

	srv := &http.Server{
		Addr:    b.cfg.Server.Address,
		Handler: middleware.Chain(mux, mws...),
	}
	return srv, engine, nil
}
