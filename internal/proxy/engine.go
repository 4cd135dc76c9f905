package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"candlegate/internal/cache"
	"candlegate/internal/logging"
	"candlegate/internal/metrics"
	"candlegate/internal/middleware"
	"candlegate/internal/observability"
	"candlegate/internal/upstream"
)

const DefaultInterval = "5min"

// Fetcher retrieves a time series from the provider. The returned payload
// is stored and served without reinterpretation.
type Fetcher interface {
	Fetch(ctx context.Context, symbol, interval string) (json.RawMessage, error)
}

type Query struct {
	Symbol   string
	Interval string
}

type Result struct {
	Payload   []byte
	FromCache bool
}

type Engine struct {
	Cache   cache.Cache
	Fetcher Fetcher
	TTL     time.Duration
	// Coalesce makes concurrent misses for one key share a single
	// upstream call.
	Coalesce bool
	Now      func() time.Time

	logger logging.Logger
	group  singleflight.Group
}

func NewEngine(c cache.Cache, f Fetcher, ttl time.Duration, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Engine{
		Cache:   c,
		Fetcher: f,
		TTL:     ttl,
		Now:     time.Now,
		logger:  logger,
	}
}

// HandleCandles serves q from the cache when the entry is younger than TTL
// and otherwise makes exactly one upstream call. Only a successful,
// non-error payload is written to the cache. An empty Interval, whether
// absent or sent as "interval=", is treated as DefaultInterval.
func (e *Engine) HandleCandles(ctx context.Context, q Query) (Result, error) {
	if q.Symbol == "" {
		return Result{}, ErrSymbolRequired
	}
	if q.Interval == "" {
		q.Interval = DefaultInterval
	}

	key := cache.MakeKey(q.Symbol, q.Interval)

	if entry, ok := e.Cache.Get(ctx, key); ok {
		if cache.Fresh(entry, e.Now(), e.TTL) {
			metrics.IncCacheLookup(metrics.ResultHit)
			return Result{Payload: entry.Payload, FromCache: true}, nil
		}
		metrics.IncCacheLookup(metrics.ResultStale)
	} else {
		metrics.IncCacheLookup(metrics.ResultMiss)
	}

	if !e.Coalesce {
		payload, err := e.refresh(ctx, key, q)
		if err != nil {
			return Result{}, err
		}
		return Result{Payload: payload}, nil
	}

	// The shared call must outlive any single waiter's request.
	v, err, shared := e.group.Do(key, func() (any, error) {
		return e.refresh(context.WithoutCancel(ctx), key, q)
	})
	if shared {
		e.logger.Debug("upstream call shared", "key", key)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Payload: v.([]byte)}, nil
}

func (e *Engine) refresh(ctx context.Context, key string, q Query) ([]byte, error) {
	ctx, span := observability.StartSpan(ctx, "upstream.fetch",
		observability.AttrSymbol.String(q.Symbol),
		observability.AttrInterval.String(q.Interval),
	)
	defer span.End()

	start := time.Now()
	payload, err := e.Fetcher.Fetch(ctx, q.Symbol, q.Interval)
	if err != nil {
		metrics.ObserveUpstream(metrics.OutcomeUnavailable, time.Since(start))
		span.SetAttributes(observability.AttrOutcome.String(metrics.OutcomeUnavailable))
		observability.SetSpanError(span, err)
		return nil, &UpstreamError{Err: err}
	}

	if msg, ok := upstream.ErrorMarker(payload); ok {
		metrics.ObserveUpstream(metrics.OutcomeProviderError, time.Since(start))
		span.SetAttributes(observability.AttrOutcome.String(metrics.OutcomeProviderError))
		provErr := &ProviderError{Message: msg}
		observability.SetSpanError(span, provErr)
		return nil, provErr
	}

	metrics.ObserveUpstream(metrics.OutcomeOK, time.Since(start))
	span.SetAttributes(observability.AttrOutcome.String(metrics.OutcomeOK))

	e.Cache.Put(ctx, key, payload)
	metrics.SetCacheEntries(e.Cache.Len())
	return payload, nil
}

func (e *Engine) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		rw.Header().Set("Allow", "GET, HEAD")
		middleware.WriteJSONError(rw, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	params := req.URL.Query()
	q := Query{
		Symbol:   params.Get("symbol"),
		Interval: params.Get("interval"),
	}

	res, err := e.HandleCandles(req.Context(), q)
	if err != nil {
		status := StatusCode(err)
		args := []any{
			"symbol", q.Symbol,
			"interval", q.Interval,
			"status", status,
			"err", err,
			"request_id", middleware.RequestIDFromContext(req.Context()),
		}
		if status >= http.StatusInternalServerError {
			e.logger.Error("candles request failed", args...)
		} else {
			e.logger.Info("candles request rejected", args...)
		}
		middleware.WriteJSONError(rw, status, err.Error())
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	if res.FromCache {
		rw.Header().Set("X-Cache", "HIT")
	} else {
		rw.Header().Set("X-Cache", "MISS")
	}
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(res.Payload)
}
