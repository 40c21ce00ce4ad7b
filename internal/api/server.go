// SPDX-License-Identifier: MIT

// Package api wires the HTTP surface of the proxy: routing, middleware,
// parameter decoding and the request handlers.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hlsgate/hlsgate/internal/analytics"
	"github.com/hlsgate/hlsgate/internal/cache"
	"github.com/hlsgate/hlsgate/internal/config"
	"github.com/hlsgate/hlsgate/internal/log"
	"github.com/hlsgate/hlsgate/internal/proxyerr"
	"github.com/hlsgate/hlsgate/internal/upstream"
)

// Server is the HTTP front of the proxy.
type Server struct {
	cfg       config.Config
	baseURL   *url.URL
	client    *upstream.Client
	initCache *cache.InitSegmentCache
	sink      analytics.Sink
}

// Option configures a Server.
type Option func(*Server)

// WithClient overrides the upstream client, for tests.
func WithClient(c *upstream.Client) Option {
	return func(s *Server) { s.client = c }
}

// WithSink overrides the analytics sink.
func WithSink(sink analytics.Sink) Option {
	return func(s *Server) { s.sink = sink }
}

// New builds a Server from configuration.
func New(cfg config.Config, opts ...Option) (*Server, error) {
	base, err := cfg.BaseURL()
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		baseURL: base,
		client:  upstream.NewClient(nil),
		sink:    analytics.NopSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.initCache = cache.New(cfg.InitCacheSize, cfg.SegmentTimeout, s.client)
	return s, nil
}

// Router assembles the middleware stack and routes. Order: recoverer
// outermost, then request correlation, CORS and rate limiting before the
// handlers.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(cors(s.cfg.CORSAllowedOrigin))
	if s.cfg.RateLimitRPS > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimitRPS, time.Second))
	}

	r.With(observe("manifest")).Get("/manifest", s.handleManifest)
	r.With(observe("segment")).Get("/segment", s.handleSegment)
	r.With(observe("segment")).Get("/segment.{ext}", s.handleSegment)
	r.With(observe("key")).Get("/key", s.handleKey)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger := log.WithComponent("server")
	logger.Info().Str("addr", s.cfg.ListenAddr()).Str("base_url", s.baseURL.String()).Msg("listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.sink.Close()
		logger.Info().Msg("shut down cleanly")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// finishRecord completes and emits an analytics record.
func (s *Server) finishRecord(rec analytics.Record, start time.Time, err error, bytes int) {
	rec.DurationMS = time.Since(start).Milliseconds()
	rec.Bytes = bytes
	if err != nil {
		rec.Status = proxyerr.HTTPStatus(err)
		rec.ErrorCode = proxyerr.Code(err)
	} else {
		rec.Status = http.StatusOK
	}
	s.sink.Log(rec)
}
