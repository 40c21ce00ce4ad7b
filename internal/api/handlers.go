// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hlsgate/hlsgate/internal/analytics"
	"github.com/hlsgate/hlsgate/internal/decrypt"
	"github.com/hlsgate/hlsgate/internal/hls"
	"github.com/hlsgate/hlsgate/internal/log"
	"github.com/hlsgate/hlsgate/internal/metrics"
	"github.com/hlsgate/hlsgate/internal/rewrite"
	"github.com/hlsgate/hlsgate/internal/version"
)

const manifestContentType = "application/vnd.apple.mpegurl"

// handleManifest fetches the upstream playlist, rewrites every URI through
// the proxy and returns the transformed body.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	p, err := parseManifestParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec := analytics.NewRecord("manifest", p.rawURL)
	rec.RequestID = log.RequestIDFromContext(r.Context())
	rec.KeyProvided = len(p.keys) > 0
	rec.Decrypt = p.decrypt

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ManifestTimeout)
	defer cancel()

	body, err := s.client.FetchText(ctx, p.rawURL, p.headers)
	if err != nil {
		s.finishRecord(rec, start, err, 0)
		writeError(w, r, err)
		return
	}

	rw := rewrite.New(&rewrite.Context{
		OriginalURL:       p.url,
		BaseURL:           s.baseURL,
		ManifestHeaders:   p.h,
		SegmentHeaders:    p.sh,
		ManifestHeaderMap: p.headers,
		SegmentHeaderMap:  p.segHdrs,
		Keys:              p.keys,
		Decrypt:           p.decrypt,
	})
	transformed := rw.Process(body)

	w.Header().Set("Content-Type", manifestContentType)
	_, _ = w.Write([]byte(transformed))
	s.finishRecord(rec, start, nil, len(transformed))
}

// handleSegment fetches a segment (plus its init segment through the cache
// for fMP4), strips DRM when a method is supplied, and streams the result.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	p, err := parseSegmentParams(r.URL.Query(), chi.URLParam(r, "ext"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec := analytics.NewRecord("segment", p.rawURL)
	rec.RequestID = log.RequestIDFromContext(r.Context())
	rec.KeyProvided = len(p.keys) > 0
	rec.Method = string(p.method)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SegmentTimeout)
	defer cancel()

	var initData []byte
	if p.init != "" && p.method != "" {
		initData, err = s.initCache.GetOrFetch(ctx, p.init, p.headers, p.initBR)
		if err != nil {
			s.finishRecord(rec, start, err, 0)
			writeError(w, r, err)
			return
		}
	}

	res, err := s.client.Fetch(ctx, p.rawURL, p.headers, p.br)
	if err != nil {
		s.finishRecord(rec, start, err, 0)
		writeError(w, r, err)
		return
	}

	body := res.Body
	if p.method != "" {
		d := decrypt.Decryptor{Method: p.method, Keys: p.keys, IV: p.iv}
		body, err = d.Decrypt(res.Body, initData, p.format)
		if err != nil {
			metrics.DecryptTotal.WithLabelValues(string(p.method), "error").Inc()
			s.finishRecord(rec, start, err, 0)
			writeError(w, r, err)
			return
		}
		metrics.DecryptTotal.WithLabelValues(string(p.method), "ok").Inc()
	}

	w.Header().Set("Content-Type", segmentContentType(res.ContentType, p.format, body))
	_, _ = w.Write(body)
	s.finishRecord(rec, start, nil, len(body))
}

// handleKey proxies the player's key fetch with the segment header bag.
func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	p, err := parseKeyParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec := analytics.NewRecord("key", p.url)
	rec.RequestID = log.RequestIDFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ManifestTimeout)
	defer cancel()

	res, err := s.client.Fetch(ctx, p.url, p.headers, nil)
	if err != nil {
		s.finishRecord(rec, start, err, 0)
		writeError(w, r, err)
		return
	}

	ct := res.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	_, _ = w.Write(res.Body)
	s.finishRecord(rec, start, nil, len(res.Body))
}

// handleHealth reports liveness and the build version.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// segmentContentType preserves the upstream Content-Type where known and
// falls back to the format default, sniffing as a last resort.
func segmentContentType(upstreamCT string, format hls.Format, body []byte) string {
	if upstreamCT != "" && upstreamCT != "application/octet-stream" {
		return upstreamCT
	}
	if format != hls.FormatUnknown {
		return format.ContentType()
	}
	return hls.FormatFromBytes(body).ContentType()
}
