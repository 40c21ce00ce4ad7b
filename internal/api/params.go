// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/hlsgate/hlsgate/internal/decrypt"
	"github.com/hlsgate/hlsgate/internal/hls"
	"github.com/hlsgate/hlsgate/internal/proxyerr"
	"github.com/hlsgate/hlsgate/internal/upstream"
)

// manifestParams are the decoded query parameters of /manifest.
type manifestParams struct {
	url     *url.URL
	rawURL  string
	h       string
	sh      string
	headers upstream.Headers
	segHdrs upstream.Headers
	keys    decrypt.KeySet
	decrypt bool
}

func parseManifestParams(q url.Values) (*manifestParams, error) {
	raw := q.Get("url")
	if raw == "" {
		return nil, fmt.Errorf("missing url parameter: %w", proxyerr.ErrBadRequest)
	}
	target, err := url.Parse(raw)
	if err != nil || !target.IsAbs() {
		return nil, fmt.Errorf("url parameter is not an absolute URL: %w", proxyerr.ErrBadRequest)
	}

	p := &manifestParams{
		url:    target,
		rawURL: raw,
		h:      q.Get("h"),
		sh:     q.Get("sh"),
	}
	if p.headers, err = upstream.DecodeHeaders(p.h); err != nil {
		return nil, err
	}
	if p.segHdrs, err = upstream.DecodeHeaders(p.sh); err != nil {
		return nil, err
	}
	if k := q.Get("k"); k != "" {
		if p.keys, err = decrypt.ParseKeySet(k); err != nil {
			return nil, err
		}
	}
	if d := q.Get("decrypt"); d != "" {
		b, err := strconv.ParseBool(d)
		if err != nil {
			return nil, fmt.Errorf("decrypt parameter is not a boolean: %w", proxyerr.ErrBadRequest)
		}
		p.decrypt = b
	}
	return p, nil
}

// segmentParams are the decoded query parameters of /segment.
type segmentParams struct {
	url     *url.URL
	rawURL  string
	method  decrypt.Method // "" for pass-through
	keys    decrypt.KeySet
	iv      []byte
	headers upstream.Headers
	br      *hls.ByteRange
	format  hls.Format
	init    string
	initBR  *hls.ByteRange
}

// parseSegmentParams decodes a /segment request. extHint is the path
// extension of the /segment.{ext} alias route, used when no f parameter is
// present.
func parseSegmentParams(q url.Values, extHint string) (*segmentParams, error) {
	raw := q.Get("url")
	if raw == "" {
		return nil, fmt.Errorf("missing url parameter: %w", proxyerr.ErrBadRequest)
	}
	target, err := url.Parse(raw)
	if err != nil || !target.IsAbs() {
		return nil, fmt.Errorf("url parameter is not an absolute URL: %w", proxyerr.ErrBadRequest)
	}

	p := &segmentParams{url: target, rawURL: raw, init: q.Get("init")}

	if m := q.Get("m"); m != "" {
		if p.method, err = decrypt.ParseMethod(m); err != nil {
			return nil, err
		}
		k := q.Get("k")
		if k == "" {
			return nil, fmt.Errorf("method %s requires key material: %w", p.method, proxyerr.ErrBadRequest)
		}
		if p.keys, err = decrypt.ParseKeySet(k); err != nil {
			return nil, err
		}
	}

	if p.iv, err = decrypt.ParseIV(q.Get("iv")); err != nil {
		return nil, err
	}
	if p.headers, err = upstream.DecodeHeaders(q.Get("h")); err != nil {
		return nil, err
	}
	if br := q.Get("br"); br != "" {
		parsed, err := hls.ParseByteRange(br)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, proxyerr.ErrBadRequest)
		}
		p.br = &parsed
	}
	if ib := q.Get("init_br"); ib != "" {
		parsed, err := hls.ParseByteRange(ib)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, proxyerr.ErrBadRequest)
		}
		p.initBR = &parsed
	}

	p.format = hls.ParseFormat(q.Get("f"))
	if p.format == hls.FormatUnknown && extHint != "" {
		p.format = hls.ParseFormat(extHint)
	}
	if p.format == hls.FormatUnknown {
		p.format = hls.FormatFromURL(target.Path)
	}
	return p, nil
}

// keyParams are the decoded query parameters of /key.
type keyParams struct {
	url     string
	headers upstream.Headers
}

func parseKeyParams(q url.Values) (*keyParams, error) {
	raw := q.Get("url")
	if raw == "" {
		return nil, fmt.Errorf("missing url parameter: %w", proxyerr.ErrBadRequest)
	}
	headers, err := upstream.DecodeHeaders(q.Get("h"))
	if err != nil {
		return nil, err
	}
	return &keyParams{url: raw, headers: headers}, nil
}
