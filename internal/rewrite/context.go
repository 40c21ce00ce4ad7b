// SPDX-License-Identifier: MIT

// Package rewrite implements the playlist transformation pipeline: a
// line-oriented rewriter that walks a classified playlist, tracks key, map
// and sequence state, and applies an ordered set of transform rules that
// replace upstream URIs with proxied ones.
package rewrite

import (
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"

	"github.com/hlsgate/hlsgate/internal/decrypt"
	"github.com/hlsgate/hlsgate/internal/hls"
	"github.com/hlsgate/hlsgate/internal/upstream"
)

// Context carries the request-scoped inputs every rule needs: the manifest
// URL for relative resolution, the proxy base URL for generated links, and
// the client-supplied proxy params threaded into rewritten URIs.
type Context struct {
	// OriginalURL is the effective upstream manifest URL, the base for
	// RFC 3986 resolution of relative URIs.
	OriginalURL *url.URL

	// BaseURL is the externally visible root of this proxy.
	BaseURL *url.URL

	// ManifestHeaders and SegmentHeaders are the still-encoded h/sh values,
	// re-emitted verbatim into generated URLs. Decoded forms are kept for
	// upstream fetches.
	ManifestHeaders string
	SegmentHeaders  string

	ManifestHeaderMap upstream.Headers
	SegmentHeaderMap  upstream.Headers

	// Keys is the client-supplied key material, nil when absent.
	Keys decrypt.KeySet

	// Decrypt gates server-side DRM stripping.
	Decrypt bool
}

// Resolve resolves a playlist URI reference against the manifest URL.
func (c *Context) Resolve(ref string) (*url.URL, error) {
	return c.OriginalURL.Parse(strings.TrimSpace(ref))
}

// IsProxied reports whether a resolved URL already points at this proxy, so
// re-rewriting an already rewritten manifest is a no-op.
func (c *Context) IsProxied(u *url.URL) bool {
	if u.Scheme != c.BaseURL.Scheme || u.Host != c.BaseURL.Host {
		return false
	}
	switch u.Path {
	case "/manifest", "/segment", "/key":
		return true
	}
	return strings.HasPrefix(u.Path, "/segment.")
}

// Intercept reports whether segments under the given key are decrypted by
// the proxy: the client must have enabled decryption, supplied key material,
// and the key method must be one the proxy handles.
func (c *Context) Intercept(key *hls.Key) bool {
	return c.Decrypt && len(c.Keys) > 0 && key != nil && key.ProxyMethod() != ""
}

// ManifestURL builds a proxied /manifest URL for a variant or rendition
// playlist. Absent optional params are omitted.
func (c *Context) ManifestURL(target *url.URL) string {
	q := newQuery()
	q.add("url", target.String())
	q.add("h", c.ManifestHeaders)
	q.add("sh", c.SegmentHeaders)
	if len(c.Keys) > 0 {
		q.add("k", c.Keys.String())
	}
	if c.Decrypt {
		q.add("decrypt", "true")
	}
	return c.endpoint("/manifest") + "?" + q.String()
}

// KeyURL builds a proxied /key URL so the player's key fetch also flows
// through the proxy, carrying the segment header bag.
func (c *Context) KeyURL(target *url.URL) string {
	q := newQuery()
	q.add("url", target.String())
	q.add("h", c.SegmentHeaders)
	return c.endpoint("/key") + "?" + q.String()
}

// SegmentParams is the crypto and fetch context attached to one proxied
// segment URL.
type SegmentParams struct {
	Method    string // "" when the proxy passes bytes through
	IV        []byte
	ByteRange *hls.ByteRange
	Format    hls.Format
	Init      *url.URL
	InitBR    *hls.ByteRange
}

// SegmentURL builds a proxied /segment URL. The result is self-contained:
// the segment handler needs no playlist context beyond these params.
func (c *Context) SegmentURL(target *url.URL, p SegmentParams) string {
	q := newQuery()
	q.add("url", target.String())
	if p.Method != "" {
		q.add("m", p.Method)
		if len(c.Keys) > 0 {
			q.add("k", c.Keys.String())
		}
	}
	if len(p.IV) == 16 {
		q.add("iv", "0x"+hex.EncodeToString(p.IV))
	}
	q.add("h", c.SegmentHeaders)
	if p.ByteRange != nil {
		q.add("br", p.ByteRange.Query())
	}
	if p.Format != hls.FormatUnknown {
		q.add("f", string(p.Format))
	}
	if p.Init != nil {
		q.add("init", p.Init.String())
		if p.InitBR != nil {
			q.add("init_br", p.InitBR.Query())
		}
	}
	return c.endpoint("/segment") + "?" + q.String()
}

func (c *Context) endpoint(path string) string {
	base := strings.TrimSuffix(c.BaseURL.String(), "/")
	return base + path
}

// query builds a percent-encoded query string preserving insertion order,
// which url.Values cannot do.
type query struct {
	b strings.Builder
}

func newQuery() *query { return &query{} }

// add appends name=value, percent-encoding the value. Empty values are
// omitted entirely.
func (q *query) add(name, value string) {
	if value == "" {
		return
	}
	if q.b.Len() > 0 {
		q.b.WriteByte('&')
	}
	q.b.WriteString(name)
	q.b.WriteByte('=')
	q.b.WriteString(url.QueryEscape(value))
}

func (q *query) String() string { return q.b.String() }

// deriveIV is the HLS media-sequence IV: a 16-byte big-endian encoding of
// the segment's sequence number.
func deriveIV(sequence uint64) []byte {
	iv := make([]byte, 16)
	for i := 0; i < 8; i++ {
		iv[15-i] = byte(sequence >> (8 * i))
	}
	return iv
}

func parseUint(s string) (uint64, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return v, err == nil
}
