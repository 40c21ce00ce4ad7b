// SPDX-License-Identifier: MIT

package rewrite

import (
	"net/url"
	"strings"

	"github.com/hlsgate/hlsgate/internal/hls"
)

// Rule is one transform in the fixed-order rule set. Rules are matched per
// line; the first match wins and unmatched lines pass through verbatim.
type Rule interface {
	Name() string
	Matches(line hls.Line, st *State, ctx *Context) bool
	// Transform returns the replacement line. Exactly one output line per
	// input line: the rewriter round-trips playlists visually.
	Transform(line hls.Line, st *State, ctx *Context) string
}

// DefaultRules returns the rule set in its fixed application order.
func DefaultRules() []Rule {
	return []Rule{
		keyRewriteRule{},
		mapRewriteRule{},
		variantProxyRule{},
		mediaProxyRule{},
		segmentProxyRule{},
	}
}

// keyRewriteRule proxies the URI attribute of #EXT-X-KEY (and
// #EXT-X-SESSION-KEY) tags with METHOD other than NONE, so the player's key
// fetch also flows through the proxy. Everything else about the tag is
// preserved byte for byte.
type keyRewriteRule struct{}

func (keyRewriteRule) Name() string { return "key" }

func (keyRewriteRule) Matches(line hls.Line, _ *State, _ *Context) bool {
	if !line.IsTag(hls.TagKey) && !line.IsTag(hls.TagSessionKey) {
		return false
	}
	key := hls.ParseKey(line)
	return key.Method != hls.MethodNone && key.URI != ""
}

func (keyRewriteRule) Transform(line hls.Line, _ *State, ctx *Context) string {
	attrs := line.Attrs()
	uri, _ := attrs.Get("URI")
	target, err := ctx.Resolve(uri)
	if err != nil || ctx.IsProxied(target) {
		return line.Raw
	}
	attrs = attrs.Set("URI", ctx.KeyURL(target), true)
	return hls.EmitTag(line.Name, attrs)
}

// mapRewriteRule proxies the init-segment URI of #EXT-X-MAP tags. The byte
// range is folded into the proxied URL, so the BYTERANGE attribute is
// dropped from the output; the walk state keeps the original URI and range
// for later init= references from segment URLs.
type mapRewriteRule struct{}

func (mapRewriteRule) Name() string { return "map" }

func (mapRewriteRule) Matches(line hls.Line, _ *State, _ *Context) bool {
	if !line.IsTag(hls.TagMap) {
		return false
	}
	_, ok := hls.ParseMap(line)
	return ok
}

func (mapRewriteRule) Transform(line hls.Line, st *State, ctx *Context) string {
	m, _ := hls.ParseMap(line)
	target, err := ctx.Resolve(m.URI)
	if err != nil || ctx.IsProxied(target) {
		return line.Raw
	}

	proxied := ctx.SegmentURL(target, SegmentParams{
		ByteRange: m.ByteRange,
		Format:    hls.FormatMP4,
	})

	attrs := make(hls.AttrList, 0, 1)
	for _, attr := range line.Attrs() {
		switch {
		case attrEqual(attr.Name, "URI"):
			attr.Value = proxied
			attrs = append(attrs, attr)
		case attrEqual(attr.Name, "BYTERANGE"):
			// folded into the proxied URL
		default:
			attrs = append(attrs, attr)
		}
	}
	return hls.EmitTag(line.Name, attrs)
}

// variantProxyRule rewrites the URI following #EXT-X-STREAM-INF into a
// proxied /manifest URL carrying the full client context forward.
type variantProxyRule struct{}

func (variantProxyRule) Name() string { return "variant" }

func (variantProxyRule) Matches(line hls.Line, st *State, _ *Context) bool {
	return line.Kind == hls.LineURI && st.pending == pendingVariant
}

func (variantProxyRule) Transform(line hls.Line, _ *State, ctx *Context) string {
	target, err := ctx.Resolve(line.Raw)
	if err != nil || ctx.IsProxied(target) {
		return line.Raw
	}
	return ctx.ManifestURL(target)
}

// mediaProxyRule rewrites the URI attribute of #EXT-X-MEDIA (and
// #EXT-X-I-FRAME-STREAM-INF) tags like variants.
type mediaProxyRule struct{}

func (mediaProxyRule) Name() string { return "media" }

func (mediaProxyRule) Matches(line hls.Line, _ *State, _ *Context) bool {
	if !line.IsTag(hls.TagMedia) && !line.IsTag(hls.TagIFrameStream) {
		return false
	}
	uri, ok := line.Attrs().Get("URI")
	return ok && uri != ""
}

func (mediaProxyRule) Transform(line hls.Line, _ *State, ctx *Context) string {
	attrs := line.Attrs()
	uri, _ := attrs.Get("URI")
	target, err := ctx.Resolve(uri)
	if err != nil || ctx.IsProxied(target) {
		return line.Raw
	}
	attrs = attrs.Set("URI", ctx.ManifestURL(target), true)
	return hls.EmitTag(line.Name, attrs)
}

// segmentProxyRule rewrites the URI following #EXTINF into a self-contained
// proxied /segment URL. The decrypt method and key material are attached
// only when the proxy intercepts this key context; everything else (headers,
// byte range, format, init segment) is always carried so the fetch itself
// proxies.
type segmentProxyRule struct{}

func (segmentProxyRule) Name() string { return "segment" }

func (segmentProxyRule) Matches(line hls.Line, st *State, _ *Context) bool {
	return line.Kind == hls.LineURI && st.pending == pendingSegment
}

func (segmentProxyRule) Transform(line hls.Line, st *State, ctx *Context) string {
	target, err := ctx.Resolve(line.Raw)
	if err != nil || ctx.IsProxied(target) {
		return line.Raw
	}

	p := SegmentParams{
		IV:        st.iv(),
		ByteRange: st.pendingRange,
		Format:    segmentFormat(target, st),
	}
	if ctx.Intercept(st.Key) {
		p.Method = st.Key.ProxyMethod()
	}
	if st.Map != nil {
		if init, err := ctx.Resolve(st.Map.URI); err == nil {
			p.Init = init
			p.InitBR = st.Map.ByteRange
		}
	}
	return ctx.SegmentURL(target, p)
}

// segmentFormat picks the f parameter: an #EXT-X-MAP means fMP4, otherwise
// the URI extension decides with MPEG-TS as the fallback.
func segmentFormat(target *url.URL, st *State) hls.Format {
	if st.Map != nil {
		return hls.FormatMP4
	}
	if f := hls.FormatFromURL(target.Path); f != hls.FormatUnknown {
		return f
	}
	return hls.FormatTS
}

func attrEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}
