// SPDX-License-Identifier: MIT

// Package hls holds the playlist-level domain types: line classification,
// ordered tag attributes, encryption keys, byte ranges and segment formats.
package hls

import "strings"

// LineKind is the classification of a single playlist line.
type LineKind int

const (
	LineBlank LineKind = iota
	LineComment
	LineTag
	LineURI
)

// Well-known tag names the rewriter reacts to. Unknown tags pass through
// verbatim.
const (
	TagExtM3U         = "#EXTM3U"
	TagStreamInf      = "#EXT-X-STREAM-INF"
	TagIFrameStream   = "#EXT-X-I-FRAME-STREAM-INF"
	TagMedia          = "#EXT-X-MEDIA"
	TagKey            = "#EXT-X-KEY"
	TagSessionKey     = "#EXT-X-SESSION-KEY"
	TagMap            = "#EXT-X-MAP"
	TagMediaSequence  = "#EXT-X-MEDIA-SEQUENCE"
	TagExtInf         = "#EXTINF"
	TagByteRange      = "#EXT-X-BYTERANGE"
	TagTargetDuration = "#EXT-X-TARGETDURATION"
	TagEndList        = "#EXT-X-ENDLIST"
)

// Line is one classified playlist line. Raw preserves the exact input text
// (without the trailing CR) so unmodified lines re-emit byte-identically.
// For tags, Name is the substring up to the first ':' and Value the rest.
type Line struct {
	Kind  LineKind
	Raw   string
	Name  string
	Value string
}

// ClassifyLine classifies a single playlist line. The caller is expected to
// have split the input on '\n'; a trailing '\r' from CRLF input is stripped
// here.
func ClassifyLine(raw string) Line {
	raw = strings.TrimSuffix(raw, "\r")

	if strings.TrimSpace(raw) == "" {
		return Line{Kind: LineBlank, Raw: raw}
	}
	if strings.HasPrefix(raw, "#EXT") {
		name, value, _ := strings.Cut(raw, ":")
		return Line{Kind: LineTag, Raw: raw, Name: name, Value: value}
	}
	if strings.HasPrefix(raw, "#") {
		return Line{Kind: LineComment, Raw: raw}
	}
	return Line{Kind: LineURI, Raw: raw}
}

// Lines splits a playlist body and classifies every line. The split keeps
// blank lines so the output line count matches the input.
func Lines(body string) []Line {
	parts := strings.Split(body, "\n")
	out := make([]Line, len(parts))
	for i, p := range parts {
		out[i] = ClassifyLine(p)
	}
	return out
}

// Attrs parses the tag payload as an ordered attribute list. Only meaningful
// for attribute-style tags; callers that know the tag carries a scalar
// payload (#EXTINF, #EXT-X-BYTERANGE, ...) should read Value directly.
func (l Line) Attrs() AttrList {
	if l.Kind != LineTag {
		return nil
	}
	return ParseAttrs(l.Value)
}

// IsTag reports whether the line is the named tag.
func (l Line) IsTag(name string) bool {
	return l.Kind == LineTag && l.Name == name
}

// EmitTag renders a tag line from a name and attribute list.
func EmitTag(name string, attrs AttrList) string {
	return name + ":" + attrs.String()
}
