// SPDX-License-Identifier: MIT

package hls

// Map is the parsed content of an #EXT-X-MAP tag: the init segment URI and
// its optional byte range.
type Map struct {
	URI       string
	ByteRange *ByteRange
}

// ParseMap extracts init-segment context from a classified #EXT-X-MAP line.
// Returns false when the tag carries no URI.
func ParseMap(line Line) (Map, bool) {
	attrs := line.Attrs()
	uri, ok := attrs.Get("URI")
	if !ok || uri == "" {
		return Map{}, false
	}
	m := Map{URI: uri}
	if v, ok := attrs.Get("BYTERANGE"); ok {
		if br, err := ParseByteRange(v); err == nil {
			m.ByteRange = &br
		}
	}
	return m, true
}
