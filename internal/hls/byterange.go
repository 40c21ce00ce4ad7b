// SPDX-License-Identifier: MIT

package hls

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteRange is a sub-range of a resource, as used by #EXT-X-BYTERANGE and the
// BYTERANGE attribute of #EXT-X-MAP. The offset may be absent in tag form, in
// which case it continues from the previous range per the HLS rules.
type ByteRange struct {
	Length    uint64
	Offset    uint64
	HasOffset bool
}

// ParseByteRange parses "length@offset" or "length".
func ParseByteRange(s string) (ByteRange, error) {
	s = strings.TrimSpace(s)
	lenPart, offPart, hasOffset := strings.Cut(s, "@")

	length, err := strconv.ParseUint(lenPart, 10, 64)
	if err != nil {
		return ByteRange{}, fmt.Errorf("invalid byte range %q: %w", s, err)
	}
	br := ByteRange{Length: length}
	if hasOffset {
		offset, err := strconv.ParseUint(offPart, 10, 64)
		if err != nil {
			return ByteRange{}, fmt.Errorf("invalid byte range %q: %w", s, err)
		}
		br.Offset = offset
		br.HasOffset = true
	}
	return br, nil
}

// RangeHeader renders the HTTP Range header value for this byte range.
// A range without offset starts at zero.
func (b ByteRange) RangeHeader() string {
	start := uint64(0)
	if b.HasOffset {
		start = b.Offset
	}
	return fmt.Sprintf("bytes=%d-%d", start, start+b.Length-1)
}

// Query renders the "length@offset" query-parameter form.
func (b ByteRange) Query() string {
	if b.HasOffset {
		return fmt.Sprintf("%d@%d", b.Length, b.Offset)
	}
	return strconv.FormatUint(b.Length, 10)
}

// End returns the offset one past the last byte, for running-offset
// continuation. Only meaningful when HasOffset is true.
func (b ByteRange) End() uint64 {
	return b.Offset + b.Length
}

// WithOffset returns a copy with the offset filled in when absent.
func (b ByteRange) WithOffset(offset uint64) ByteRange {
	if b.HasOffset {
		return b
	}
	return ByteRange{Length: b.Length, Offset: offset, HasOffset: true}
}
