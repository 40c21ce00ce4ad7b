// SPDX-License-Identifier: MIT

package hls

import (
	"errors"
	"strings"
)

var errIVLength = errors.New("iv must be 16 bytes")

// Format is the container format of a media segment.
type Format string

const (
	FormatTS      Format = "ts"
	FormatMP4     Format = "mp4"
	FormatAAC     Format = "aac"
	FormatUnknown Format = ""
)

// ParseFormat parses the "f" query parameter.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "ts":
		return FormatTS
	case "mp4", "m4s", "m4f", "m4v", "cmfv", "cmfa":
		return FormatMP4
	case "aac", "m4a":
		return FormatAAC
	}
	return FormatUnknown
}

// FormatFromURL derives the format from a URI's path extension, ignoring any
// query string.
func FormatFromURL(uri string) Format {
	path := uri
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return ParseFormat(path[i+1:])
	}
	return FormatUnknown
}

// FormatFromBytes sniffs the format from leading magic bytes: the MPEG-TS
// sync byte, the fMP4 ftyp/styp box, or the ADTS sync word.
func FormatFromBytes(data []byte) Format {
	if len(data) >= 1 && data[0] == 0x47 {
		return FormatTS
	}
	if len(data) >= 8 {
		box := string(data[4:8])
		if box == "ftyp" || box == "styp" || box == "moof" {
			return FormatMP4
		}
	}
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xF0 == 0xF0 {
		return FormatAAC
	}
	return FormatUnknown
}

// ContentType returns the MIME type served for this format.
func (f Format) ContentType() string {
	switch f {
	case FormatTS:
		return "video/mp2t"
	case FormatMP4:
		return "video/mp4"
	case FormatAAC:
		return "audio/aac"
	}
	return "application/octet-stream"
}

// Ext returns the canonical file extension without the dot.
func (f Format) Ext() string {
	if f == FormatUnknown {
		return "ts"
	}
	return string(f)
}
