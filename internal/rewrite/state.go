// SPDX-License-Identifier: MIT

package rewrite

import "github.com/hlsgate/hlsgate/internal/hls"

// PlaylistType is decided dynamically by the first decisive tag: a
// #EXT-X-STREAM-INF makes the playlist a master, #EXTINF or
// #EXT-X-TARGETDURATION makes it a media playlist.
type PlaylistType int

const (
	PlaylistUnknown PlaylistType = iota
	PlaylistMaster
	PlaylistMedia
)

type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingVariant
	pendingSegment
)

// State is the playlist walk state. Key and map context persist until
// overridden; the media sequence starts at the #EXT-X-MEDIA-SEQUENCE value
// and advances once per #EXTINF segment URI.
type State struct {
	Type          PlaylistType
	MediaSequence uint64

	// Key is the current #EXT-X-KEY context, nil after METHOD=NONE.
	Key *hls.Key

	// Map is the current #EXT-X-MAP context with the original (unproxied)
	// URI, so segment rewrites can reference it.
	Map *hls.Map

	segmentIndex uint64
	pending      pendingKind

	// pendingRange is the #EXT-X-BYTERANGE for the next segment, offset
	// already resolved. rangeOffset tracks the running offset for tags that
	// omit it.
	pendingRange *hls.ByteRange
	rangeOffset  uint64
}

// observe updates state from a classified line before rules run.
func (s *State) observe(line hls.Line) {
	if line.Kind != hls.LineTag {
		return
	}
	switch line.Name {
	case hls.TagStreamInf:
		if s.Type == PlaylistUnknown {
			s.Type = PlaylistMaster
		}
		s.pending = pendingVariant

	case hls.TagExtInf:
		if s.Type == PlaylistUnknown {
			s.Type = PlaylistMedia
		}
		s.pending = pendingSegment

	case hls.TagTargetDuration:
		if s.Type == PlaylistUnknown {
			s.Type = PlaylistMedia
		}

	case hls.TagMediaSequence:
		if v, ok := parseUint(line.Value); ok {
			s.MediaSequence = v
			s.segmentIndex = 0
		}

	case hls.TagKey:
		key := hls.ParseKey(line)
		if key.Method == hls.MethodNone {
			s.Key = nil
		} else {
			s.Key = &key
		}

	case hls.TagMap:
		if m, ok := hls.ParseMap(line); ok {
			s.Map = &m
		}

	case hls.TagByteRange:
		if br, err := hls.ParseByteRange(line.Value); err == nil {
			resolved := br.WithOffset(s.rangeOffset)
			s.pendingRange = &resolved
			s.rangeOffset = resolved.End()
		}
	}
}

// afterURI advances the walk past a URI line.
func (s *State) afterURI() {
	if s.pending == pendingSegment {
		s.segmentIndex++
	}
	s.pending = pendingNone
	s.pendingRange = nil
}

// sequence is the HLS sequence number of the next segment URI.
func (s *State) sequence() uint64 {
	return s.MediaSequence + s.segmentIndex
}

// iv returns the crypto IV for the next segment: the key's explicit IV when
// present, otherwise the media-sequence derivation.
func (s *State) iv() []byte {
	if s.Key != nil && len(s.Key.IV) == 16 {
		return s.Key.IV
	}
	return deriveIV(s.sequence())
}
