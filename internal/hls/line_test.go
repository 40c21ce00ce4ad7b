// SPDX-License-Identifier: MIT

package hls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind LineKind
	}{
		{"blank", "", LineBlank},
		{"whitespace", "   ", LineBlank},
		{"header", "#EXTM3U", LineTag},
		{"stream inf", "#EXT-X-STREAM-INF:BANDWIDTH=1000000", LineTag},
		{"comment", "# generated by packager", LineComment},
		{"absolute uri", "https://example.com/seg.ts", LineURI},
		{"relative uri", "seg001.ts", LineURI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, ClassifyLine(tt.in).Kind)
		})
	}
}

func TestClassifyLineStripsCR(t *testing.T) {
	l := ClassifyLine("seg001.ts\r")
	assert.Equal(t, LineURI, l.Kind)
	assert.Equal(t, "seg001.ts", l.Raw)
}

func TestClassifyLineTagNameAndValue(t *testing.T) {
	l := ClassifyLine("#EXT-X-KEY:METHOD=AES-128,URI=\"key.bin\"")
	assert.Equal(t, "#EXT-X-KEY", l.Name)
	assert.Equal(t, `METHOD=AES-128,URI="key.bin"`, l.Value)

	l = ClassifyLine("#EXT-X-ENDLIST")
	assert.Equal(t, "#EXT-X-ENDLIST", l.Name)
	assert.Equal(t, "", l.Value)
}

func TestLinesPreservesCount(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:6.0,\nseg.ts\n"
	lines := Lines(body)
	require.Len(t, lines, 4) // trailing newline yields a final blank
	assert.Equal(t, LineBlank, lines[3].Kind)
}

func TestAttrsRoundTrip(t *testing.T) {
	in := `METHOD=SAMPLE-AES,URI="https://k/v?a=1,b=2",IV=0x0000000000000000000000000000000A,KEYFORMAT="com.apple.streamingkeydelivery"`
	attrs := ParseAttrs(in)
	assert.Equal(t, in, attrs.String())
}

func TestAttrsQuotedCommas(t *testing.T) {
	attrs := ParseAttrs(`CODECS="avc1.64001f,mp4a.40.2",BANDWIDTH=1000`)
	require.Len(t, attrs, 2)

	codecs, ok := attrs.Get("CODECS")
	require.True(t, ok)
	assert.Equal(t, "avc1.64001f,mp4a.40.2", codecs)

	bw, ok := attrs.Get("bandwidth")
	require.True(t, ok, "lookup must be case-insensitive")
	assert.Equal(t, "1000", bw)
}

func TestAttrsSetPreservesPosition(t *testing.T) {
	attrs := ParseAttrs(`METHOD=AES-128,URI="old",IV=0x00`)
	attrs = attrs.Set("URI", "new", true)
	assert.Equal(t, `METHOD=AES-128,URI="new",IV=0x00`, attrs.String())
}

func TestAttrsSetAppendsWhenMissing(t *testing.T) {
	attrs := ParseAttrs(`TYPE=AUDIO`)
	attrs = attrs.Set("URI", "x", true)
	assert.Equal(t, `TYPE=AUDIO,URI="x"`, attrs.String())
}

func TestEmitTag(t *testing.T) {
	attrs := ParseAttrs(`URI="init.mp4",BYTERANGE="617@0"`)
	assert.Equal(t, `#EXT-X-MAP:URI="init.mp4",BYTERANGE="617@0"`, EmitTag(TagMap, attrs))
}
