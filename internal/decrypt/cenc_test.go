// SPDX-License-Identifier: MIT

package decrypt

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/hlsgate/hlsgate/internal/hls"
	"github.com/hlsgate/hlsgate/internal/proxyerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tencBox builds a minimal tenc box with the given default KID.
func tencBox(kid []byte) []byte {
	box := make([]byte, 32)
	binary.BigEndian.PutUint32(box, 32)
	copy(box[4:8], "tenc")
	// version/flags, reserved, pattern, isProtected=1, IV size=8
	box[14] = 1
	box[15] = 8
	copy(box[16:32], kid)
	return box
}

func TestDefaultKID(t *testing.T) {
	kid := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

	// Embed the tenc box behind some unrelated leading bytes, as it would sit
	// inside the moov hierarchy of a real init segment.
	init := append([]byte{0, 0, 0, 16, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 0, 1}, tencBox(kid)...)

	got := defaultKID(init)
	assert.Equal(t, kid, got)
}

func TestDefaultKIDAbsent(t *testing.T) {
	init := []byte{0, 0, 0, 16, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 0, 1}
	assert.Nil(t, defaultKID(init))
}

func TestDefaultKIDTruncatedBoxIgnored(t *testing.T) {
	box := tencBox(make([]byte, 16))
	assert.Nil(t, defaultKID(box[:20]))
}

func TestDecryptFMP4KIDMismatch(t *testing.T) {
	kid := []byte{0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC}
	init := tencBox(kid)

	set, err := ParseKeySet("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa:0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	_, err = decryptFMP4([]byte{0, 0, 0, 8, 'f', 'r', 'e', 'e'}, init, set)
	require.Error(t, err)
	assert.True(t, errors.Is(err, proxyerr.ErrForbidden))
}

func TestDecryptorRequiresInitForFMP4(t *testing.T) {
	set, err := ParseKeySet("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	d := Decryptor{Method: MethodCENC, Keys: set, IV: make([]byte, 16)}
	_, err = d.Decrypt([]byte{0, 0, 0, 8, 'm', 'o', 'o', 'f'}, nil, hls.FormatMP4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, proxyerr.ErrBadRequest))
}

func TestDecryptorRejectsMismatchedCombination(t *testing.T) {
	set, err := ParseKeySet("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	d := Decryptor{Method: MethodSSA, Keys: set, IV: make([]byte, 16)}
	_, err = d.Decrypt([]byte{0, 0, 0, 8, 'f', 't', 'y', 'p'}, nil, hls.FormatMP4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, proxyerr.ErrBadRequest))
}

func TestDecryptorSniffsFormat(t *testing.T) {
	set, err := ParseKeySet("30313233343536373839616263646566")
	require.NoError(t, err)

	// A TS-shaped body with an unknown format hint dispatches to the TS path.
	d := Decryptor{Method: MethodSSA, Keys: set, IV: make([]byte, 16)}
	body := make([]byte, tsPacketSize)
	body[0] = 0x47
	body[3] = 0x10 // payload-only, no PAT/PMT: passes through untouched
	out, err := d.Decrypt(body, nil, hls.FormatUnknown)
	require.NoError(t, err)
	assert.Equal(t, body, out)
}
