// SPDX-License-Identifier: MIT

package decrypt

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"41.neocities.org/sofia"
	"github.com/hlsgate/hlsgate/internal/proxyerr"
)

// decryptFMP4 strips CENC-family protection (cenc, cbcs) from a fragmented
// MP4 media segment. The init segment supplies the track's default KID for
// key selection; the per-sample IVs and subsample layout come from the
// segment's own senc boxes.
func decryptFMP4(data, init []byte, keys KeySet) ([]byte, error) {
	key, err := keys.ForKID(defaultKID(init))
	if err != nil {
		return nil, err
	}

	boxes, err := sofia.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse fMP4 segment: %v: %w", err, proxyerr.ErrUnprocessable)
	}
	if err := sofia.Decrypt(boxes, key); err != nil {
		return nil, fmt.Errorf("decrypt fMP4 segment: %v: %w", err, proxyerr.ErrUnprocessable)
	}

	var out bytes.Buffer
	out.Grow(len(data))
	for _, box := range boxes {
		out.Write(box.Encode())
	}
	return out.Bytes(), nil
}

// defaultKID extracts the default KID from the tenc box of an init segment.
// Returns nil when no tenc box is present, in which case key selection falls
// back to the first supplied key.
//
// tenc layout (ISO/IEC 23001-7): fullbox version+flags (4), reserved (1),
// pattern byte (1), default_isProtected (1), default_Per_Sample_IV_Size (1),
// default_KID (16).
func defaultKID(init []byte) []byte {
	for i := 4; i+4 <= len(init); i++ {
		if string(init[i:i+4]) != "tenc" {
			continue
		}
		boxStart := i - 4
		size := int(binary.BigEndian.Uint32(init[boxStart : boxStart+4]))
		if size < 8+4+4+16 || boxStart+size > len(init) {
			continue
		}
		kidOff := i + 4 + 4 + 4
		return init[kidOff : kidOff+16]
	}
	return nil
}
