// SPDX-License-Identifier: MIT

package decrypt

import (
	"fmt"

	"github.com/hlsgate/hlsgate/internal/hls"
	"github.com/hlsgate/hlsgate/internal/proxyerr"
)

// Decryptor holds the crypto context for one segment request.
type Decryptor struct {
	Method Method
	Keys   KeySet
	IV     []byte // 16 bytes; zero IV when the playlist supplied none
}

// Decrypt dispatches on method and container format. The init segment is
// required for the fMP4 paths; format may be FormatUnknown, in which case it
// is sniffed from the segment bytes.
func (d Decryptor) Decrypt(data, init []byte, format hls.Format) ([]byte, error) {
	if format == hls.FormatUnknown {
		format = hls.FormatFromBytes(data)
	}

	switch {
	case d.Method == MethodSSA && format == hls.FormatTS:
		return DecryptTS(data, d.Keys.First(), d.IV)

	case d.Method == MethodSSA && format == hls.FormatAAC:
		return DecryptADTS(data, d.Keys.First(), d.IV)

	case (d.Method == MethodSSACTR || d.Method == MethodCENC) && format == hls.FormatMP4:
		if init == nil {
			return nil, fmt.Errorf("method %s requires an init segment: %w", d.Method, proxyerr.ErrBadRequest)
		}
		return decryptFMP4(data, init, d.Keys)
	}

	return nil, fmt.Errorf("unsupported method/format combination %s/%s: %w", d.Method, format.Ext(), proxyerr.ErrBadRequest)
}
