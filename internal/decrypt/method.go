// SPDX-License-Identifier: MIT

package decrypt

import (
	"fmt"
	"strings"

	"github.com/hlsgate/hlsgate/internal/proxyerr"
)

// Method selects the decryption path for a segment request.
type Method string

const (
	// MethodSSA is SAMPLE-AES over MPEG-TS or raw ADTS audio.
	MethodSSA Method = "ssa"
	// MethodSSACTR is SAMPLE-AES-CTR over fragmented MP4.
	MethodSSACTR Method = "ssa-ctr"
	// MethodCENC is Common Encryption over fragmented MP4.
	MethodCENC Method = "cenc"
)

// ParseMethod parses the "m" query parameter.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ssa":
		return MethodSSA, nil
	case "ssa-ctr":
		return MethodSSACTR, nil
	case "cenc":
		return MethodCENC, nil
	}
	return "", fmt.Errorf("unsupported decryption method: %w", proxyerr.ErrBadRequest)
}
