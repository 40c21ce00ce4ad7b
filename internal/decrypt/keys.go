// SPDX-License-Identifier: MIT

// Package decrypt strips DRM from media segments: SAMPLE-AES for MPEG-TS and
// ADTS audio, SAMPLE-AES-CTR and CENC for fragmented MP4.
package decrypt

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/hlsgate/hlsgate/internal/proxyerr"
)

// KeyEntry is one client-supplied key, optionally bound to a KID.
type KeyEntry struct {
	KID []byte // nil for bare keys
	Key []byte // always 16 bytes
}

// KeySet is the ordered list of keys from the "k" query parameter.
type KeySet []KeyEntry

// ParseKeySet parses the "k" grammar: comma-separated entries, each either
// HEX_KID:HEX_KEY or a bare HEX_KEY. Hex accepts upper/lower case with an
// optional 0x prefix; odd-length hex and keys that are not 16 bytes are
// BadRequest.
func ParseKeySet(s string) (KeySet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty key parameter: %w", proxyerr.ErrBadRequest)
	}

	var set KeySet
	for _, entry := range strings.Split(s, ",") {
		kidPart, keyPart, hasKID := strings.Cut(strings.TrimSpace(entry), ":")
		if !hasKID {
			keyPart = kidPart
			kidPart = ""
		}

		key, err := decodeHex(keyPart)
		if err != nil {
			return nil, err
		}
		if len(key) != 16 {
			return nil, fmt.Errorf("key must be 16 bytes, got %d: %w", len(key), proxyerr.ErrBadRequest)
		}

		var kid []byte
		if kidPart != "" {
			kid, err = decodeHex(kidPart)
			if err != nil {
				return nil, err
			}
		}
		set = append(set, KeyEntry{KID: kid, Key: key})
	}
	return set, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", proxyerr.ErrBadRequest)
	}
	return b, nil
}

// First returns the first key in the set.
func (s KeySet) First() []byte {
	if len(s) == 0 {
		return nil
	}
	return s[0].Key
}

// ForKID selects the key matching kid. A nil kid, or a set whose entries
// carry no KIDs, selects the first key. A kid that matches none of the
// provided KIDs is Forbidden.
func (s KeySet) ForKID(kid []byte) ([]byte, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("no keys supplied: %w", proxyerr.ErrBadRequest)
	}
	if kid == nil {
		return s[0].Key, nil
	}
	hasKIDs := false
	for _, e := range s {
		if e.KID == nil {
			continue
		}
		hasKIDs = true
		if bytes.Equal(e.KID, kid) {
			return e.Key, nil
		}
	}
	if !hasKIDs {
		return s[0].Key, nil
	}
	return nil, fmt.Errorf("no key for KID %s: %w", hex.EncodeToString(kid), proxyerr.ErrForbidden)
}

// String re-emits the set in the "k" parameter grammar, lowercase hex.
func (s KeySet) String() string {
	parts := make([]string, len(s))
	for i, e := range s {
		if e.KID != nil {
			parts[i] = hex.EncodeToString(e.KID) + ":" + hex.EncodeToString(e.Key)
		} else {
			parts[i] = hex.EncodeToString(e.Key)
		}
	}
	return strings.Join(parts, ",")
}

// ParseIV parses the "iv" parameter: 32 hex chars with an optional 0x
// prefix. An empty value yields a zero IV.
func ParseIV(s string) ([]byte, error) {
	if strings.TrimSpace(s) == "" {
		return make([]byte, 16), nil
	}
	iv, err := decodeHex(s)
	if err != nil {
		return nil, err
	}
	if len(iv) != 16 {
		return nil, fmt.Errorf("iv must be 16 bytes, got %d: %w", len(iv), proxyerr.ErrBadRequest)
	}
	return iv, nil
}
