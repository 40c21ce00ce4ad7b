// SPDX-License-Identifier: MIT

package upstream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hlsgate/hlsgate/internal/proxyerr"
)

// Headers is a set of HTTP headers forwarded to the origin. Decoding stores
// names in canonical form; map lookups are exact-key.
type Headers map[string]string

// DecodeHeaders decodes the URL-safe base64 JSON header encoding used by the
// h/sh query parameters. The empty string decodes to the empty set. Decoding
// is strict: invalid base64 or JSON that is not an object of strings is a
// BadRequest. Exact-duplicate JSON keys resolve last-wins; names that differ
// only in case fold to one entry whose value is not defined by input order.
func DecodeHeaders(encoded string) (Headers, error) {
	if encoded == "" {
		return Headers{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		// Tolerate padded input from clients that use standard base64url.
		raw, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("header encoding is not valid base64url: %w", proxyerr.ErrBadRequest)
		}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("header encoding is not a JSON object: %w", proxyerr.ErrBadRequest)
	}

	h := make(Headers, len(decoded))
	for name, v := range decoded {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("header %q value is not a string: %w", name, proxyerr.ErrBadRequest)
		}
		h[http.CanonicalHeaderKey(name)] = s
	}
	return h, nil
}

// EncodeHeaders is the inverse of DecodeHeaders. The empty set encodes to
// the empty string.
func EncodeHeaders(h Headers) (string, error) {
	if len(h) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("encode headers: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Apply sets the headers on an outbound request.
func (h Headers) Apply(req *http.Request) {
	for name, value := range h {
		req.Header.Set(name, value)
	}
}
