// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"

	"github.com/hlsgate/hlsgate/internal/log"
	"github.com/hlsgate/hlsgate/internal/proxyerr"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the uniform error response shape.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// kindMessage maps error codes to short bodies. Offending values stay out of
// responses so credentials embedded in params never echo back.
var kindMessage = map[string]string{
	"BAD_REQUEST":       "malformed request parameter",
	"KEY_NOT_FOUND":     "no key matches the segment KID",
	"DECRYPTION_FAILED": "segment could not be decrypted",
	"FETCH_TIMEOUT":     "upstream fetch timed out",
	"FETCH_FAILED":      "upstream fetch failed",
	"UPSTREAM_STATUS":   "upstream returned an error status",
	"INTERNAL_ERROR":    "internal error",
}

// writeError logs the full error with request correlation and answers with
// the mapped status and a short diagnostic body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := proxyerr.HTTPStatus(err)
	code := proxyerr.Code(err)

	logger := log.WithComponentFromContext(r.Context(), "api")
	ev := logger.Warn()
	if status >= 500 {
		ev = logger.Error()
	}
	ev.Err(err).
		Int("status", status).
		Str("code", code).
		Str("path", r.URL.Path).
		Msg("request failed")

	msg := kindMessage[code]
	if msg == "" {
		msg = "request failed"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}
