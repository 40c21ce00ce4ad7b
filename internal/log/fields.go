// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldComponent = "component"

	// Process fields
	FieldEvent    = "event"
	FieldEndpoint = "endpoint"

	// Stream fields
	FieldURL    = "url"
	FieldMethod = "method"
	FieldFormat = "format"
	FieldBytes  = "bytes"
	FieldStatus = "status"
)
