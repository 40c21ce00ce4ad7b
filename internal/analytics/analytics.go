// SPDX-License-Identifier: MIT

// Package analytics collects per-request records and hands them to a
// pluggable sink. Recording is non-blocking: when the buffer is full the
// record is dropped rather than stalling the request path.
package analytics

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hlsgate/hlsgate/internal/log"
)

// Record describes one handled request. Header values and key material are
// never recorded; only whether key material was supplied is.
type Record struct {
	RequestID   string
	Timestamp   time.Time
	Endpoint    string
	URL         string
	KeyProvided bool
	Method      string
	Decrypt     bool
	Status      int
	DurationMS  int64
	Bytes       int
	ErrorCode   string
	ClientIP    string
	UserAgent   string
}

// NewRecord starts a record for the given endpoint and upstream URL.
func NewRecord(endpoint, url string) Record {
	return Record{
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Endpoint:  endpoint,
		URL:       url,
	}
}

// Sink consumes request records.
type Sink interface {
	Log(Record)
	Close()
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) Log(Record) {}
func (NopSink) Close()     {}

// LogSink queues records on a buffered channel and emits each one through a
// zerolog logger from a single background goroutine.
type LogSink struct {
	ch     chan Record
	done   chan struct{}
	logger zerolog.Logger
}

// NewLogSink starts the background consumer. Buffer is the channel depth;
// overflow drops records.
func NewLogSink(buffer int) *LogSink {
	if buffer < 1 {
		buffer = 256
	}
	s := &LogSink{
		ch:     make(chan Record, buffer),
		done:   make(chan struct{}),
		logger: log.WithComponent("analytics"),
	}
	go s.run()
	return s
}

// Log enqueues a record, dropping it when the buffer is full.
func (s *LogSink) Log(r Record) {
	select {
	case s.ch <- r:
	default:
	}
}

// Close drains pending records and stops the consumer.
func (s *LogSink) Close() {
	close(s.ch)
	<-s.done
}

func (s *LogSink) run() {
	defer close(s.done)
	for r := range s.ch {
		ev := s.logger.Info().
			Str("request_id", r.RequestID).
			Time("ts", r.Timestamp).
			Str("endpoint", r.Endpoint).
			Str("url", r.URL).
			Bool("key_provided", r.KeyProvided).
			Bool("decrypt", r.Decrypt).
			Int("status", r.Status).
			Int64("duration_ms", r.DurationMS).
			Int("bytes", r.Bytes)
		if r.Method != "" {
			ev = ev.Str("method", r.Method)
		}
		if r.ErrorCode != "" {
			ev = ev.Str("error_code", r.ErrorCode)
		}
		if r.ClientIP != "" {
			ev = ev.Str("client_ip", r.ClientIP)
		}
		if r.UserAgent != "" {
			ev = ev.Str("user_agent", r.UserAgent)
		}
		ev.Msg("request")
	}
}
