// SPDX-License-Identifier: MIT

package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRecordAssignsIdentity(t *testing.T) {
	r := NewRecord("manifest", "http://o/m.m3u8")
	assert.NotEmpty(t, r.RequestID)
	assert.Equal(t, "manifest", r.Endpoint)
	assert.Equal(t, "http://o/m.m3u8", r.URL)
	assert.WithinDuration(t, time.Now().UTC(), r.Timestamp, time.Second)
}

func TestLogSinkDrainsOnClose(t *testing.T) {
	s := NewLogSink(8)
	for i := 0; i < 8; i++ {
		s.Log(NewRecord("segment", "http://o/seg.ts"))
	}
	s.Close() // must not hang or panic
}

func TestLogSinkOverflowDoesNotBlock(t *testing.T) {
	s := NewLogSink(1)
	defer s.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			s.Log(NewRecord("segment", "http://o/seg.ts"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log blocked on a full buffer")
	}
}
