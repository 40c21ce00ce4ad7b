// SPDX-License-Identifier: MIT

package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hlsgate/hlsgate/internal/hls"
	"github.com/hlsgate/hlsgate/internal/proxyerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchForwardsHeadersAndRange(t *testing.T) {
	var gotAuth, gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRange = r.Header.Get("Range")
		w.Header().Set("Content-Type", "video/mp2t")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("segment-bytes"))
	}))
	defer srv.Close()

	c := NewClient(nil)
	br := &hls.ByteRange{Length: 100, Offset: 50, HasOffset: true}
	res, err := c.Fetch(context.Background(), srv.URL, Headers{"Authorization": "Bearer t"}, br)
	require.NoError(t, err)

	assert.Equal(t, "Bearer t", gotAuth)
	assert.Equal(t, "bytes=50-149", gotRange)
	assert.Equal(t, []byte("segment-bytes"), res.Body)
	assert.Equal(t, "video/mp2t", res.ContentType)
	assert.Equal(t, http.StatusPartialContent, res.Status)
}

func TestFetchMirrorsUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(nil)
	_, err := c.Fetch(context.Background(), srv.URL, nil, nil)
	require.Error(t, err)

	var use *proxyerr.UpstreamStatusError
	require.True(t, errors.As(err, &use))
	assert.Equal(t, http.StatusForbidden, use.Status)
	assert.Equal(t, http.StatusForbidden, proxyerr.HTTPStatus(err))
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(nil)
	_, err := c.Fetch(ctx, srv.URL, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, proxyerr.ErrTimeout))
	assert.Equal(t, http.StatusGatewayTimeout, proxyerr.HTTPStatus(err))
}

func TestFetchTextRejectsBinary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0xFF, 0xFE, 0x00, 0x47})
	}))
	defer srv.Close()

	c := NewClient(nil)
	_, err := c.FetchText(context.Background(), srv.URL, nil)
	require.Error(t, err)
}

func TestFetchInvalidURL(t *testing.T) {
	c := NewClient(nil)
	_, err := c.Fetch(context.Background(), "http://bad url with spaces", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, proxyerr.ErrBadRequest))
}

func TestSafeURLStripsQuery(t *testing.T) {
	assert.Equal(t, "https://o/seg.ts", safeURL("https://o/seg.ts?token=secret"))
	assert.Equal(t, "https://o/seg.ts", safeURL("https://o/seg.ts"))
}
