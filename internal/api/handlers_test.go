// SPDX-License-Identifier: MIT

package api

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hlsgate/hlsgate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Host:              "127.0.0.1",
		Port:              80,
		ExternalHost:      "proxy",
		ExternalScheme:    "http",
		CORSAllowedOrigin: "*",
		ManifestTimeout:   5 * time.Second,
		SegmentTimeout:    5 * time.Second,
		InitCacheSize:     8,
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := New(testConfig())
	require.NoError(t, err)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, rawURL string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, body := get(t, srv.URL+"/health")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var parsed map[string]string
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "ok", parsed["status"])
	assert.NotEmpty(t, parsed["version"])
}

func TestManifestRewrite(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		fmt.Fprintf(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1000\n%s/a.m3u8\n", "http://o")
	}))
	defer origin.Close()

	srv := newTestServer(t)
	resp, body := get(t, srv.URL+"/manifest?url="+url.QueryEscape(origin.URL+"/m.m3u8"))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.apple.mpegurl", resp.Header.Get("Content-Type"))

	lines := strings.Split(string(body), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "http://proxy/manifest?url=http%3A%2F%2Fo%2Fa.m3u8", lines[2])
}

func TestManifestMissingURL(t *testing.T) {
	srv := newTestServer(t)
	resp, body := get(t, srv.URL+"/manifest")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var parsed map[string]string
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "BAD_REQUEST", parsed["code"])
}

func TestManifestBadHeaderEncoding(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := get(t, srv.URL+"/manifest?url=http%3A%2F%2Fo%2Fm.m3u8&h=%21%21%21")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestManifestMirrorsUpstreamStatus(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer origin.Close()

	srv := newTestServer(t)
	resp, _ := get(t, srv.URL+"/manifest?url="+url.QueryEscape(origin.URL+"/m.m3u8"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSegmentPassThrough(t *testing.T) {
	var gotRange string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.Header().Set("Content-Type", "video/mp2t")
		_, _ = w.Write([]byte("raw-segment"))
	}))
	defer origin.Close()

	srv := newTestServer(t)
	resp, body := get(t, srv.URL+"/segment?url="+url.QueryEscape(origin.URL+"/seg.ts")+"&br=100%400")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp2t", resp.Header.Get("Content-Type"))
	assert.Equal(t, []byte("raw-segment"), body)
	assert.Equal(t, "bytes=0-99", gotRange)
}

func TestSegmentMethodRequiresKey(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := get(t, srv.URL+"/segment?url=http%3A%2F%2Fo%2Fseg.ts&m=ssa")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSegmentUnsupportedMethod(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := get(t, srv.URL+"/segment?url=http%3A%2F%2Fo%2Fseg.ts&m=rot13&k=0123456789abcdef0123456789abcdef")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// tencInit builds a minimal init segment holding a tenc box with the KID.
func tencInit(kid byte) []byte {
	box := make([]byte, 32)
	binary.BigEndian.PutUint32(box, 32)
	copy(box[4:8], "tenc")
	box[14] = 1
	box[15] = 8
	for i := 16; i < 32; i++ {
		box[i] = kid
	}
	return box
}

func TestSegmentKIDMismatchIsForbidden(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "init.mp4") {
			_, _ = w.Write(tencInit(0xCC))
			return
		}
		_, _ = w.Write([]byte{0, 0, 0, 8, 's', 't', 'y', 'p'})
	}))
	defer origin.Close()

	srv := newTestServer(t)
	u := srv.URL + "/segment?url=" + url.QueryEscape(origin.URL+"/seg.m4s") +
		"&m=cenc&f=mp4" +
		"&k=" + url.QueryEscape("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa:0123456789abcdef0123456789abcdef") +
		"&init=" + url.QueryEscape(origin.URL+"/init.mp4")

	resp, body := get(t, u)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "KEY_NOT_FOUND", parsed["code"])
}

func TestConcurrentSegmentsShareInitFetch(t *testing.T) {
	var initFetches atomic.Int64
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "init.mp4") {
			initFetches.Add(1)
			time.Sleep(100 * time.Millisecond)
			_, _ = w.Write([]byte{0, 0, 0, 16, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 0, 1})
			return
		}
		// One payload-only TS packet: the SAMPLE-AES walker passes it through.
		pkt := make([]byte, 188)
		pkt[0] = 0x47
		pkt[3] = 0x10
		_, _ = w.Write(pkt)
	}))
	defer origin.Close()

	srv := newTestServer(t)
	u := srv.URL + "/segment?url=" + url.QueryEscape(origin.URL+"/seg.ts") +
		"&m=ssa&f=ts&k=0123456789abcdef0123456789abcdef" +
		"&init=" + url.QueryEscape(origin.URL+"/init.mp4")

	const concurrent = 8
	var wg sync.WaitGroup
	statuses := make([]int, concurrent)
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, _ := http.Get(u)
			if resp != nil {
				statuses[i] = resp.StatusCode
				_ = resp.Body.Close()
			}
		}(i)
	}
	wg.Wait()

	for i, st := range statuses {
		assert.Equal(t, http.StatusOK, st, "request %d", i)
	}
	assert.Equal(t, int64(1), initFetches.Load(), "concurrent misses must coalesce into one init fetch")
}

func TestKeyProxy(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("0123456789abcdef"))
	}))
	defer origin.Close()

	h := url.QueryEscape("eyJBdXRob3JpemF0aW9uIjoiQmVhcmVyIGsifQ") // {"Authorization":"Bearer k"}
	srv := newTestServer(t)
	resp, body := get(t, srv.URL+"/key?url="+url.QueryEscape(origin.URL+"/k")+"&h="+h)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("0123456789abcdef"), body)
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := get(t, srv.URL+"/health")
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/manifest", nil)
	require.NoError(t, err)
	pre, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer pre.Body.Close()
	assert.Equal(t, http.StatusNoContent, pre.StatusCode)
	assert.Contains(t, pre.Header.Get("Access-Control-Allow-Methods"), "GET")
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := get(t, srv.URL+"/health")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
