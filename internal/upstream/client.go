// SPDX-License-Identifier: MIT

// Package upstream provides the outbound HTTP client used to fetch
// manifests, segments and keys from the origin, plus the header codec for
// the h/sh query parameters.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/hlsgate/hlsgate/internal/hls"
	"github.com/hlsgate/hlsgate/internal/log"
	"github.com/hlsgate/hlsgate/internal/metrics"
	"github.com/hlsgate/hlsgate/internal/proxyerr"
)

// maxBodyBytes caps response bodies when the origin does not declare a
// length. Init segments and media segments are far below this.
const maxBodyBytes = 256 << 20

// Client fetches content from upstream servers on behalf of the player.
// Deadlines come from the request context; the zero timeout on the inner
// client is deliberate.
type Client struct {
	http *http.Client
}

// NewClient builds a Client around the given http.Client, or a default one
// when nil is passed.
func NewClient(inner *http.Client) *Client {
	if inner == nil {
		inner = &http.Client{}
	}
	return &Client{http: inner}
}

// Result is a fetched upstream response body.
type Result struct {
	Body        []byte
	ContentType string
	Status      int
}

// Fetch performs a GET against url with the supplied headers and optional
// byte range. Non-2xx responses become UpstreamStatusError with the status
// preserved for mirroring; the body is discarded beyond a short diagnostic
// prefix.
func (c *Client) Fetch(ctx context.Context, url string, headers Headers, br *hls.ByteRange) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", proxyerr.ErrBadRequest)
	}
	headers.Apply(req)
	if br != nil {
		req.Header.Set("Range", br.RangeHeader())
	}

	timer := metrics.StartUpstreamFetch()
	resp, err := c.http.Do(req)
	if err != nil {
		timer.Done("error")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("fetch %s: %w", safeURL(url), proxyerr.ErrTimeout)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch %s: %v: %w", safeURL(url), err, proxyerr.ErrUpstream)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		timer.Done(fmt.Sprintf("%d", resp.StatusCode))
		// Read a short prefix for the log, never for the client.
		prefix, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		logger := log.WithComponentFromContext(ctx, "upstream")
		logger.Warn().
			Int("status", resp.StatusCode).
			Str("url", safeURL(url)).
			Str("body_prefix", printable(prefix)).
			Msg("upstream returned error status")
		return nil, &proxyerr.UpstreamStatusError{Status: resp.StatusCode, URL: url}
	}

	body, err := readBody(resp)
	if err != nil {
		timer.Done("error")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("read %s: %w", safeURL(url), proxyerr.ErrTimeout)
		}
		return nil, fmt.Errorf("read %s: %v: %w", safeURL(url), err, proxyerr.ErrUpstream)
	}

	timer.Done("ok")
	return &Result{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Status:      resp.StatusCode,
	}, nil
}

// readBody drains the response into a buffer presized to the declared
// length, bounded by the hard cap when the length is absent or implausible.
func readBody(resp *http.Response) ([]byte, error) {
	buf := &bytes.Buffer{}
	if resp.ContentLength > 0 && resp.ContentLength <= maxBodyBytes {
		buf.Grow(int(resp.ContentLength))
	}
	n, err := io.Copy(buf, io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if n > maxBodyBytes {
		return nil, errBodyTooLarge
	}
	return buf.Bytes(), nil
}

var errBodyTooLarge = errors.New("body exceeds size cap")

// FetchText fetches a manifest body as a UTF-8 string.
func (c *Client) FetchText(ctx context.Context, url string, headers Headers) (string, error) {
	res, err := c.Fetch(ctx, url, headers, nil)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(res.Body) {
		return "", fmt.Errorf("manifest at %s is not valid UTF-8: %w", safeURL(url), proxyerr.ErrUpstream)
	}
	return string(res.Body), nil
}

// safeURL strips the query string before logging so tokens embedded in
// upstream URLs never reach the log.
func safeURL(raw string) string {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '?' {
			return raw[:i]
		}
	}
	return raw
}

func printable(b []byte) string {
	if !utf8.Valid(b) {
		return fmt.Sprintf("(%d binary bytes)", len(b))
	}
	return string(b)
}
