// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

// Package httputils provides utility functions for working with HTTP.
package httputils

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"
)

/////////////////////////////////////////
/// RountTrippers

// LoggingRoundTripper adds a very primitive logging to a http transaction.
type LoggingRoundTripper struct {
	Transport http.RoundTripper
	Writer    io.Writer
	DumpBody  bool
}

// reduce the content the liens.
func abbreviate(lines []string, prefix rune) []string {
	const maxLines, maxChars = 2048, 512

	for i, line := range lines {
		if i < maxLines {
			lines[i] = fmt.Sprintf("%c %s", prefix, line)
		} else {
			break
		}
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		lines = append(lines, "…")
	}

	for i, line := range lines {
		if len(line) > maxChars {
			lines[i] = line[0:maxChars] + "…"
		}
	}

	return lines
}

func (t *LoggingRoundTripper) dumpRequest(req *http.Request) error {
	dump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines := abbreviate(strings.Split(string(dump), "\n"), '>')
	lines = append(lines, "")
	_, err = fmt.Fprint(t.Writer, strings.Join(lines, "\n"))

	return err
}

func (t *LoggingRoundTripper) dumpResponse(resp *http.Response, duration time.Duration) error {
	dump, err := httputil.DumpResponse(resp, t.DumpBody)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines := abbreviate(strings.Split(string(dump), "\n"), '<')

	_, err = fmt.Fprintf(t.Writer, "< RESPONSE: [%v]\n", duration)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines = append(lines, "")
	_, err = fmt.Fprint(t.Writer, strings.Join(lines, "\n"))

	return err
}

// RoundTrip implements the http.RoundTripper interface.
func (t *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Writer == nil {
		return t.Transport.RoundTrip(req)
	}

	if err := t.dumpRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := t.dumpResponse(resp, time.Since(start)); err != nil {
		return nil, err
	}

	return resp, nil
}

// AppendRequestHeadersRoundTripper adds headers to the request.
type AppendRequestHeadersRoundTripper struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

// RoundTrip implements the http.RoundTripper interface.
func (t *AppendRequestHeadersRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.Transport.RoundTrip(req)

	return resp, err
}

// RetryRoundTripper retries requests without a body on transport errors and
// retryable 5xx responses, sleeping 2^attempt seconds between tries, capped
// at MaxDelay.
type RetryRoundTripper struct {
	Transport http.RoundTripper
	Retries   int
	MaxDelay  time.Duration

	// Sleep is overridable for tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

func (t *RetryRoundTripper) backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second //nolint:gosec // attempt is small
	if t.MaxDelay > 0 && d > t.MaxDelay {
		d = t.MaxDelay
	}

	return d
}

func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError && code != http.StatusNotImplemented
}

// RoundTrip implements the http.RoundTripper interface.
func (t *RetryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil || t.Retries <= 0 {
		return t.Transport.RoundTrip(req)
	}

	sleep := t.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var (
		resp *http.Response
		err  error
	)

	for attempt := 0; attempt <= t.Retries; attempt++ {
		if attempt > 0 {
			sleep(t.backoff(attempt - 1))
		}

		resp, err = t.Transport.RoundTrip(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, err
			}

			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		// Drain so the connection can be reused by the retry.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, fmt.Errorf("giving up after %d attempts: %w", t.Retries+1, err)
	}

	return resp, nil
}
