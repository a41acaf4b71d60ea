// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aquastat/aquastat/pkg/corelec"
)

// HTTPSinkOptions configures an HTTPSink
type HTTPSinkOptions struct {
	URL       string
	HealthURL string
	Timeout   time.Duration
	UserAgent string
}

// HTTPSink posts measurements as JSON to a REST endpoint
type HTTPSink struct {
	opts   HTTPSinkOptions
	client *http.Client
}

// NewHTTPSink creates an HTTP sink
func NewHTTPSink(opts HTTPSinkOptions) *HTTPSink {
	return &HTTPSink{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// Name implements Sink
func (s *HTTPSink) Name() string { return "http" }

// Post implements Sink. Any 2xx status is success.
func (s *HTTPSink) Post(ctx context.Context, m corelec.Measurement) error {
	body, err := json.Marshal(NewPayload(m))
	if err != nil {
		return fmt.Errorf("failed to encode measurement: %w", err)
	}
	return postJSON(ctx, s.client, s.opts.URL, s.opts.UserAgent, body)
}

// Probe implements Sink with a GET on the health URL
func (s *HTTPSink) Probe(ctx context.Context) error {
	return probeURL(ctx, s.opts.HealthURL)
}

// Close implements Sink
func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url, userAgent string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func probeURL(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
}
