// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSource identifies this relay in error reports
const DefaultSource = "aquastat"

// Reporter posts error events to a secondary endpoint. Each report is a
// single attempt and failures are only logged.
type Reporter struct {
	url       string
	source    string
	userAgent string
	client    *http.Client
	now       func() time.Time
	logger    zerolog.Logger
}

// NewReporter creates a reporter. An empty url disables reporting.
func NewReporter(url string, timeout time.Duration, userAgent string, logger zerolog.Logger) *Reporter {
	return &Reporter{
		url:       url,
		source:    DefaultSource,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		now:       time.Now,
		logger:    logger,
	}
}

// Report sends one error event. It never returns an error and never panics
// on a failed request.
func (r *Reporter) Report(ctx context.Context, kind, message string, details map[string]any) {
	if r == nil || r.url == "" {
		return
	}

	event := ErrorEvent{
		Timestamp:    r.now().UTC().Format(time.RFC3339Nano),
		ErrorType:    kind,
		ErrorMessage: message,
		Context:      details,
		Source:       r.source,
	}

	body, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn().Err(err).Str("error_type", kind).Msg("failed to encode error report")
		return
	}

	if err := postJSON(ctx, r.client, r.url, r.userAgent, body); err != nil {
		r.logger.Warn().Err(err).Str("error_type", kind).Msg("failed to send error report")
		return
	}
	r.logger.Debug().Str("error_type", kind).Msg("error reported")
}
