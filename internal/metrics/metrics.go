// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes relay counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	registerOnce sync.Once

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aquastat",
			Subsystem: "protocol",
			Name:      "frames_total",
			Help:      "Checksum-valid frames by mnemonic.",
		},
		[]string{"mnemonic"},
	)
	checksumRejects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aquastat",
			Subsystem: "protocol",
			Name:      "checksum_rejects_total",
			Help:      "Marker-delimited candidates that failed the checksum.",
		},
	)
	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aquastat",
			Subsystem: "protocol",
			Name:      "anomalies_total",
			Help:      "Measurement values outside their plausible range.",
		},
		[]string{"type"},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aquastat",
			Subsystem: "delivery",
			Name:      "measurements_total",
			Help:      "Measurement deliveries by sink and result.",
		},
		[]string{"sink", "result"},
	)
	deliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aquastat",
			Subsystem: "delivery",
			Name:      "duration_seconds",
			Help:      "Time spent delivering one measurement including retries.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"sink"},
	)
	sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "aquastat",
			Subsystem: "session",
			Name:      "state",
			Help:      "1 for the current session state, 0 otherwise.",
		},
		[]string{"state"},
	)
	sessionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aquastat",
			Subsystem: "session",
			Name:      "errors_total",
			Help:      "Session errors by kind.",
		},
		[]string{"kind"},
	)
)

// RegisterMetrics registers all collectors with the default registry
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesTotal, checksumRejects, anomaliesTotal, deliveries, deliveryDuration, sessionState, sessionErrors)
	})
}

// RecordFrame counts one checksum-valid frame
func RecordFrame(mnemonic byte) {
	RegisterMetrics()
	framesTotal.WithLabelValues(string(rune(mnemonic))).Inc()
}

// AddChecksumRejects adds n rejected candidates
func AddChecksumRejects(n uint64) {
	RegisterMetrics()
	checksumRejects.Add(float64(n))
}

// RecordAnomaly counts one out-of-range measurement value
func RecordAnomaly(kind string) {
	RegisterMetrics()
	anomaliesTotal.WithLabelValues(kind).Inc()
}

// RecordDelivery counts a delivery outcome and its duration
func RecordDelivery(sink string, success bool, duration time.Duration) {
	RegisterMetrics()
	result := "ok"
	if !success {
		result = "failed"
	}
	deliveries.WithLabelValues(sink, result).Inc()
	deliveryDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

// SetState marks state as the current session state among all known states
func SetState(state string, all []string) {
	RegisterMetrics()
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		sessionState.WithLabelValues(s).Set(v)
	}
}

// RecordSessionError counts one session error by kind
func RecordSessionError(kind string) {
	RegisterMetrics()
	sessionErrors.WithLabelValues(kind).Inc()
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	RegisterMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
