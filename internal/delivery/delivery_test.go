// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aquastat/aquastat/pkg/corelec"
)

// ============================================================
// Test Helpers
// ============================================================

func testMeasurement() corelec.Measurement {
	return corelec.Measurement{
		Timestamp:          time.Date(2026, 7, 1, 10, 30, 0, 0, time.UTC),
		PH:                 7.256,
		Redox:              701.4,
		Temperature:        26.34,
		Salt:               4.46,
		Alarm:              1,
		Warning:            2,
		AlarmRedox:         3,
		RegulatorType:      4,
		PumpPlusActive:     true,
		PumpChlorineActive: true,
	}
}

type countingTracker struct {
	successes   int
	failures    int
	lastSuccess time.Time
}

func (t *countingTracker) DeliverySucceeded(at time.Time) {
	t.successes++
	t.failures = 0
	t.lastSuccess = at
}

func (t *countingTracker) DeliveryFailed() {
	t.failures++
}

type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

// statusServer answers with the next status in codes, repeating the last one
func statusServer(t *testing.T, codes ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(codes) {
			n = len(codes) - 1
		}
		w.WriteHeader(codes[n])
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// ============================================================
// Payload Tests
// ============================================================

func TestNewPayload_Rounding(t *testing.T) {
	p := NewPayload(testMeasurement())

	if p.PH != 7.26 {
		t.Errorf("PH = %v, want 7.26", p.PH)
	}
	if p.Redox != 701 {
		t.Errorf("Redox = %v, want 701", p.Redox)
	}
	if p.Temperature != 26.3 {
		t.Errorf("Temperature = %v, want 26.3", p.Temperature)
	}
	if p.Salt != 4.5 {
		t.Errorf("Salt = %v, want 4.5", p.Salt)
	}
	if p.Timestamp != "2026-07-01T10:30:00Z" {
		t.Errorf("Timestamp = %q", p.Timestamp)
	}
}

func TestPayload_JSONFields(t *testing.T) {
	data, err := json.Marshal(NewPayload(testMeasurement()))
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{
		"timestamp", "ph", "redox", "temperature", "salt", "alarm", "warning", "alarm_redox",
		"regulator_type", "pump_plus_active", "pump_minus_active", "pump_chlore_active", "filter_relay_active",
	} {
		if _, ok := body[key]; !ok {
			t.Errorf("Missing key %q in %s", key, data)
		}
	}
	if body["pump_chlore_active"] != true {
		t.Errorf("pump_chlore_active = %v", body["pump_chlore_active"])
	}
}

// ============================================================
// HTTP Sink Tests
// ============================================================

func TestHTTPSink_Post(t *testing.T) {
	var gotBody Payload
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink := NewHTTPSink(HTTPSinkOptions{URL: srv.URL, Timeout: time.Second, UserAgent: "aquastat/test"})
	if err := sink.Post(context.Background(), testMeasurement()); err != nil {
		t.Fatalf("Post: %v", err)
	}

	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", gotHeaders.Get("Content-Type"))
	}
	if gotHeaders.Get("User-Agent") != "aquastat/test" {
		t.Errorf("User-Agent = %q", gotHeaders.Get("User-Agent"))
	}
	if gotBody.PH != 7.26 {
		t.Errorf("posted ph = %v", gotBody.PH)
	}
}

func TestHTTPSink_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewHTTPSink(HTTPSinkOptions{URL: srv.URL, Timeout: time.Second}).Post(context.Background(), testMeasurement())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if se.Code != http.StatusServiceUnavailable || !strings.Contains(se.Body, "database unavailable") {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestHTTPSink_Probe(t *testing.T) {
	ok, _ := statusServer(t, http.StatusOK)
	down, _ := statusServer(t, http.StatusBadGateway)

	if err := NewHTTPSink(HTTPSinkOptions{HealthURL: ok.URL}).Probe(context.Background()); err != nil {
		t.Errorf("Probe healthy: %v", err)
	}
	if err := NewHTTPSink(HTTPSinkOptions{HealthURL: down.URL}).Probe(context.Background()); err == nil {
		t.Error("Expected probe error")
	}
	if err := NewHTTPSink(HTTPSinkOptions{}).Probe(context.Background()); err != nil {
		t.Errorf("Probe without URL should be a no-op: %v", err)
	}
}

// ============================================================
// Client Tests
// ============================================================

func TestClient_FailTwiceThenSucceed(t *testing.T) {
	srv, calls := statusServer(t, 500, 502, 200)
	rec := &recordingSleep{}
	tr := &countingTracker{failures: 4}

	c := NewClient(
		NewHTTPSink(HTTPSinkOptions{URL: srv.URL, Timeout: time.Second}),
		ClientOptions{MaxAttempts: 3, BackoffUnit: time.Second, Sleep: rec.sleep},
		zerolog.Nop(),
	)

	if err := c.Send(context.Background(), testMeasurement(), tr); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if atomic.LoadInt32(calls) != 3 {
		t.Errorf("calls = %d, want 3", *calls)
	}
	if tr.failures != 0 || tr.successes != 1 || tr.lastSuccess.IsZero() {
		t.Errorf("tracker = %+v, want reset failures and recorded success", tr)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(rec.delays) != len(want) || rec.delays[0] != want[0] || rec.delays[1] != want[1] {
		t.Errorf("delays = %v, want %v", rec.delays, want)
	}
}

func TestClient_AlwaysFails(t *testing.T) {
	srv, calls := statusServer(t, http.StatusInternalServerError)
	rec := &recordingSleep{}
	tr := &countingTracker{}

	c := NewClient(
		NewHTTPSink(HTTPSinkOptions{URL: srv.URL, Timeout: time.Second}),
		ClientOptions{MaxAttempts: 4, BackoffUnit: time.Millisecond, Sleep: rec.sleep},
		zerolog.Nop(),
	)

	err := c.Send(context.Background(), testMeasurement(), tr)
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("Expected ErrDeliveryFailed, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Errorf("Expected wrapped StatusError, got %v", err)
	}
	if atomic.LoadInt32(calls) != 4 {
		t.Errorf("calls = %d, want exactly 4", *calls)
	}
	if tr.failures != 1 || tr.successes != 0 {
		t.Errorf("tracker = %+v", tr)
	}

	want := []time.Duration{1 * time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}
	if len(rec.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", rec.delays, want)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, rec.delays[i], want[i])
		}
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := &countingTracker{}
	c := NewClient(
		NewHTTPSink(HTTPSinkOptions{URL: url, Timeout: time.Second}),
		ClientOptions{MaxAttempts: 2, Sleep: (&recordingSleep{}).sleep},
		zerolog.Nop(),
	)
	if err := c.Send(context.Background(), testMeasurement(), tr); !errors.Is(err, ErrDeliveryFailed) {
		t.Errorf("Expected ErrDeliveryFailed, got %v", err)
	}
	if tr.failures != 1 {
		t.Errorf("failures = %d, want 1", tr.failures)
	}
}

func TestClient_CancelledDuringBackoff(t *testing.T) {
	srv, _ := statusServer(t, http.StatusInternalServerError)
	ctx, cancel := context.WithCancel(context.Background())

	sleep := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	tr := &countingTracker{}
	c := NewClient(
		NewHTTPSink(HTTPSinkOptions{URL: srv.URL, Timeout: time.Second}),
		ClientOptions{MaxAttempts: 3, Sleep: sleep},
		zerolog.Nop(),
	)

	if err := c.Send(ctx, testMeasurement(), tr); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if tr.failures != 0 {
		t.Errorf("Cancellation must not count as a delivery failure")
	}
}

// ============================================================
// Reporter Tests
// ============================================================

func TestReporter_Report(t *testing.T) {
	var got ErrorEvent
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	r := NewReporter(srv.URL, time.Second, "aquastat/test", zerolog.Nop())
	r.Report(context.Background(), "DeviceNotFound", "no regulator found", map[string]any{"session_id": "abc"})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if got.ErrorType != "DeviceNotFound" || got.ErrorMessage != "no regulator found" || got.Source != DefaultSource {
		t.Errorf("event = %+v", got)
	}
	if got.Context["session_id"] != "abc" || got.Timestamp == "" {
		t.Errorf("event context/timestamp = %+v", got)
	}
}

func TestReporter_NeverRetries(t *testing.T) {
	srv, calls := statusServer(t, http.StatusInternalServerError)

	r := NewReporter(srv.URL, time.Second, "", zerolog.Nop())
	r.Report(context.Background(), "ConnectFailed", "boom", nil)

	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("calls = %d, want exactly 1", *calls)
	}
}

func TestReporter_Disabled(t *testing.T) {
	var r *Reporter
	r.Report(context.Background(), "x", "y", nil)

	NewReporter("", time.Second, "", zerolog.Nop()).Report(context.Background(), "x", "y", nil)
}

// ============================================================
// Other Sinks
// ============================================================

func TestLogSink(t *testing.T) {
	s := NewLogSink(zerolog.Nop())
	if s.Name() != "log" {
		t.Errorf("Name = %q", s.Name())
	}
	if err := s.Post(context.Background(), testMeasurement()); err != nil {
		t.Errorf("Post: %v", err)
	}
	if err := s.Probe(context.Background()); err != nil {
		t.Errorf("Probe: %v", err)
	}
}

func TestCreateTableQuery(t *testing.T) {
	q := createTableQuery("pool")
	for _, col := range []string{"CREATE TABLE IF NOT EXISTS pool", "ph Float64", "pump_chlore_active Bool", "MergeTree"} {
		if !strings.Contains(q, col) {
			t.Errorf("query missing %q", col)
		}
	}
}
