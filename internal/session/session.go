// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session runs the regulator session state machine: discovery,
// connection, service verification, initialization and monitoring, with
// the retry and backoff policy around them.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is the current connection context. The delivery counters carry
// over from one session to the next.
type Session struct {
	ID      string
	State   State
	Address string
	Device  string

	// FailedAttempts counts consecutive measurements dropped after every
	// delivery attempt failed
	FailedAttempts int
	LastSuccess    time.Time
	LastError      time.Time

	// Failures counts consecutive session failures, driving the restart backoff
	Failures int
}

// begin starts a new session, keeping the counters
func (s *Session) begin() {
	s.ID = uuid.NewString()
	s.State = StateIdle
	s.Address = ""
	s.Device = ""
}

// DeliverySucceeded implements delivery.Tracker
func (s *Session) DeliverySucceeded(at time.Time) {
	s.FailedAttempts = 0
	s.LastSuccess = at
}

// DeliveryFailed implements delivery.Tracker
func (s *Session) DeliveryFailed() {
	s.FailedAttempts++
}
