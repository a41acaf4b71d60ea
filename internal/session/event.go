// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"time"

	"github.com/aquastat/aquastat/pkg/corelec"
)

// EventKind identifies what an Event reports
type EventKind int

const (
	EventState EventKind = iota
	EventMeasurement
	EventSettings
	EventDeliveryFailed
	EventError
)

// Event is emitted to Options.OnEvent on state changes, decoded frames and
// failures. Session and Stats are snapshots taken at emit time.
type Event struct {
	Kind    EventKind
	Time    time.Time
	Session Session
	Stats   corelec.Statistics

	Measurement corelec.Measurement
	Anomalies   []corelec.ValidationError
	Settings    corelec.Response
	Err         error
}
