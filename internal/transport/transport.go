// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the regulator link capabilities the session
// controller needs (discovery, connection, service listing, notifications,
// writes) over interchangeable backends: a serial BLE-UART bridge, a remote
// BLE gateway reached over WebSocket, and recorded capture files.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned by operations on a link that has gone down
var ErrNotConnected = errors.New("link not connected")

// Device is one advertised peripheral found by discovery
type Device struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	RSSI    int    `json:"rssi,omitempty"`
}

// NotifyFunc receives raw notification chunks. The slice is only valid for
// the duration of the call.
type NotifyFunc func(chunk []byte)

// Transport discovers and connects to devices
type Transport interface {
	// Discover scans for the given duration and returns every device seen
	Discover(ctx context.Context, timeout time.Duration) ([]Device, error)

	// Connect opens a link to the device at address
	Connect(ctx context.Context, address string) (Link, error)

	// Close releases the transport
	Close() error
}

// Link is an open connection to one device
type Link interface {
	Services(ctx context.Context) ([]string, error)
	StartNotify(ctx context.Context, characteristic string, fn NotifyFunc) error
	Write(ctx context.Context, characteristic string, data []byte) error
	Disconnect() error
	IsConnected() bool
}
