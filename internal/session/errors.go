// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"errors"

	"github.com/aquastat/aquastat/internal/delivery"
	"github.com/aquastat/aquastat/pkg/corelec"
)

// Session-level failures. Each aborts the current session and re-enters the
// outer retry loop.
var (
	ErrDeviceNotFound        = errors.New("no regulator found")
	ErrConnectFailed         = errors.New("connection failed")
	ErrServiceMissing        = errors.New("UART service not found")
	ErrTransportDisconnected = errors.New("transport disconnected")
)

// ErrorKind maps an error to the error_type used in error reports
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDeviceNotFound):
		return "DeviceNotFound"
	case errors.Is(err, ErrConnectFailed):
		return "ConnectFailed"
	case errors.Is(err, ErrServiceMissing):
		return "ServiceMissing"
	case errors.Is(err, ErrTransportDisconnected):
		return "TransportDisconnected"
	case errors.Is(err, delivery.ErrDeliveryFailed):
		return "DeliveryFailed"
	case errors.Is(err, corelec.ErrChecksumMismatch):
		return "FrameChecksumMismatch"
	default:
		return "Unknown"
	}
}
