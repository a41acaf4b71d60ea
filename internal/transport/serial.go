// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialOptions configures a serial BLE-UART bridge transport
type SerialOptions struct {
	// Port pins discovery to one port. When empty every serial port is offered.
	Port string
	Baud int
	// DeviceName is reported for each port, since a transparent bridge does
	// not relay the peripheral's advertised name.
	DeviceName string
}

// SerialTransport reaches the regulator through a BLE-UART bridge dongle
// that shows up as a serial port
type SerialTransport struct {
	opts SerialOptions
}

// NewSerial creates a serial transport
func NewSerial(opts SerialOptions) *SerialTransport {
	if opts.Baud <= 0 {
		opts.Baud = 115200
	}
	return &SerialTransport{opts: opts}
}

// Discover implements Transport
func (s *SerialTransport) Discover(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if s.opts.Port != "" {
		return []Device{{Name: s.opts.DeviceName, Address: s.opts.Port}}, nil
	}

	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	devices := make([]Device, 0, len(ports))
	for _, p := range ports {
		devices = append(devices, Device{Name: s.opts.DeviceName, Address: p})
	}
	return devices, nil
}

// Connect implements Transport
func (s *SerialTransport) Connect(ctx context.Context, address string) (Link, error) {
	mode := &serial.Mode{
		BaudRate: s.opts.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(address, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", address, err)
	}

	return newStreamLink(port), nil
}

// Close implements Transport
func (s *SerialTransport) Close() error {
	return nil
}

// String describes the transport for status output
func (s *SerialTransport) String() string {
	if s.opts.Port == "" {
		return fmt.Sprintf("Serial: auto @ %d baud", s.opts.Baud)
	}
	return fmt.Sprintf("Serial: %s @ %d baud", s.opts.Port, s.opts.Baud)
}
