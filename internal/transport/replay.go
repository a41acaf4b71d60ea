// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aquastat/aquastat/pkg/corelec"
)

// ReplayOptions configures a capture replay transport
type ReplayOptions struct {
	Path       string
	DeviceName string
	// Speed scales the recorded gaps between chunks. 1 replays in real time,
	// 0 replays as fast as possible.
	Speed float64
}

// ReplayTransport plays back a CBOR capture file as notifications
type ReplayTransport struct {
	opts ReplayOptions
}

// NewReplay creates a replay transport
func NewReplay(opts ReplayOptions) *ReplayTransport {
	return &ReplayTransport{opts: opts}
}

// String describes the transport for status output
func (r *ReplayTransport) String() string {
	return fmt.Sprintf("Replay: %s (x%.1f)", r.opts.Path, r.opts.Speed)
}

// Discover implements Transport. The capture file is the only device.
func (r *ReplayTransport) Discover(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if _, err := os.Stat(r.opts.Path); err != nil {
		return nil, nil
	}
	return []Device{{Name: r.opts.DeviceName, Address: r.opts.Path}}, nil
}

// Connect implements Transport
func (r *ReplayTransport) Connect(ctx context.Context, address string) (Link, error) {
	f, err := os.Open(address)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", address, err)
	}
	l := &replayLink{file: f, speed: r.opts.Speed, done: make(chan struct{})}
	l.connected.Store(true)
	return l, nil
}

// Close implements Transport
func (r *ReplayTransport) Close() error {
	return nil
}

type replayLink struct {
	file      *os.File
	speed     float64
	connected atomic.Bool
	writes    atomic.Int64

	startOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

func (l *replayLink) Services(ctx context.Context) ([]string, error) {
	return []string{corelec.UARTServiceUUID}, nil
}

func (l *replayLink) StartNotify(ctx context.Context, characteristic string, fn NotifyFunc) error {
	if !l.IsConnected() {
		return ErrNotConnected
	}
	l.startOnce.Do(func() {
		go l.play(fn)
	})
	return nil
}

// play delivers every record then marks the link down, like a peripheral
// going out of range
func (l *replayLink) play(fn NotifyFunc) {
	defer l.connected.Store(false)

	reader := corelec.NewCaptureReader(l.file)
	var prev time.Time
	for {
		rec, err := reader.Next()
		if err != nil {
			return
		}

		if l.speed > 0 && !prev.IsZero() {
			gap := time.Duration(float64(rec.Time().Sub(prev)) / l.speed)
			if gap > 0 {
				timer := time.NewTimer(gap)
				select {
				case <-l.done:
					timer.Stop()
					return
				case <-timer.C:
				}
			}
		}
		prev = rec.Time()

		select {
		case <-l.done:
			return
		default:
		}
		fn(rec.Data)
	}
}

func (l *replayLink) Write(ctx context.Context, characteristic string, data []byte) error {
	if !l.IsConnected() {
		return ErrNotConnected
	}
	l.writes.Add(1)
	return nil
}

func (l *replayLink) Disconnect() error {
	var err error
	l.closeOnce.Do(func() {
		l.connected.Store(false)
		close(l.done)
		err = l.file.Close()
	})
	return err
}

func (l *replayLink) IsConnected() bool {
	return l.connected.Load()
}
