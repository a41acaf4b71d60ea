// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/aquastat/aquastat/pkg/corelec"
)

// streamLink adapts a transparent byte stream (a BLE-UART bridge) to Link.
// The bridge exposes a single UART service, so every characteristic maps to
// the same stream.
type streamLink struct {
	rwc       io.ReadWriteCloser
	connected atomic.Bool

	writeMu   sync.Mutex
	notifyMu  sync.Mutex
	notifying bool
	done      chan struct{}
	closeOnce sync.Once
}

func newStreamLink(rwc io.ReadWriteCloser) *streamLink {
	l := &streamLink{rwc: rwc, done: make(chan struct{})}
	l.connected.Store(true)
	return l
}

func (l *streamLink) Services(ctx context.Context) ([]string, error) {
	if !l.IsConnected() {
		return nil, ErrNotConnected
	}
	return []string{corelec.UARTServiceUUID}, nil
}

func (l *streamLink) StartNotify(ctx context.Context, characteristic string, fn NotifyFunc) error {
	if !l.IsConnected() {
		return ErrNotConnected
	}

	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()
	if l.notifying {
		return errors.New("notifications already started")
	}
	l.notifying = true

	go l.readLoop(fn)
	return nil
}

func (l *streamLink) readLoop(fn NotifyFunc) {
	buf := make([]byte, 256)
	for {
		n, err := l.rwc.Read(buf)
		if n > 0 {
			fn(buf[:n])
		}
		if err != nil {
			l.connected.Store(false)
			return
		}
		select {
		case <-l.done:
			return
		default:
		}
	}
}

func (l *streamLink) Write(ctx context.Context, characteristic string, data []byte) error {
	if !l.IsConnected() {
		return ErrNotConnected
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if _, err := l.rwc.Write(data); err != nil {
		l.connected.Store(false)
		return err
	}
	return nil
}

func (l *streamLink) Disconnect() error {
	var err error
	l.closeOnce.Do(func() {
		l.connected.Store(false)
		close(l.done)
		err = l.rwc.Close()
	})
	return err
}

func (l *streamLink) IsConnected() bool {
	return l.connected.Load()
}
