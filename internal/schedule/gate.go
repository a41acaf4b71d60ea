// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package schedule gates monitoring to a daily operating window and provides
// the interruptible sleep used by every timed wait in the relay.
package schedule

import (
	"context"
	"fmt"
	"time"
)

// MaxSleepSlice bounds a single wait for the window to open, so the window is
// re-evaluated periodically and a clock change is picked up.
const MaxSleepSlice = 30 * time.Minute

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Gate is a half-open daily window [StartHour, EndHour) in local time
type Gate struct {
	StartHour int
	EndHour   int
}

// NewGate validates and creates a gate
func NewGate(startHour, endHour int) (Gate, error) {
	if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 23 {
		return Gate{}, fmt.Errorf("schedule hours must be within 0-23 (got %d-%d)", startHour, endHour)
	}
	if startHour >= endHour {
		return Gate{}, fmt.Errorf("schedule start hour %d must be before end hour %d", startHour, endHour)
	}
	return Gate{StartHour: startHour, EndHour: endHour}, nil
}

// InWindow reports whether now's hour falls inside the window.
// Minutes and seconds are ignored.
func (g Gate) InWindow(now time.Time) bool {
	h := now.Hour()
	return g.StartHour <= h && h < g.EndHour
}

// UntilNextWindow returns the wait until the window next opens, or zero when
// now is already inside it.
func (g Gate) UntilNextWindow(now time.Time) time.Duration {
	h := now.Hour()
	y, m, d := now.Date()

	switch {
	case h < g.StartHour:
		return time.Date(y, m, d, g.StartHour, 0, 0, 0, now.Location()).Sub(now)
	case h >= g.EndHour:
		return time.Date(y, m, d+1, g.StartHour, 0, 0, 0, now.Location()).Sub(now)
	default:
		return 0
	}
}

// String returns the window as "HH:00-HH:00"
func (g Gate) String() string {
	return fmt.Sprintf("%02d:00-%02d:00", g.StartHour, g.EndHour)
}

// WaitForWindow sleeps in slices of at most MaxSleepSlice until clock reports
// a time inside the window. Returns ctx.Err() when cancelled.
func (g Gate) WaitForWindow(ctx context.Context, clock func() time.Time, sleep SleepFunc) error {
	for {
		now := clock()
		if g.InWindow(now) {
			return nil
		}
		wait := g.UntilNextWindow(now)
		if wait > MaxSleepSlice {
			wait = MaxSleepSlice
		}
		if wait <= 0 {
			wait = time.Second
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Sleep waits for d with context cancellation support
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
