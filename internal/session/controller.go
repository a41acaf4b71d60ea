// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aquastat/aquastat/internal/delivery"
	"github.com/aquastat/aquastat/internal/metrics"
	"github.com/aquastat/aquastat/internal/schedule"
	"github.com/aquastat/aquastat/internal/transport"
	"github.com/aquastat/aquastat/pkg/corelec"
)

// Deliverer sends measurements and probes the sink
type Deliverer interface {
	Send(ctx context.Context, m corelec.Measurement, tr delivery.Tracker) error
	Probe(ctx context.Context) error
}

// Reporter posts out-of-band error events
type Reporter interface {
	Report(ctx context.Context, kind, message string, details map[string]any)
}

// Options configures a Controller. Zero values take the defaults below.
type Options struct {
	Gate schedule.Gate

	Names        []string
	FuzzyTokens  []string
	ExactTimeout time.Duration
	FuzzyTimeout time.Duration

	ConnectAttempts    int
	ConnectBackoffUnit time.Duration // wait 5*n units after failed attempt n

	ServiceUUID        string
	CharacteristicUUID string

	InitDelay      time.Duration
	PollInterval   time.Duration
	HealthInterval time.Duration
	StaleAfter     time.Duration

	// WindowCheck bounds how long monitoring may outlast the operating
	// window. The effective period is never longer than PollInterval.
	WindowCheck time.Duration

	RestartBackoffUnit time.Duration // wait min(60, 10*failures) units after a session error

	QueueSize int
	Assembler corelec.AssemblerOptions

	Sleep   schedule.SleepFunc
	Now     func() time.Time
	OnEvent func(Event)
}

func (o *Options) setDefaults() {
	if o.Gate == (schedule.Gate{}) {
		o.Gate = schedule.Gate{StartHour: 0, EndHour: 24}
	}
	if len(o.Names) == 0 {
		o.Names = []string{"CORELEC Regulateur", "REGUL."}
	}
	if len(o.FuzzyTokens) == 0 {
		o.FuzzyTokens = []string{"corelec", "regul"}
	}
	if o.ExactTimeout <= 0 {
		o.ExactTimeout = 15 * time.Second
	}
	if o.FuzzyTimeout <= 0 {
		o.FuzzyTimeout = 30 * time.Second
	}
	if o.ConnectAttempts <= 0 {
		o.ConnectAttempts = 3
	}
	if o.ConnectBackoffUnit <= 0 {
		o.ConnectBackoffUnit = time.Second
	}
	if o.ServiceUUID == "" {
		o.ServiceUUID = corelec.UARTServiceUUID
	}
	if o.CharacteristicUUID == "" {
		o.CharacteristicUUID = corelec.UARTCharacteristicUUID
	}
	if o.InitDelay <= 0 {
		o.InitDelay = 800 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = 5 * time.Minute
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 5 * time.Minute
	}
	if o.WindowCheck <= 0 {
		o.WindowCheck = time.Minute
	}
	if o.RestartBackoffUnit <= 0 {
		o.RestartBackoffUnit = time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Sleep == nil {
		o.Sleep = schedule.Sleep
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Controller owns the session and drives it through its states. All frame
// processing and delivery happen on the goroutine that calls Run.
type Controller struct {
	transport transport.Transport
	delivery  Deliverer
	reporter  Reporter
	opts      Options
	logger    zerolog.Logger

	mu       sync.Mutex
	session  Session
	stats    *corelec.Statistics
	settings map[byte]corelec.Response

	assembler   *corelec.Assembler
	lastRejects uint64
	link        transport.Link
}

// NewController creates a controller
func NewController(t transport.Transport, d Deliverer, r Reporter, opts Options, logger zerolog.Logger) *Controller {
	opts.setDefaults()
	return &Controller{
		transport: t,
		delivery:  d,
		reporter:  r,
		opts:      opts,
		logger:    logger,
		stats:     corelec.NewStatistics(),
		settings:  make(map[byte]corelec.Response),
		assembler: corelec.NewAssemblerWithOptions(opts.Assembler),
	}
}

// Snapshot returns a copy of the current session
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Statistics returns a copy of the running statistics
func (c *Controller) Statistics() corelec.Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.stats
}

// Settings returns the last decoded response for a settings mnemonic
func (c *Controller) Settings(mnemonic byte) (corelec.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.settings[mnemonic]
	return r, ok
}

// Run executes sessions until ctx is cancelled. Session errors are reported
// and followed by a capped linear backoff; no error stops the loop.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info().
		Str("window", c.opts.Gate.String()).
		Dur("interval", c.opts.PollInterval).
		Msg("session controller starting")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !c.opts.Gate.InWindow(c.opts.Now()) {
			c.setState(StateIdle)
			c.logger.Info().
				Dur("opens_in", c.opts.Gate.UntilNextWindow(c.opts.Now())).
				Msg("outside operating window, waiting")
			if err := c.opts.Gate.WaitForWindow(ctx, c.opts.Now, c.opts.Sleep); err != nil {
				return err
			}
			continue
		}

		err := c.runSession(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			c.logger.Info().Msg("operating window closed, session ended")
			continue
		}

		if err := c.recover(ctx, err); err != nil {
			return err
		}
	}
}

// recover records a session failure, reports it, and sleeps the restart backoff
func (c *Controller) recover(ctx context.Context, sessionErr error) error {
	kind := ErrorKind(sessionErr)

	c.mu.Lock()
	c.session.Failures++
	c.session.LastError = c.opts.Now()
	failures := c.session.Failures
	id := c.session.ID
	c.mu.Unlock()

	c.setState(StateError)
	metrics.RecordSessionError(kind)

	backoff := time.Duration(min(60, 10*failures)) * c.opts.RestartBackoffUnit

	c.logger.Error().Err(sessionErr).
		Str("kind", kind).
		Int("failures", failures).
		Dur("retry_in", backoff).
		Msg("session failed")
	c.emit(Event{Kind: EventError, Err: sessionErr})

	c.reporter.Report(ctx, kind, sessionErr.Error(), map[string]any{
		"session_id": id,
		"failures":   failures,
	})

	c.setState(StateIdle)
	return c.opts.Sleep(ctx, backoff)
}

// runSession performs one discover-connect-monitor cycle. It returns nil when
// monitoring stops because the operating window closed.
func (c *Controller) runSession(ctx context.Context) error {
	c.mu.Lock()
	c.session.begin()
	c.mu.Unlock()
	c.assembler.Reset()

	defer c.teardown()

	c.setState(StateDiscovering)
	device, err := c.discover(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.session.Address = device.Address
	c.session.Device = device.Name
	c.mu.Unlock()

	c.setState(StateConnecting)
	link, err := c.connect(ctx, device.Address)
	if err != nil {
		return err
	}
	c.link = link

	c.mu.Lock()
	c.session.Failures = 0
	c.mu.Unlock()

	c.setState(StateVerifyingService)
	if err := c.verifyService(ctx, link); err != nil {
		return err
	}

	chunks := make(chan []byte, c.opts.QueueSize)
	done := make(chan struct{})
	defer close(done)

	err = link.StartNotify(ctx, c.opts.CharacteristicUUID, func(b []byte) {
		chunk := append([]byte(nil), b...)
		select {
		case chunks <- chunk:
		case <-done:
		}
	})
	if err != nil {
		return fmt.Errorf("%w: start notifications: %w", ErrTransportDisconnected, err)
	}

	c.setState(StateInitializing)
	if err := c.initialize(ctx, link); err != nil {
		return err
	}

	c.setState(StateMonitoring)
	return c.monitor(ctx, link, chunks)
}

// teardown disconnects the link, swallowing errors
func (c *Controller) teardown() {
	if c.link == nil {
		return
	}
	c.setState(StateDisconnecting)
	if err := c.link.Disconnect(); err != nil {
		c.logger.Debug().Err(err).Msg("disconnect failed")
	}
	c.link = nil
	c.logger.Info().Msg("disconnected from regulator")
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.session.State
	c.session.State = s
	c.mu.Unlock()

	if prev != s {
		c.logger.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("state change")
		metrics.SetState(s.String(), StateNames())
		c.emit(Event{Kind: EventState})
	}
}

func (c *Controller) emit(ev Event) {
	if c.opts.OnEvent == nil {
		return
	}
	ev.Time = c.opts.Now()
	c.mu.Lock()
	ev.Session = c.session
	ev.Stats = *c.stats
	c.mu.Unlock()
	c.opts.OnEvent(ev)
}

// ============================================================
// Discovery and connection
// ============================================================

func (c *Controller) discover(ctx context.Context) (transport.Device, error) {
	c.logger.Info().Strs("names", c.opts.Names).Msg("searching for regulator")

	devices, err := c.transport.Discover(ctx, c.opts.ExactTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return transport.Device{}, ctx.Err()
		}
		c.logger.Warn().Err(err).Msg("scan failed")
	}
	if d, ok := matchExact(devices, c.opts.Names); ok {
		c.logger.Info().Str("name", d.Name).Str("address", d.Address).Msg("regulator found")
		return d, nil
	}

	c.logger.Warn().Msg("no regulator found, extending search")
	devices, err = c.transport.Discover(ctx, c.opts.FuzzyTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return transport.Device{}, ctx.Err()
		}
		return transport.Device{}, fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}
	if d, ok := matchFuzzy(devices, c.opts.FuzzyTokens); ok {
		c.logger.Info().Str("name", d.Name).Str("address", d.Address).Msg("possible regulator found")
		return d, nil
	}

	return transport.Device{}, ErrDeviceNotFound
}

func matchExact(devices []transport.Device, names []string) (transport.Device, bool) {
	for _, d := range devices {
		for _, n := range names {
			if d.Name == n {
				return d, true
			}
		}
	}
	return transport.Device{}, false
}

func matchFuzzy(devices []transport.Device, tokens []string) (transport.Device, bool) {
	for _, d := range devices {
		if d.Name == "" {
			continue
		}
		name := strings.ToLower(d.Name)
		for _, tok := range tokens {
			if strings.Contains(name, strings.ToLower(tok)) {
				return d, true
			}
		}
	}
	return transport.Device{}, false
}

func (c *Controller) connect(ctx context.Context, address string) (transport.Link, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.ConnectAttempts; attempt++ {
		c.logger.Info().
			Int("attempt", attempt).
			Int("max_attempts", c.opts.ConnectAttempts).
			Str("address", address).
			Msg("connecting")

		link, err := c.transport.Connect(ctx, address)
		if err == nil {
			if link.IsConnected() {
				c.logger.Info().Msg("connected to regulator")
				return link, nil
			}
			_ = link.Disconnect()
			err = errors.New("link reports not connected")
		}
		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("connection attempt failed")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < c.opts.ConnectAttempts {
			if err := c.opts.Sleep(ctx, time.Duration(5*attempt)*c.opts.ConnectBackoffUnit); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnectFailed, c.opts.ConnectAttempts, lastErr)
}

func (c *Controller) verifyService(ctx context.Context, link transport.Link) error {
	services, err := link.Services(ctx)
	if err == nil {
		for _, s := range services {
			if strings.EqualFold(s, c.opts.ServiceUUID) {
				return nil
			}
		}
	}

	if derr := link.Disconnect(); derr != nil {
		c.logger.Debug().Err(derr).Msg("disconnect failed")
	}
	c.link = nil

	if err != nil {
		return fmt.Errorf("%w: %w", ErrServiceMissing, err)
	}
	return fmt.Errorf("%w (%s)", ErrServiceMissing, c.opts.ServiceUUID)
}

// initialize sends the init command sequence without waiting for answers
func (c *Controller) initialize(ctx context.Context, link transport.Link) error {
	c.logger.Info().Msg("initializing regulator")
	for _, cmd := range corelec.NewInitCommands() {
		if err := c.write(ctx, link, cmd); err != nil {
			return err
		}
		if err := c.opts.Sleep(ctx, c.opts.InitDelay); err != nil {
			return err
		}
	}
	c.logger.Info().Msg("initialization complete")
	return nil
}

func (c *Controller) write(ctx context.Context, link transport.Link, cmd []byte) error {
	if err := link.Write(ctx, c.opts.CharacteristicUUID, cmd); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: write '%c': %w", ErrTransportDisconnected, cmd[3], err)
	}
	c.logger.Debug().Str("command", string(rune(cmd[3]))).Msg("command sent")
	return nil
}
