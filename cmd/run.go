// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aquastat/aquastat/internal/config"
	"github.com/aquastat/aquastat/internal/delivery"
	"github.com/aquastat/aquastat/internal/logging"
	"github.com/aquastat/aquastat/internal/metrics"
	"github.com/aquastat/aquastat/internal/schedule"
	"github.com/aquastat/aquastat/internal/session"
	"github.com/aquastat/aquastat/internal/transport"
	"github.com/aquastat/aquastat/pkg/corelec"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Relay regulator measurements to the configured sink",
	Long: `Run the relay until interrupted.

Inside the operating window the regulator is discovered, connected, initialized
and polled; every decoded measurement is delivered to the configured sink with
bounded retries. Session failures are reported to the error endpoint and retried
with a capped linear backoff. Outside the window the relay sleeps.

Send SIGINT or SIGTERM to stop; the link is disconnected before exiting.`,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// relay holds everything a running controller needs, so run and watch build
// it the same way
type relay struct {
	cfg        config.Config
	logger     zerolog.Logger
	transport  transport.Transport
	sink       delivery.Sink
	controller *session.Controller
	info       string
}

func (r *relay) Close() {
	if r.sink != nil {
		r.sink.Close()
	}
	if r.transport != nil {
		r.transport.Close()
	}
}

// newRelay wires transport, sink, reporter and controller from cfg. onEvent
// may be nil.
func newRelay(ctx context.Context, cfg config.Config, logOut io.Writer, onEvent func(session.Event)) (*relay, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New("aquastat", level, logOut)

	gate, err := schedule.NewGate(cfg.Schedule.StartHour, cfg.Schedule.EndHour)
	if err != nil {
		return nil, err
	}

	r := &relay{cfg: cfg, logger: logger}

	r.transport, r.info, err = OpenTransport(cfg)
	if err != nil {
		return nil, err
	}

	deliveryLog := logging.Component(logger, "delivery")
	r.sink, err = delivery.Open(ctx, cfg.Sink, userAgent(), deliveryLog)
	if err != nil {
		r.Close()
		return nil, err
	}

	client := delivery.NewClient(r.sink, delivery.ClientOptions{
		MaxAttempts: cfg.Sink.MaxRetries,
		BackoffUnit: cfg.Sink.BackoffUnit.Duration,
	}, deliveryLog)
	reporter := delivery.NewReporter(cfg.Sink.ErrorURL, cfg.Sink.Timeout.Duration, userAgent(), deliveryLog)

	r.controller = session.NewController(r.transport, client, reporter, session.Options{
		Gate:            gate,
		Names:           cfg.Discovery.Names,
		FuzzyTokens:     cfg.Discovery.FuzzyTokens,
		ExactTimeout:    cfg.Discovery.ExactTimeout.Duration,
		FuzzyTimeout:    cfg.Discovery.FuzzyTimeout.Duration,
		ConnectAttempts: cfg.Discovery.ConnectAttempts,
		InitDelay:       cfg.Monitor.InitDelay.Duration,
		PollInterval:    cfg.Monitor.Interval.Duration,
		HealthInterval:  cfg.Monitor.HealthInterval.Duration,
		StaleAfter:      cfg.Monitor.StaleAfter.Duration,
		Assembler: corelec.AssemblerOptions{
			HighWater: cfg.Monitor.BufferHighWater,
			LowWater:  cfg.Monitor.BufferLowWater,
		},
		OnEvent: onEvent,
	}, logging.Component(logger, "session"))

	return r, nil
}

// serveMetrics starts the /metrics listener when an address is configured
func (r *relay) serveMetrics(ctx context.Context) {
	metrics.RegisterMetrics()
	if r.cfg.MetricsAddr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, r.cfg.MetricsAddr, logging.Component(r.logger, "metrics")); err != nil {
			r.logger.Error().Err(err).Msg("metrics listener stopped")
		}
	}()
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := newRelay(ctx, cfg, os.Stdout, nil)
	if err != nil {
		return err
	}
	defer r.Close()

	r.logger.Info().
		Str("version", rootCmd.Version).
		Str("transport", r.info).
		Str("sink", r.sink.Name()).
		Msg("aquastat starting")

	r.serveMetrics(ctx)

	err = r.controller.Run(ctx)
	if errors.Is(err, context.Canceled) {
		r.logger.Info().Msg("shutdown complete")
		stats := r.controller.Statistics()
		fmt.Fprint(os.Stderr, stats.String())
		return nil
	}
	return err
}
