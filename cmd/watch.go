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

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aquastat/aquastat/internal/schedule"
	"github.com/aquastat/aquastat/internal/session"
)

var watchLogFile string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the relay with a live terminal dashboard",
	Long: `Run the relay exactly like the run command, showing the session state, the
latest measurement, last known regulator settings, statistics and recent events
in a terminal UI.

Logs would corrupt the display, so they are discarded unless --log-file is set.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "Append logs to this file")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logOut io.Writer = io.Discard
	if watchLogFile != "" {
		f, err := os.OpenFile(watchLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}

	var p *tea.Program
	r, err := newRelay(ctx, cfg, logOut, func(ev session.Event) {
		p.Send(eventMsg(ev))
	})
	if err != nil {
		return err
	}
	defer r.Close()

	window := schedule.Gate{StartHour: cfg.Schedule.StartHour, EndHour: cfg.Schedule.EndHour}
	p = tea.NewProgram(newWatchModel(r.info, window.String()))

	r.serveMetrics(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		err := r.controller.Run(runCtx)
		done <- err
		p.Send(relayDoneMsg{err: err})
	}()

	_, tuiErr := p.Run()
	cancel()
	err = <-done

	if tuiErr != nil {
		return fmt.Errorf("TUI error: %v", tuiErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
