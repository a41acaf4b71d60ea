// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/aquastat/aquastat/internal/config"
	"github.com/aquastat/aquastat/internal/transport"
)

// loadConfig reads the config file and environment, then applies the
// persistent flags on top
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return config.Config{}, err
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlags overrides the config with explicitly set connection flags.
// A replay file wins over a gateway URL, which wins over a serial port.
func applyFlags(cfg *config.Config) {
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if baudRate > 0 {
		cfg.Transport.Baud = baudRate
	}

	switch {
	case replayFile != "":
		cfg.Transport.Kind = config.TransportReplay
		cfg.Transport.ReplayFile = replayFile
		cfg.Transport.ReplaySpeed = replaySpeed
	case wsURL != "":
		cfg.Transport.Kind = config.TransportWebSocket
		cfg.Transport.URL = wsURL
		if wsUsername != "" {
			cfg.Transport.Username = wsUsername
		}
		if wsNoSSLVerify {
			cfg.Transport.NoSSLVerify = true
		}
	case portName != "":
		cfg.Transport.Kind = config.TransportSerial
		cfg.Transport.Port = portName
	}
}

// GetPassword retrieves the gateway password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("GATEWAY_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenTransport builds the transport selected by the configuration
func OpenTransport(cfg config.Config) (transport.Transport, string, error) {
	name := ""
	if len(cfg.Discovery.Names) > 0 {
		name = cfg.Discovery.Names[0]
	}

	switch cfg.Transport.Kind {
	case config.TransportWebSocket:
		password := ""
		if cfg.Transport.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		t, err := transport.NewWebSocket(transport.WebSocketOptions{
			URL:           cfg.Transport.URL,
			Username:      cfg.Transport.Username,
			Password:      password,
			SkipSSLVerify: cfg.Transport.NoSSLVerify,
		})
		if err != nil {
			return nil, "", err
		}
		return t, t.String(), nil

	case config.TransportReplay:
		t := transport.NewReplay(transport.ReplayOptions{
			Path:       cfg.Transport.ReplayFile,
			DeviceName: name,
			Speed:      cfg.Transport.ReplaySpeed,
		})
		return t, t.String(), nil

	case config.TransportSerial, "":
		t := transport.NewSerial(transport.SerialOptions{
			Port:       cfg.Transport.Port,
			Baud:       cfg.Transport.Baud,
			DeviceName: name,
		})
		return t, t.String(), nil
	}

	return nil, "", fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
}

// openLink discovers the regulator and connects to it directly, without the
// session controller's retries. Used by the diagnostic commands.
func openLink(ctx context.Context, cfg config.Config) (transport.Transport, transport.Link, string, error) {
	t, info, err := OpenTransport(cfg)
	if err != nil {
		return nil, nil, "", err
	}

	scanCtx, cancel := context.WithTimeout(ctx, cfg.Discovery.FuzzyTimeout.Duration+5*time.Second)
	defer cancel()

	devices, err := t.Discover(scanCtx, cfg.Discovery.ExactTimeout.Duration)
	if err != nil {
		t.Close()
		return nil, nil, "", fmt.Errorf("discovery failed: %w", err)
	}
	device, ok := pickDevice(devices, cfg.Discovery.Names, cfg.Discovery.FuzzyTokens)
	if !ok {
		t.Close()
		return nil, nil, "", fmt.Errorf("no regulator found (%d devices seen)", len(devices))
	}

	link, err := t.Connect(ctx, device.Address)
	if err != nil {
		t.Close()
		return nil, nil, "", err
	}

	return t, link, fmt.Sprintf("%s -> %s (%s)", info, device.Name, device.Address), nil
}

// pickDevice prefers an exact name, then a name containing a token, then a
// lone device
func pickDevice(devices []transport.Device, names, tokens []string) (transport.Device, bool) {
	for _, want := range []string{"exact", "fuzzy"} {
		for _, d := range devices {
			if classifyDevice(d.Name, names, tokens) == want {
				return d, true
			}
		}
	}
	if len(devices) == 1 {
		return devices[0], true
	}
	return transport.Device{}, false
}
