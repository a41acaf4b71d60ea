// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var discoveryTimeout int

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "List devices reachable through the transport",
	Long: `Scan with the configured transport and list every device it reports.

Devices whose name matches a configured regulator name are marked "exact";
names containing a fuzzy token are marked "fuzzy". These are the candidates the
relay would connect to, in that order.

Examples:
  # Serial bridges attached to this machine
  aquastat discovery

  # BLE scan through a remote gateway
  aquastat discovery --url ws://gateway.local/ble --username admin

Exit codes:
  0 - Discovery successful (at least one regulator candidate found)
  1 - Discovery failed (no candidates)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 15, "Scan timeout in seconds")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	t, connInfo, err := OpenTransport(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer t.Close()

	timeout := time.Duration(discoveryTimeout) * time.Second

	fmt.Printf("Aquastat - Device Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n\n", discoveryTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()

	devices, err := t.Discover(ctx, timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	candidates := 0
	for _, d := range devices {
		match := classifyDevice(d.Name, cfg.Discovery.Names, cfg.Discovery.FuzzyTokens)
		if match != "" {
			candidates++
		}

		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		line := fmt.Sprintf("  %-24s %-20s", name, d.Address)
		if d.RSSI != 0 {
			line += fmt.Sprintf(" %4d dBm", d.RSSI)
		}
		if match != "" {
			line += "  [" + match + "]"
		}
		fmt.Println(line)
	}

	fmt.Printf("\nDiscovery complete: %d devices, %d regulator candidates\n", len(devices), candidates)
	if candidates == 0 {
		os.Exit(1)
	}
	return nil
}

// classifyDevice reports "exact", "fuzzy" or "" for a device name
func classifyDevice(name string, names, tokens []string) string {
	if name == "" {
		return ""
	}
	for _, n := range names {
		if n == name {
			return "exact"
		}
	}
	lower := strings.ToLower(name)
	for _, tok := range tokens {
		if strings.Contains(lower, strings.ToLower(tok)) {
			return "fuzzy"
		}
	}
	return ""
}
