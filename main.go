// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Aquastat - CORELEC pool regulator telemetry relay
//
// Reads measurements from a CORELEC regulator over its BLE UART service and
// delivers them to an HTTP API or time-series database.

package main

import (
	"os"

	"github.com/aquastat/aquastat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
