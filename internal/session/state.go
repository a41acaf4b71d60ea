// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

// State is a session controller state
type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateConnecting
	StateVerifyingService
	StateInitializing
	StateMonitoring
	StateDisconnecting
	StateError
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateConnecting:
		return "connecting"
	case StateVerifyingService:
		return "verifying_service"
	case StateInitializing:
		return "initializing"
	case StateMonitoring:
		return "monitoring"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateNames lists every state name, for gauges that export one series per state
func StateNames() []string {
	names := make([]string, 0, int(StateError)+1)
	for s := StateIdle; s <= StateError; s++ {
		names = append(names, s.String())
	}
	return names
}
