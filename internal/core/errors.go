// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors shared across the router packages.
var (
	// Frame decoding errors
	ErrPacketTooShort   = errors.New("srouter: packet too short")
	ErrUnsupportedProto = errors.New("srouter: unsupported protocol")
	ErrBadChecksum      = errors.New("srouter: bad checksum")

	// Resolution errors
	ErrQueueFull = errors.New("srouter: pending frame queue full")

	// Table errors
	ErrNoRoute          = errors.New("srouter: no route to destination")
	ErrUnknownInterface = errors.New("srouter: unknown interface")

	// Transport errors
	ErrTransportClosed = errors.New("srouter: transport closed")

	// Startup errors
	ErrConfigInvalid  = errors.New("srouter: invalid configuration")
	ErrRouterNotReady = errors.New("srouter: router not initialized")
)
