// Package core defines sentinel errors.
package core

import "errors"

var (
	// Packet decoding errors
	ErrPacketTooShort   = errors.New("vesper: packet too short")
	ErrTruncatedHeader  = errors.New("vesper: truncated header")
	ErrUnsupportedProto = errors.New("vesper: unsupported protocol")

	// Flow record errors
	ErrInvalidRecord = errors.New("vesper: invalid flow record")
	ErrUnknownCodec  = errors.New("vesper: unknown codec")

	// Component selection errors
	ErrUnknownSource = errors.New("vesper: unknown capture source")
	ErrUnknownSink   = errors.New("vesper: unknown sink")
	ErrUnknownRouter = errors.New("vesper: unknown routing mode")
	ErrSinkClosed    = errors.New("vesper: sink closed")

	// Configuration errors
	ErrConfigInvalid = errors.New("vesper: invalid configuration")
)
