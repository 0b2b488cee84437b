// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht

import "fmt"

// Phases of an exchange reported by TimeoutError.
const (
	PhaseResponse = "response"
	PhaseAck      = "ack"
	PhaseBit      = "bit"
)

// TimeoutError is returned when an expected edge was not seen on the data
// line within Opts.EdgeTimeout.
type TimeoutError struct {
	Phase string
	// Bit is the index of the bit slot being sampled, only set in PhaseBit.
	Bit int
}

func (e *TimeoutError) Error() string {
	switch e.Phase {
	case PhaseResponse:
		return "dht: no response from sensor"
	case PhaseBit:
		return fmt.Sprintf("dht: timeout reading bit %d", e.Bit)
	default:
		return "dht: timeout waiting for " + e.Phase
	}
}

// NoResponse reports whether the sensor never answered the request pulse,
// which usually means it is not connected.
func (e *TimeoutError) NoResponse() bool {
	return e.Phase == PhaseResponse
}

// ChecksumError is returned when a complete frame was received but its last
// byte does not match the sum of the data bytes.
type ChecksumError struct {
	Frame [5]byte
	Want  byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("dht: checksum mismatch, got 0x%02x want 0x%02x", e.Frame[4], e.Want)
}
