// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import "fmt"

// RangeError is returned when a selector or value lies outside the set the
// device accepts, for example PWM channel 16.
type RangeError struct {
	What     string
	Value    int
	Min, Max int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [%d, %d]", e.What, e.Value, e.Min, e.Max)
}

// CheckRange returns a *RangeError if v is not within [min, max].
func CheckRange(what string, v, min, max int) error {
	if v < min || v > max {
		return &RangeError{What: what, Value: v, Min: min, Max: max}
	}
	return nil
}

// TransportError wraps a failed bus transaction, typically a missing I²C
// acknowledgment.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "transport error during " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
