// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains types and functions used across multiple packages.
// For example, the 8-bit additive checksum of the single-wire sensors or the
// errors shared by the PWM and actuator drivers.
package common

// Sum8 returns the sum of bytes truncated to 8 bits. Single-wire humidity
// sensors append it to their data bytes as a checksum.
func Sum8(bytes []byte) byte {
	var sum byte
	for _, val := range bytes {
		sum += val
	}
	return sum
}
