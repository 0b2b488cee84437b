// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import "time"

// Clock is the time source of the bit-banged protocols.
//
// Sleep yields to the scheduler and is used for millisecond waits. Spin busy
// waits and is used where the protocol needs microsecond accuracy.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	Spin(d time.Duration)
}

// SystemClock is the Clock backed by the time package.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (systemClock) Spin(d time.Duration) {
	for end := time.Now().Add(d); time.Now().Before(end); {
	}
}
