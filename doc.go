// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package iyirobot is a container for the drivers of the iYi robot controller
// board: the DHT11/DHT22 humidity sensor, the PCA9685 PWM chip that drives the
// motors and servos, and the thin ultrasonic and line tracker sensors.
//
// Each device lives in its own package; board wires them together from a
// configuration file and cmd/iyibot exposes them on the command line.
package iyirobot
