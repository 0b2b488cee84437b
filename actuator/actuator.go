// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package actuator drives the DC motors and servos of the robot.
//
// The Actuator interface is implemented by two backends: PWMChip drives the
// outputs through a PCA9685 on the I²C bus, Direct drives host GPIO pins that
// support PWM. Both accept the same logical commands so the backend can be
// chosen when the board is configured.
package actuator

import (
	"strconv"

	"periph.io/x/conn/v3"

	"github.com/GermanBionicSystems/iyirobot/common"
)

// Motor selects a DC motor output, starting at M1.
type Motor int

const (
	M1 Motor = iota + 1
	M2
	M3
	M4
)

func (m Motor) String() string {
	return "M" + strconv.Itoa(int(m))
}

// Servo selects a servo output, starting at S1.
type Servo int

const (
	S1 Servo = iota + 1
	S2
	S3
	S4
	S5
	S6
	S7
	S8
)

func (s Servo) String() string {
	return "S" + strconv.Itoa(int(s))
}

const (
	// MaxSpeed is the magnitude of full speed, in percent.
	MaxSpeed = 100
	// MaxAngle is the highest servo angle, in degrees.
	MaxAngle = 180
)

// Actuator is the API supported by every motor and servo backend.
type Actuator interface {
	conn.Resource
	// Motors returns the number of motor outputs, M1 to M<n>.
	Motors() int
	// Servos returns the number of servo outputs, S1 to S<n>.
	Servos() int
	// SetMotor runs a motor. Positive speeds turn it forward, negative ones
	// backward and 0 stops it. The magnitude is clamped to MaxSpeed.
	SetMotor(m Motor, speed int) error
	// SetServo moves a servo to degree, in [0, MaxAngle].
	SetServo(s Servo, degree int) error
	// ReleaseServo stops sending pulses to a servo.
	ReleaseServo(s Servo) error
}

// ClampSpeed limits speed to [-MaxSpeed, MaxSpeed].
func ClampSpeed(speed int) int {
	if speed > MaxSpeed {
		return MaxSpeed
	}
	if speed < -MaxSpeed {
		return -MaxSpeed
	}
	return speed
}

func checkMotor(a Actuator, m Motor) error {
	return common.CheckRange("motor", int(m), int(M1), a.Motors())
}

func checkServo(a Actuator, s Servo) error {
	return common.CheckRange("servo", int(s), int(S1), a.Servos())
}

func checkAngle(degree int) error {
	return common.CheckRange("servo angle", degree, 0, MaxAngle)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
