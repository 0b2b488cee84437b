// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package actuator

import (
	"errors"
)

// Side selects one side of a differential drive.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Drive is a two-wheeled differential drive built on an Actuator.
type Drive struct {
	A     Actuator
	Left  Motor
	Right Motor
}

// NewDrive returns the drive of the robot, with the left wheel on M1 and the
// right wheel on M2.
func NewDrive(a Actuator) *Drive {
	return &Drive{A: a, Left: M1, Right: M2}
}

// Run runs both wheels at speed, negative speeds drive backward.
func (d *Drive) Run(speed int) error {
	return d.set(speed, speed)
}

// Turn pivots around the wheel on side dir: that wheel stops and the other
// one runs forward at speed.
func (d *Drive) Turn(dir Side, speed int) error {
	speed = abs(ClampSpeed(speed))
	if dir == Left {
		return d.set(0, speed)
	}
	return d.set(speed, 0)
}

// Spin rotates in place towards dir, the wheels running in opposite
// directions at speed.
func (d *Drive) Spin(dir Side, speed int) error {
	speed = abs(ClampSpeed(speed))
	if dir == Left {
		return d.set(-speed, speed)
	}
	return d.set(speed, -speed)
}

// Stop stops the wheel on side s.
func (d *Drive) Stop(s Side) error {
	if s == Left {
		return d.A.SetMotor(d.Left, 0)
	}
	return d.A.SetMotor(d.Right, 0)
}

// StopAll stops both wheels.
func (d *Drive) StopAll() error {
	return d.set(0, 0)
}

// set applies both speeds. The right wheel is stopped if the left one could
// not be set.
func (d *Drive) set(left, right int) error {
	if err := d.A.SetMotor(d.Left, left); err != nil {
		return errors.Join(err, d.A.SetMotor(d.Right, 0))
	}
	return d.A.SetMotor(d.Right, right)
}
