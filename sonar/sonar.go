// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sonar measures distances with an HC-SR04 style ultrasonic sensor.
//
// A 10µs pulse on the trigger pin starts a measurement; the sensor answers
// with a high pulse on the echo pin whose width is the round trip time of the
// sound, about 58µs per centimeter.
package sonar

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/iyirobot/common"
)

// Unit selects the unit returned by Sense.
type Unit int

const (
	Centimeters Unit = iota
	Inches
	Microseconds
)

func (u Unit) String() string {
	switch u {
	case Centimeters:
		return "cm"
	case Inches:
		return "in"
	default:
		return "µs"
	}
}

const (
	usPerCM   = 58
	usPerInch = 148
)

// Opts holds the configuration options for the device.
type Opts struct {
	// MaxDistanceCM bounds the echo wait to MaxDistanceCM*58µs. Default is
	// 500.
	MaxDistanceCM int
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{
	MaxDistanceCM: 500,
}

// TimeoutError is returned when no complete echo pulse was seen within the
// deadline, usually because nothing is in range.
type TimeoutError struct {
	// Started is true if the echo went high but never fell back.
	Started bool
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Started {
		return fmt.Sprintf("sonar: echo longer than %s", e.Limit)
	}
	return fmt.Sprintf("sonar: no echo within %s", e.Limit)
}

// Dev is a handle to an ultrasonic sensor.
type Dev struct {
	trig  gpio.PinOut
	echo  gpio.PinIn
	opts  Opts
	clock common.Clock
	// edges is set when the echo pin supports edge detection.
	edges bool

	mu sync.Mutex
}

// New returns a Dev triggering on trig and timing the pulse on echo. The Opts
// can be nil.
func New(trig gpio.PinOut, echo gpio.PinIn, opts *Opts) (*Dev, error) {
	return newDev(trig, echo, opts, common.SystemClock)
}

func newDev(trig gpio.PinOut, echo gpio.PinIn, opts *Opts, clock common.Clock) (*Dev, error) {
	if trig == nil || echo == nil {
		return nil, errors.New("sonar: trigger and echo pins are required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{trig: trig, echo: echo, opts: *opts, clock: clock}
	if d.opts.MaxDistanceCM <= 0 {
		d.opts.MaxDistanceCM = DefaultOpts.MaxDistanceCM
	}
	// Wait for edges when the pin supports it, poll otherwise.
	if err := echo.In(gpio.PullNoChange, gpio.BothEdges); err == nil {
		d.edges = true
	} else if err := echo.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("sonar: %w", err)
	}
	if err := trig.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("sonar: %w", err)
	}
	return d, nil
}

// Measure triggers the sensor and returns the width of the echo pulse. On
// timeout the duration is 0 and the error is a *TimeoutError.
func (d *Dev) Measure() (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.edges {
		// Discard edges left from a previous measurement.
		for d.echo.WaitForEdge(0) {
		}
	}
	if err := d.trig.Out(gpio.Low); err != nil {
		return 0, fmt.Errorf("sonar: %w", err)
	}
	d.clock.Spin(2 * time.Microsecond)
	if err := d.trig.Out(gpio.High); err != nil {
		return 0, fmt.Errorf("sonar: %w", err)
	}
	d.clock.Spin(10 * time.Microsecond)
	if err := d.trig.Out(gpio.Low); err != nil {
		return 0, fmt.Errorf("sonar: %w", err)
	}

	limit := time.Duration(d.opts.MaxDistanceCM*usPerCM) * time.Microsecond
	if !d.waitFor(gpio.High, d.clock.Now().Add(limit)) {
		return 0, &TimeoutError{Limit: limit}
	}
	start := d.clock.Now()
	if !d.waitFor(gpio.Low, start.Add(limit)) {
		return 0, &TimeoutError{Started: true, Limit: limit}
	}
	return d.clock.Now().Sub(start), nil
}

// waitFor returns once the echo reads l, or false when deadline passed first.
func (d *Dev) waitFor(l gpio.Level, deadline time.Time) bool {
	for d.echo.Read() != l {
		left := deadline.Sub(d.clock.Now())
		if left <= 0 {
			return false
		}
		if d.edges && !d.echo.WaitForEdge(left) {
			return false
		}
	}
	return true
}

// Sense measures the distance to the nearest obstacle in unit u.
func (d *Dev) Sense(u Unit) (int, error) {
	w, err := d.Measure()
	if err != nil {
		return 0, err
	}
	return Convert(w, u), nil
}

// Convert returns the echo width w expressed in unit u, truncated.
func Convert(w time.Duration, u Unit) int {
	us := int(w / time.Microsecond)
	switch u {
	case Centimeters:
		return us / usPerCM
	case Inches:
		return us / usPerInch
	default:
		return us
	}
}

// Halt implements conn.Resource. It stops edge detection on the echo pin.
func (d *Dev) Halt() error {
	if d.edges {
		if err := d.echo.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return fmt.Errorf("sonar: %w", err)
		}
		d.edges = false
	}
	return d.trig.Out(gpio.Low)
}

func (d *Dev) String() string {
	return "Sonar{" + d.trig.Name() + ", " + d.echo.Name() + "}"
}

var _ conn.Resource = &Dev{}
