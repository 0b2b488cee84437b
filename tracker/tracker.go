// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tracker reads the infrared line tracking sensors under the robot.
//
// Each sensor is a digital input, the level it reads for a dark line depends
// on the module; the iYi board reads High over the line.
package tracker

import (
	"errors"
	"fmt"
	"strings"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/iyirobot/common"
)

// Dev is a set of line tracking sensors, numbered from 1.
type Dev struct {
	pins []gpio.PinIn
}

// New returns a Dev reading sensor n from pins[n-1].
func New(pins ...gpio.PinIn) (*Dev, error) {
	if len(pins) == 0 {
		return nil, errors.New("tracker: at least one pin is required")
	}
	for _, p := range pins {
		if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("tracker: %s: %w", p, err)
		}
	}
	return &Dev{pins: append([]gpio.PinIn(nil), pins...)}, nil
}

// Len returns the number of sensors.
func (d *Dev) Len() int {
	return len(d.pins)
}

// Read returns the level of sensor n.
func (d *Dev) Read(n int) (gpio.Level, error) {
	if err := common.CheckRange("tracker", n, 1, len(d.pins)); err != nil {
		return gpio.Low, fmt.Errorf("tracker: %w", err)
	}
	return d.pins[n-1].Read(), nil
}

// ReadAll returns the level of every sensor, sensor 1 first.
func (d *Dev) ReadAll() []gpio.Level {
	l := make([]gpio.Level, len(d.pins))
	for i, p := range d.pins {
		l[i] = p.Read()
	}
	return l
}

// Halt implements conn.Resource. It is a no-op.
func (d *Dev) Halt() error {
	return nil
}

func (d *Dev) String() string {
	names := make([]string, len(d.pins))
	for i, p := range d.pins {
		names[i] = p.Name()
	}
	return "Tracker{" + strings.Join(names, ", ") + "}"
}

var _ conn.Resource = &Dev{}
