// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package actuator

import (
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// MotorPins is the pair of pins of an H-bridge channel.
type MotorPins struct {
	Forward gpio.PinOut
	Reverse gpio.PinOut
}

// DirectOpts holds the configuration options of a Direct backend.
type DirectOpts struct {
	// MotorFrequency is the PWM frequency of the motor pins. Default is 1kHz.
	MotorFrequency physic.Frequency
}

// DefaultDirectOpts holds the default configuration options of a Direct
// backend.
var DefaultDirectOpts = DirectOpts{
	MotorFrequency: physic.KiloHertz,
}

const (
	servoFrequency = 50 * physic.Hertz
	servoPeriod    = 20 * time.Millisecond
	servoMinPulse  = 600 * time.Microsecond
	servoMaxPulse  = 2400 * time.Microsecond
)

// Direct drives motors and servos from host pins that support PWM.
type Direct struct {
	motors []MotorPins
	servos []gpio.PinOut
	opts   DirectOpts

	mu sync.Mutex
}

// NewDirect returns an Actuator driving motor Mn with motors[n-1] and servo
// Sn with servos[n-1]. The DirectOpts can be nil.
func NewDirect(motors []MotorPins, servos []gpio.PinOut, opts *DirectOpts) *Direct {
	if opts == nil {
		opts = &DefaultDirectOpts
	}
	d := &Direct{
		motors: append([]MotorPins(nil), motors...),
		servos: append([]gpio.PinOut(nil), servos...),
		opts:   *opts,
	}
	if d.opts.MotorFrequency <= 0 {
		d.opts.MotorFrequency = DefaultDirectOpts.MotorFrequency
	}
	return d
}

// Motors implements Actuator.
func (d *Direct) Motors() int {
	return len(d.motors)
}

// Servos implements Actuator.
func (d *Direct) Servos() int {
	return len(d.servos)
}

// SetMotor implements Actuator. The pin opposite to the direction of travel is
// driven low before the other one starts its PWM.
func (d *Direct) SetMotor(m Motor, speed int) error {
	if err := checkMotor(d, m); err != nil {
		return wrap(err)
	}
	speed = ClampSpeed(speed)
	p := d.motors[m-1]
	on, off := p.Forward, p.Reverse
	if speed < 0 {
		on, off = off, on
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := off.Out(gpio.Low); err != nil {
		return wrap(err)
	}
	if speed == 0 {
		return wrap(on.Out(gpio.Low))
	}
	return wrap(on.PWM(SpeedDuty(speed), d.opts.MotorFrequency))
}

// SetServo implements Actuator.
func (d *Direct) SetServo(s Servo, degree int) error {
	if err := checkServo(d, s); err != nil {
		return wrap(err)
	}
	if err := checkAngle(degree); err != nil {
		return wrap(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.servos[s-1].PWM(ServoDuty(degree), servoFrequency))
}

// ReleaseServo implements Actuator.
func (d *Direct) ReleaseServo(s Servo) error {
	if err := checkServo(d, s); err != nil {
		return wrap(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.servos[s-1].Out(gpio.Low))
}

// Halt implements conn.Resource. All pins are driven low, the first error is
// returned.
func (d *Direct) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	for _, m := range d.motors {
		for _, p := range []gpio.PinOut{m.Forward, m.Reverse} {
			if e := p.Out(gpio.Low); e != nil && err == nil {
				err = e
			}
		}
	}
	for _, p := range d.servos {
		if e := p.Out(gpio.Low); e != nil && err == nil {
			err = e
		}
	}
	return wrap(err)
}

func (d *Direct) String() string {
	var sb strings.Builder
	sb.WriteString("Direct{")
	for i, m := range d.motors {
		if i != 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(m.Forward.Name() + "/" + m.Reverse.Name())
	}
	sb.WriteString("}")
	return sb.String()
}

// SpeedDuty returns the duty cycle of a motor running at speed percent.
func SpeedDuty(speed int) gpio.Duty {
	return gpio.Duty(int64(abs(ClampSpeed(speed))) * int64(gpio.DutyMax) / MaxSpeed)
}

// ServoDuty returns the duty cycle of a 50Hz pulse positioning a servo at
// degree.
func ServoDuty(degree int) gpio.Duty {
	pulse := servoMinPulse + time.Duration(degree)*(servoMaxPulse-servoMinPulse)/MaxAngle
	return gpio.Duty(int64(pulse) * int64(gpio.DutyMax) / int64(servoPeriod))
}

var _ Actuator = &Direct{}
