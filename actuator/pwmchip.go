// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package actuator

import (
	"fmt"

	"periph.io/x/conn/v3"

	"github.com/GermanBionicSystems/iyirobot/pca9685"
)

// Channels is the subset of a PWM controller used by PWMChip.
// *pca9685.Dev implements it.
type Channels interface {
	conn.Resource
	SetChannelDuty(channel, on, off int) error
	SetServoAngle(channel, degree int) error
}

// PWMChip drives motors and servos through a 16-channel PWM controller.
//
// Motor Mn uses the channel pair starting at (4-n)*2, the first channel of the
// pair drives it forward and the second backward. Servo Sn uses channel n+7.
type PWMChip struct {
	c Channels
}

// NewPWMChip returns an Actuator using c.
func NewPWMChip(c Channels) *PWMChip {
	return &PWMChip{c: c}
}

// Motors implements Actuator.
func (p *PWMChip) Motors() int {
	return int(M4)
}

// Servos implements Actuator.
func (p *PWMChip) Servos() int {
	return int(S8)
}

// MotorChannels returns the forward and reverse channel of m.
func (p *PWMChip) MotorChannels(m Motor) (fwd, rev int, err error) {
	if err := checkMotor(p, m); err != nil {
		return 0, 0, wrap(err)
	}
	base := (int(M4) - int(m)) * 2
	return base, base + 1, nil
}

// ServoChannel returns the channel of s.
func (p *PWMChip) ServoChannel(s Servo) (int, error) {
	if err := checkServo(p, s); err != nil {
		return 0, wrap(err)
	}
	return int(s) + 7, nil
}

// SetMotor implements Actuator. The speed magnitude is scaled to
// [0, pca9685.MaxTick]; the idle channel of the pair is turned off first.
func (p *PWMChip) SetMotor(m Motor, speed int) error {
	fwd, rev, err := p.MotorChannels(m)
	if err != nil {
		return err
	}
	speed = ClampSpeed(speed)
	ticks := abs(speed) * pca9685.MaxTick / MaxSpeed
	if speed < 0 {
		fwd, rev = rev, fwd
	}
	if err := p.c.SetChannelDuty(rev, 0, 0); err != nil {
		return wrap(err)
	}
	if err := p.c.SetChannelDuty(fwd, 0, ticks); err != nil {
		return wrap(err)
	}
	return nil
}

// SetServo implements Actuator.
func (p *PWMChip) SetServo(s Servo, degree int) error {
	ch, err := p.ServoChannel(s)
	if err != nil {
		return err
	}
	if err := checkAngle(degree); err != nil {
		return wrap(err)
	}
	return wrap(p.c.SetServoAngle(ch, degree))
}

// ReleaseServo implements Actuator.
func (p *PWMChip) ReleaseServo(s Servo) error {
	ch, err := p.ServoChannel(s)
	if err != nil {
		return err
	}
	return wrap(p.c.SetChannelDuty(ch, 0, 0))
}

// Halt implements conn.Resource. It halts the controller, which turns every
// channel off.
func (p *PWMChip) Halt() error {
	return wrap(p.c.Halt())
}

func (p *PWMChip) String() string {
	return fmt.Sprintf("PWMChip{%s}", p.c)
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("actuator: %w", err)
}

var _ Actuator = &PWMChip{}
var _ Channels = &pca9685.Dev{}
