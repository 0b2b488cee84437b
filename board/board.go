// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package board assembles the devices of an iYi robot from a configuration
// file.
//
// The configuration selects the actuator backend and names the pins of every
// sensor. Open resolves them on the host and returns a Board ready to use;
// host.Init() must have been called first.
package board

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/iyirobot/actuator"
	"github.com/GermanBionicSystems/iyirobot/common"
	"github.com/GermanBionicSystems/iyirobot/dht"
	"github.com/GermanBionicSystems/iyirobot/pca9685"
	"github.com/GermanBionicSystems/iyirobot/sonar"
	"github.com/GermanBionicSystems/iyirobot/tracker"
)

// Board holds the devices of the robot.
type Board struct {
	// Actuator drives the motors and servos. Commands are counted in
	// Metrics.ActuatorCommands.
	Actuator actuator.Actuator
	Drive    *actuator.Drive
	// PWM is the controller of the pca9685 backend, nil otherwise.
	PWM *pca9685.Dev
	// DHT is nil when no sensor pin is configured.
	DHT      *dht.Dev
	Sonars   []*sonar.Dev
	Trackers *tracker.Dev
	Metrics  *Metrics

	bus i2c.BusCloser
	log zerolog.Logger
}

// Host resolves the names used in a Config.
type Host struct {
	Pin func(name string) gpio.PinIO
	Bus func(name string) (i2c.BusCloser, error)
}

// Registry resolves pins with gpioreg and buses with i2creg.
var Registry = Host{Pin: gpioreg.ByName, Bus: i2creg.Open}

// Open creates the devices described by cfg on the host registry. The
// metrics are not registered, see NewMetrics.
func Open(cfg *Config, log zerolog.Logger, m *Metrics) (*Board, error) {
	return OpenHost(Registry, cfg, log, m)
}

// OpenHost is Open with names resolved by h. A nil m creates unregistered
// metrics.
func OpenHost(h Host, cfg *Config, log zerolog.Logger, m *Metrics) (*Board, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	b := &Board{Metrics: m, log: log}
	if err := b.open(h, cfg); err != nil {
		return nil, errors.Join(err, b.Close())
	}
	return b, nil
}

func (b *Board) open(h Host, cfg *Config) error {
	pin := func(name string) (gpio.PinIO, error) {
		p := h.Pin(name)
		if p == nil {
			return nil, fmt.Errorf("board: unknown pin %q", name)
		}
		return p, nil
	}

	var a actuator.Actuator
	switch cfg.Backend {
	case BackendPCA9685:
		bus, err := h.Bus(cfg.I2C.Bus)
		if err != nil {
			return fmt.Errorf("board: %w", err)
		}
		b.bus = bus
		opts := pca9685.DefaultOpts
		opts.Frequency = physic.Frequency(cfg.PWMFrequency) * physic.Hertz
		if b.PWM, err = pca9685.NewI2C(bus, uint16(cfg.I2C.Address), &opts); err != nil {
			return err
		}
		a = actuator.NewPWMChip(b.PWM)
	case BackendGPIO:
		var motors []actuator.MotorPins
		for _, mc := range cfg.Motors {
			fwd, err := pin(mc.Forward)
			if err != nil {
				return err
			}
			rev, err := pin(mc.Reverse)
			if err != nil {
				return err
			}
			motors = append(motors, actuator.MotorPins{Forward: fwd, Reverse: rev})
		}
		var servos []gpio.PinOut
		for _, name := range cfg.Servos {
			p, err := pin(name)
			if err != nil {
				return err
			}
			servos = append(servos, p)
		}
		opts := actuator.DirectOpts{MotorFrequency: physic.Frequency(cfg.MotorFrequency) * physic.Hertz}
		a = actuator.NewDirect(motors, servos, &opts)
	}
	b.Actuator = &meteredActuator{Actuator: a, c: b.Metrics.ActuatorCommands}
	b.Drive = actuator.NewDrive(b.Actuator)

	if cfg.DHT.Pin != "" {
		p, err := pin(cfg.DHT.Pin)
		if err != nil {
			return err
		}
		opts := dht.DefaultOpts
		opts.Retries = cfg.DHT.Retries
		opts.PullUp = cfg.DHT.PullUp
		opts.Logger = &b.log
		if b.DHT, err = dht.New(p, dht.Family(cfg.DHT.Family), &opts); err != nil {
			return err
		}
	}

	for _, sc := range cfg.Sonars {
		trig, err := pin(sc.Trigger)
		if err != nil {
			return err
		}
		echo, err := pin(sc.Echo)
		if err != nil {
			return err
		}
		s, err := sonar.New(trig, echo, &sonar.Opts{MaxDistanceCM: sc.MaxDistanceCM})
		if err != nil {
			return err
		}
		b.Sonars = append(b.Sonars, s)
	}

	if len(cfg.Trackers) != 0 {
		var pins []gpio.PinIn
		for _, name := range cfg.Trackers {
			p, err := pin(name)
			if err != nil {
				return err
			}
			pins = append(pins, p)
		}
		var err error
		if b.Trackers, err = tracker.New(pins...); err != nil {
			return err
		}
	}
	b.log.Debug().
		Str("backend", string(cfg.Backend)).
		Int("sonars", len(b.Sonars)).
		Bool("dht", b.DHT != nil).
		Msg("board opened")
	return nil
}

// Sense queries the humidity and temperature sensor.
func (b *Board) Sense() (dht.Reading, error) {
	if b.DHT == nil {
		return dht.Reading{}, errors.New("board: no DHT sensor configured")
	}
	r, err := b.DHT.Query()
	b.Metrics.SensorQueries.WithLabelValues(result(err)).Inc()
	return r, err
}

// Distance measures with sonar n, starting at 1.
func (b *Board) Distance(n int, u sonar.Unit) (int, error) {
	if err := common.CheckRange("sonar", n, 1, len(b.Sonars)); err != nil {
		return 0, fmt.Errorf("board: %w", err)
	}
	d, err := b.Sonars[n-1].Sense(u)
	b.Metrics.SonarMeasures.WithLabelValues(result(err)).Inc()
	return d, err
}

// Close halts every device and closes the I²C bus. It returns all the errors
// encountered.
func (b *Board) Close() error {
	var errs []error
	if b.Actuator != nil {
		errs = append(errs, b.Actuator.Halt())
	}
	if b.DHT != nil {
		errs = append(errs, b.DHT.Halt())
	}
	for _, s := range b.Sonars {
		errs = append(errs, s.Halt())
	}
	if b.bus != nil {
		errs = append(errs, b.bus.Close())
	}
	return errors.Join(errs...)
}
