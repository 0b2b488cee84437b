// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package board

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v2"

	"github.com/GermanBionicSystems/iyirobot/dht"
)

// Backend names the actuator backend.
type Backend string

const (
	// BackendPCA9685 drives motors and servos through a PCA9685 on I²C.
	BackendPCA9685 Backend = "pca9685"
	// BackendGPIO drives motors and servos from host PWM pins.
	BackendGPIO Backend = "gpio"
)

// Config describes how the robot is wired to the host.
//
// Pin names are resolved through gpioreg, the bus name through i2creg. An
// empty pin disables the device using it.
type Config struct {
	Backend Backend   `yaml:"backend" env:"IYI_BACKEND"`
	I2C     I2CConfig `yaml:"i2c"`
	// PWMFrequency is the PCA9685 frequency in Hz.
	PWMFrequency int `yaml:"pwm_frequency" env:"IYI_PWM_FREQUENCY"`
	// MotorFrequency is the PWM frequency of motor pins in Hz, gpio backend
	// only.
	MotorFrequency int           `yaml:"motor_frequency" env:"IYI_MOTOR_FREQUENCY"`
	Motors         []MotorConfig `yaml:"motors"`
	Servos         []string      `yaml:"servos" env:"IYI_SERVOS" envSeparator:","`
	DHT            DHTConfig     `yaml:"dht"`
	Sonars         []SonarConfig `yaml:"sonars"`
	Trackers       []string      `yaml:"trackers" env:"IYI_TRACKERS" envSeparator:","`
}

// I2CConfig locates the PWM controller.
type I2CConfig struct {
	// Bus is the i2creg bus name, empty for the first bus.
	Bus     string  `yaml:"bus" env:"IYI_I2C_BUS"`
	Address Address `yaml:"address" env:"IYI_I2C_ADDRESS"`
}

// Address is a 7-bit I²C address. In the environment it is parsed with its
// base prefix, 0x40 and 64 are the same address.
type Address uint16

func parseAddress(s string) (interface{}, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return nil, err
	}
	return Address(v), nil
}

var envParsers = map[reflect.Type]env.ParserFunc{
	reflect.TypeOf(Address(0)): parseAddress,
}

// MotorConfig holds the H-bridge pins of a motor, gpio backend only.
type MotorConfig struct {
	Forward string `yaml:"forward"`
	Reverse string `yaml:"reverse"`
}

// DHTConfig describes the humidity and temperature sensor.
type DHTConfig struct {
	Pin    string `yaml:"pin" env:"IYI_DHT_PIN"`
	Family int    `yaml:"family" env:"IYI_DHT_FAMILY"`
	// Retries of a failed query, each after the 2s cooldown.
	Retries int  `yaml:"retries" env:"IYI_DHT_RETRIES"`
	PullUp  bool `yaml:"pull_up" env:"IYI_DHT_PULL_UP"`
}

// SonarConfig describes an ultrasonic sensor.
type SonarConfig struct {
	Trigger       string `yaml:"trigger"`
	Echo          string `yaml:"echo"`
	MaxDistanceCM int    `yaml:"max_distance_cm"`
}

// DefaultConfig returns the configuration of a board with a PCA9685 at its
// default address and a DHT11.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendPCA9685,
		I2C:            I2CConfig{Address: 0x40},
		PWMFrequency:   50,
		MotorFrequency: 1000,
		DHT:            DHTConfig{Family: int(dht.DHT11), PullUp: true},
	}
}

// Load reads the YAML file at path over DefaultConfig, then applies the
// IYI_* environment variables. An empty path only applies the environment.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("board: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes a YAML configuration over DefaultConfig, then applies the
// IYI_* environment variables and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("board: invalid configuration: %w", err)
	}
	if err := env.ParseWithFuncs(&cfg, envParsers); err != nil {
		return nil, fmt.Errorf("board: invalid environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first inconsistency of the configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPCA9685:
		if c.I2C.Address == 0 || c.I2C.Address > 0x7f {
			return fmt.Errorf("board: invalid I²C address %#x", c.I2C.Address)
		}
		if c.PWMFrequency <= 0 {
			return errors.New("board: pwm_frequency is required")
		}
	case BackendGPIO:
		if len(c.Motors) == 0 && len(c.Servos) == 0 {
			return errors.New("board: the gpio backend needs motor or servo pins")
		}
		for i, m := range c.Motors {
			if m.Forward == "" || m.Reverse == "" {
				return fmt.Errorf("board: motor M%d needs a forward and a reverse pin", i+1)
			}
		}
		for i, s := range c.Servos {
			if s == "" {
				return fmt.Errorf("board: servo S%d has no pin", i+1)
			}
		}
	default:
		return fmt.Errorf("board: unknown backend %q", c.Backend)
	}
	if c.DHT.Pin != "" {
		if f := dht.Family(c.DHT.Family); f != dht.DHT11 && f != dht.DHT22 {
			return fmt.Errorf("board: unknown DHT family %d", c.DHT.Family)
		}
	}
	for i, s := range c.Sonars {
		if s.Trigger == "" || s.Echo == "" {
			return fmt.Errorf("board: sonar %d needs a trigger and an echo pin", i+1)
		}
	}
	for i, t := range c.Trackers {
		if t == "" {
			return fmt.Errorf("board: tracker %d has no pin", i+1)
		}
	}
	return nil
}
