// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// The PCA9685 is a 16-channel, 12-bit PWM controller. Each channel has an
// on and an off tick within a period of 4096 ticks, the period itself is set
// by dividing the 25MHz internal oscillator with the prescale register.
//
// The device is initialized lazily, on the first call that needs it, with
// the frequency in Opts. Servos usually expect 50Hz.
//
// # Datasheet
//
// https://www.nxp.com/docs/en/data-sheet/PCA9685.pdf
package pca9685

import (
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/iyirobot/common"
)

const (
	// DefaultAddress is the address with all address pins low.
	DefaultAddress uint16 = 0x40
	// NumChannels is the number of PWM outputs.
	NumChannels = 16
	// MaxTick is the highest on or off tick of a channel.
	MaxTick = 4095
	// Oscillator is the frequency of the internal oscillator.
	Oscillator = 25 * physic.MegaHertz

	// ServoPeriod is the PWM period servos expect, 50Hz.
	ServoPeriod = 20 * time.Millisecond
	// ServoFrequency is the PWM frequency matching ServoPeriod.
	ServoFrequency = 50 * physic.Hertz
	// MaxServoAngle is the highest angle accepted by SetServoAngle.
	MaxServoAngle = 180
)

const (
	// Register addresses from the datasheet
	_MODE1        byte = 0x00
	_LED0_ON_L    byte = 0x06
	_ALL_LED_ON_L byte = 0xfa
	_PRESCALE     byte = 0xfe

	_REG_INCREMENT = 4
)

const (
	_MODE1_RESTART byte = 0x80
	_MODE1_AI      byte = 0x20
	_MODE1_SLEEP   byte = 0x10
	_MODE1_ALLCALL byte = 0x01
	// Written after the oscillator is running again.
	_MODE1_WAKE = _MODE1_RESTART | _MODE1_AI | _MODE1_ALLCALL

	_LED_FULL byte = 0x10

	_PRESCALE_MIN = 3
	_PRESCALE_MAX = 255

	oscillatorStartup = 5 * time.Millisecond
)

// Opts holds the configuration options for the device.
type Opts struct {
	// Frequency is the PWM frequency set on initialization. Default is 50Hz.
	Frequency physic.Frequency
	// Retries is the number of additional attempts made for a failed bus
	// transaction. Default is 0.
	Retries int
	// RetryDelay is the wait between two attempts. Default is 1ms.
	RetryDelay time.Duration
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{
	Frequency:  50 * physic.Hertz,
	RetryDelay: time.Millisecond,
}

// Dev represents a PCA9685 PWM controller.
type Dev struct {
	d     *i2c.Dev
	opts  Opts
	clock common.Clock

	mu          sync.Mutex
	initialized bool
	freq        physic.Frequency
	prescale    byte
}

// NewI2C returns a PCA9685 device on the given bus and address. The Opts can
// be nil. The bus is not accessed until the device is first used.
func NewI2C(b i2c.Bus, address uint16, opts *Opts) (*Dev, error) {
	return newDev(b, address, opts, common.SystemClock)
}

func newDev(b i2c.Bus, address uint16, opts *Opts, clock common.Clock) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	dev := &Dev{d: &i2c.Dev{Bus: b, Addr: address}, opts: *opts, clock: clock}
	if dev.opts.Frequency == 0 {
		dev.opts.Frequency = DefaultOpts.Frequency
	}
	if _, err := Prescale(Oscillator, dev.opts.Frequency); err != nil {
		return nil, wrap(err)
	}
	if dev.opts.Retries < 0 {
		dev.opts.Retries = 0
	}
	if dev.opts.RetryDelay <= 0 {
		dev.opts.RetryDelay = DefaultOpts.RetryDelay
	}
	return dev, nil
}

// Prescale returns the prescale register value that divides the oscillator
// down to the PWM frequency f.
func Prescale(oscillator, f physic.Frequency) (byte, error) {
	if f <= 0 {
		return 0, &common.RangeError{What: "frequency (Hz)", Value: int(f / physic.Hertz), Min: 1, Max: int(oscillator / physic.Hertz)}
	}
	p := math.Round(float64(oscillator)/4096/float64(f)) - 1
	if p < _PRESCALE_MIN || p > _PRESCALE_MAX {
		return 0, &common.RangeError{What: "prescale", Value: int(p), Min: _PRESCALE_MIN, Max: _PRESCALE_MAX}
	}
	return byte(p), nil
}

// ServoTicks returns the off tick of a 50Hz pulse positioning a servo at
// degree. 0° to 180° maps to 600µs to 2400µs. The result is truncated.
func ServoTicks(degree int) int {
	return PulseTicks(servoPulse(degree), ServoFrequency)
}

// PulseTicks returns the number of ticks a pulse of width w lasts at the PWM
// frequency f. The result is truncated.
func PulseTicks(w time.Duration, f physic.Frequency) int {
	return int(int64(w/time.Microsecond) * (MaxTick + 1) * int64(f) / (1000000 * int64(physic.Hertz)))
}

func servoPulse(degree int) time.Duration {
	return time.Duration(degree*1800/MaxServoAngle+600) * time.Microsecond
}

// Initialize resets the device and programs the frequency from Opts. It is
// called implicitly on first use and does nothing once done.
func (dev *Dev) Initialize() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.init()
}

func (dev *Dev) init() error {
	if dev.initialized {
		return nil
	}
	if err := dev.write("reset", _MODE1, 0x00); err != nil {
		return err
	}
	if err := dev.setFrequency(dev.opts.Frequency); err != nil {
		return err
	}
	dev.initialized = true
	return nil
}

// SetFrequency changes the PWM frequency of all channels. Valid frequencies
// are about 24Hz to 1526Hz.
func (dev *Dev) SetFrequency(f physic.Frequency) error {
	if _, err := Prescale(Oscillator, f); err != nil {
		return wrap(err)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if !dev.initialized {
		dev.opts.Frequency = f
		return dev.init()
	}
	return dev.setFrequency(f)
}

// setFrequency reprograms the prescaler, which the chip only accepts while
// sleeping.
func (dev *Dev) setFrequency(f physic.Frequency) error {
	prescale, err := Prescale(Oscillator, f)
	if err != nil {
		return wrap(err)
	}
	mode := []byte{0}
	if err := dev.tx("read MODE1", []byte{_MODE1}, mode); err != nil {
		return err
	}
	old := mode[0]
	if err := dev.write("sleep", _MODE1, old&^_MODE1_RESTART|_MODE1_SLEEP); err != nil {
		return err
	}
	if err := dev.write("write PRESCALE", _PRESCALE, prescale); err != nil {
		return err
	}
	if err := dev.write("restore MODE1", _MODE1, old); err != nil {
		return err
	}
	dev.clock.Sleep(oscillatorStartup)
	if err := dev.write("wake", _MODE1, old|_MODE1_WAKE); err != nil {
		return err
	}
	dev.freq = f
	dev.prescale = prescale
	return nil
}

// SetChannelDuty programs the on and off tick of a channel. The output is
// high from the on tick to the off tick, wrapping around the period when
// on > off.
func (dev *Dev) SetChannelDuty(channel, on, off int) error {
	if err := common.CheckRange("channel", channel, 0, NumChannels-1); err != nil {
		return wrap(err)
	}
	if err := common.CheckRange("on tick", on, 0, MaxTick); err != nil {
		return wrap(err)
	}
	if err := common.CheckRange("off tick", off, 0, MaxTick); err != nil {
		return wrap(err)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := dev.init(); err != nil {
		return err
	}
	return dev.setChannel(channel, on, off)
}

func (dev *Dev) setChannel(channel, on, off int) error {
	w := []byte{channelReg(channel), byte(on), byte(on >> 8), byte(off), byte(off >> 8)}
	return dev.tx(fmt.Sprintf("write LED%d", channel), w, nil)
}

// ChannelDuty reads back the on and off tick of a channel.
func (dev *Dev) ChannelDuty(channel int) (on, off int, err error) {
	if err := common.CheckRange("channel", channel, 0, NumChannels-1); err != nil {
		return 0, 0, wrap(err)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := dev.init(); err != nil {
		return 0, 0, err
	}
	r := make([]byte, 4)
	if err := dev.tx(fmt.Sprintf("read LED%d", channel), []byte{channelReg(channel)}, r); err != nil {
		return 0, 0, err
	}
	on = int(r[0]) | int(r[1]&0x0f)<<8
	off = int(r[2]) | int(r[3]&0x0f)<<8
	return on, off, nil
}

// SetServoAngle positions a servo connected to channel. The pulse width is
// converted at the programmed frequency; servos usually need 50Hz.
func (dev *Dev) SetServoAngle(channel, degree int) error {
	if err := common.CheckRange("channel", channel, 0, NumChannels-1); err != nil {
		return wrap(err)
	}
	if err := common.CheckRange("servo angle", degree, 0, MaxServoAngle); err != nil {
		return wrap(err)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := dev.init(); err != nil {
		return err
	}
	off := PulseTicks(servoPulse(degree), dev.freq)
	if err := common.CheckRange("servo pulse tick", off, 0, MaxTick); err != nil {
		return wrap(err)
	}
	return dev.setChannel(channel, 0, off)
}

// SetAllOff turns all channels fully off in a single transaction.
func (dev *Dev) SetAllOff() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := dev.init(); err != nil {
		return err
	}
	return dev.tx("write ALL_LED", []byte{_ALL_LED_ON_L, 0, 0, 0, _LED_FULL}, nil)
}

// Halt turns all channels off and puts the device to sleep. The next call
// initializes it again. Implements conn.Resource.
func (dev *Dev) Halt() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if !dev.initialized {
		return nil
	}
	if err := dev.tx("write ALL_LED", []byte{_ALL_LED_ON_L, 0, 0, 0, _LED_FULL}, nil); err != nil {
		return err
	}
	mode := []byte{0}
	if err := dev.tx("read MODE1", []byte{_MODE1}, mode); err != nil {
		return err
	}
	if err := dev.write("sleep", _MODE1, mode[0]&^_MODE1_RESTART|_MODE1_SLEEP); err != nil {
		return err
	}
	dev.initialized = false
	return nil
}

// Addr returns the I²C address of the device.
func (dev *Dev) Addr() uint16 {
	return dev.d.Addr
}

// Frequency returns the PWM frequency programmed into the device, 0 if it
// is not initialized.
func (dev *Dev) Frequency() physic.Frequency {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.freq
}

// Prescale returns the prescale register value programmed into the device.
func (dev *Dev) Prescale() byte {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.prescale
}

func (dev *Dev) String() string {
	return fmt.Sprintf("pca9685: %s", dev.d)
}

func channelReg(channel int) byte {
	return _LED0_ON_L + byte(_REG_INCREMENT*channel)
}

func (dev *Dev) write(op string, reg, value byte) error {
	return dev.tx(op, []byte{reg, value}, nil)
}

// tx runs a bus transaction, retrying it up to Opts.Retries times.
func (dev *Dev) tx(op string, w, r []byte) error {
	var err error
	for attempt := 0; attempt <= dev.opts.Retries; attempt++ {
		if attempt > 0 {
			dev.clock.Sleep(dev.opts.RetryDelay)
		}
		if err = dev.d.Tx(w, r); err == nil {
			return nil
		}
	}
	return wrap(&common.TransportError{Op: op, Err: err})
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("pca9685: %w", err)
}

var _ conn.Resource = &Dev{}
