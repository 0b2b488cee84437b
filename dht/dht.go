// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/iyirobot/common"
)

// Family selects the data format of the sensor.
type Family byte

const (
	DHT11 Family = 11
	DHT22 Family = 22
)

func (f Family) String() string {
	switch f {
	case DHT11:
		return "DHT11"
	case DHT22:
		return "DHT22"
	default:
		return "unknown"
	}
}

const (
	requestPulse = 18 * time.Millisecond
	releaseDelay = 20 * time.Microsecond
	// A high phase still present after sampleDelay encodes a 1.
	sampleDelay = 28 * time.Microsecond

	frameBits  = 40
	frameBytes = frameBits / 8
)

// Opts holds the configuration options for the device.
type Opts struct {
	// EdgeTimeout bounds every wait for a level change on the data line.
	// Default is 1ms.
	EdgeTimeout time.Duration
	// Cooldown is the minimum time between two exchanges with the sensor.
	// Default is 2s.
	Cooldown time.Duration
	// Retries is the number of additional exchanges attempted after a failed
	// one. Each retry waits for the cooldown first.
	Retries int
	// PullUp enables the internal pull-up of the data pin when the line is
	// released. Leave false if the board has an external pull-up resistor.
	PullUp bool
	// Logger receives debug diagnostics about each exchange. nil disables
	// logging.
	Logger *zerolog.Logger
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{
	EdgeTimeout: time.Millisecond,
	Cooldown:    2 * time.Second,
	PullUp:      true,
}

// Reading is a decoded measurement.
type Reading struct {
	Humidity    physic.RelativeHumidity
	Temperature physic.Temperature
}

func (r Reading) String() string {
	return r.Temperature.String() + " " + r.Humidity.String()
}

// Frame holds the 40 sampled bit slots of an exchange, in reception order.
type Frame [frameBits]bool

// Bytes packs the frame into 5 bytes, most significant bit first.
func (f *Frame) Bytes() [frameBytes]byte {
	var b [frameBytes]byte
	for i, bit := range f {
		if bit {
			b[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return b
}

// Dev is a handle to a DHT11 or DHT22 sensor on a GPIO pin.
type Dev struct {
	p      gpio.PinIO
	family Family
	opts   Opts
	clock  common.Clock
	log    zerolog.Logger

	// mu owns the data line for the duration of an exchange.
	mu       sync.Mutex
	lastExch time.Time

	last lastReading

	cmu  sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// New returns a Dev reading a sensor of family f connected to p. The Opts can
// be nil.
func New(p gpio.PinIO, f Family, opts *Opts) (*Dev, error) {
	return newDev(p, f, opts, common.SystemClock)
}

func newDev(p gpio.PinIO, f Family, opts *Opts, clock common.Clock) (*Dev, error) {
	if p == nil {
		return nil, errors.New("dht: pin is required")
	}
	if f != DHT11 && f != DHT22 {
		return nil, fmt.Errorf("dht: %w", &common.RangeError{What: "sensor family", Value: int(f), Min: int(DHT11), Max: int(DHT22)})
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{p: p, family: f, opts: *opts, clock: clock, log: zerolog.Nop()}
	if d.opts.EdgeTimeout <= 0 {
		d.opts.EdgeTimeout = DefaultOpts.EdgeTimeout
	}
	if d.opts.Cooldown <= 0 {
		d.opts.Cooldown = DefaultOpts.Cooldown
	}
	if d.opts.Retries < 0 {
		d.opts.Retries = 0
	}
	if d.opts.Logger != nil {
		d.log = *d.opts.Logger
	}
	return d, nil
}

// Family returns the sensor family the Dev decodes.
func (d *Dev) Family() Family {
	return d.family
}

// Query performs a measurement and returns the decoded reading. It blocks for
// at least the 18ms request pulse, plus the remaining cooldown if the previous
// exchange was less than Opts.Cooldown ago.
//
// On failure the error is a *TimeoutError, a *ChecksumError or the error
// returned by the pin. The reading returned by Last is only updated on
// success.
func (d *Dev) Query() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	for attempt := 0; attempt <= d.opts.Retries; attempt++ {
		var r Reading
		if r, err = d.exchange(); err == nil {
			d.last.set(r)
			return r, nil
		}
		d.log.Debug().Err(err).Int("attempt", attempt).Msg("dht query failed")
	}
	return Reading{}, err
}

// Last returns the reading of the last successful Query. ok is false if no
// query succeeded yet.
func (d *Dev) Last() (r Reading, ok bool) {
	return d.last.get()
}

// Sense implements physic.SenseEnv.
func (d *Dev) Sense(e *physic.Env) error {
	r, err := d.Query()
	if err != nil {
		return err
	}
	e.Temperature = r.Temperature
	e.Humidity = r.Humidity
	e.Pressure = 0
	return nil
}

// SenseContinuous implements physic.SenseEnv. The interval must be at least
// Opts.Cooldown. Failed measurements are skipped. It is the caller's
// responsibility to call Halt() when done.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < d.opts.Cooldown {
		return nil, fmt.Errorf("dht: invalid interval, minimum %s", d.opts.Cooldown)
	}
	d.cmu.Lock()
	defer d.cmu.Unlock()
	if d.stop != nil {
		return nil, errors.New("dht: sense continuous already running")
	}

	d.stop = make(chan struct{})
	ch := make(chan physic.Env, 1)
	d.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer d.wg.Done()
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				var e physic.Env
				if err := d.Sense(&e); err != nil {
					continue
				}
				select {
				case ch <- e:
				case <-stop:
					return
				}
			}
		}
	}(d.stop)
	return ch, nil
}

// Precision implements physic.SenseEnv. It returns the resolution of the
// data format, not the accuracy of the sensor.
func (d *Dev) Precision(e *physic.Env) {
	if d.family == DHT11 {
		e.Temperature = physic.Kelvin / 100
		e.Humidity = physic.PercentRH / 100
	} else {
		e.Temperature = physic.Kelvin / 10
		e.Humidity = physic.PercentRH / 10
	}
	e.Pressure = 0
}

// Halt stops a running SenseContinuous. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.cmu.Lock()
	defer d.cmu.Unlock()
	if d.stop == nil {
		return nil
	}
	close(d.stop)
	d.wg.Wait()
	d.stop = nil
	return nil
}

func (d *Dev) String() string {
	return d.family.String() + "{" + d.p.String() + "}"
}

// exchange runs one request/response cycle. d.mu must be held.
func (d *Dev) exchange() (Reading, error) {
	if !d.lastExch.IsZero() {
		if wait := d.opts.Cooldown - d.clock.Now().Sub(d.lastExch); wait > 0 {
			d.clock.Sleep(wait)
		}
	}
	start := d.clock.Now()
	b, err := d.readFrame()
	d.lastExch = d.clock.Now()
	if err != nil {
		return Reading{}, err
	}
	r, err := decodeFrame(d.family, b)
	d.log.Debug().
		Str("family", d.family.String()).
		Dur("duration", d.lastExch.Sub(start)).
		Bool("checksum_ok", err == nil).
		Msg("dht query completed")
	return r, err
}

func (d *Dev) readFrame() ([frameBytes]byte, error) {
	var b [frameBytes]byte
	if err := d.p.Out(gpio.Low); err != nil {
		return b, fmt.Errorf("dht: %w", err)
	}
	d.clock.Sleep(requestPulse)
	pull := gpio.PullNoChange
	if d.opts.PullUp {
		pull = gpio.PullUp
	}
	if err := d.p.In(pull, gpio.NoEdge); err != nil {
		return b, fmt.Errorf("dht: %w", err)
	}
	d.clock.Spin(releaseDelay)

	// The line is high from the pull-up until the sensor acknowledges.
	if !d.waitFor(gpio.Low) {
		return b, &TimeoutError{Phase: PhaseResponse}
	}
	if !d.waitFor(gpio.High) || !d.waitFor(gpio.Low) {
		return b, &TimeoutError{Phase: PhaseAck}
	}

	var f Frame
	for i := range f {
		if !d.waitFor(gpio.Low) || !d.waitFor(gpio.High) {
			return b, &TimeoutError{Phase: PhaseBit, Bit: i}
		}
		d.clock.Spin(sampleDelay)
		f[i] = d.p.Read() == gpio.High
	}
	return f.Bytes(), nil
}

// waitFor polls the line until it reads l. It returns false if
// Opts.EdgeTimeout elapsed first.
func (d *Dev) waitFor(l gpio.Level) bool {
	deadline := d.clock.Now().Add(d.opts.EdgeTimeout)
	for d.p.Read() != l {
		if !d.clock.Now().Before(deadline) {
			return false
		}
	}
	return true
}

// decodeFrame verifies the checksum of b and decodes it according to f.
func decodeFrame(f Family, b [frameBytes]byte) (Reading, error) {
	if want := common.Sum8(b[:4]); want != b[4] {
		return Reading{}, &ChecksumError{Frame: b, Want: want}
	}
	var r Reading
	switch f {
	case DHT11:
		r.Humidity = physic.RelativeHumidity(b[0])*physic.PercentRH + physic.RelativeHumidity(b[1])*(physic.PercentRH/100)
		r.Temperature = physic.ZeroCelsius + physic.Temperature(b[2])*physic.Kelvin + physic.Temperature(b[3])*(physic.Kelvin/100)
	case DHT22:
		h := uint16(b[0])<<8 | uint16(b[1])
		r.Humidity = physic.RelativeHumidity(h) * (physic.PercentRH / 10)
		t := physic.Temperature(uint16(b[2]&0x7f)<<8|uint16(b[3])) * (physic.Kelvin / 10)
		if b[2]&0x80 != 0 {
			t = -t
		}
		r.Temperature = physic.ZeroCelsius + t
	}
	return r, nil
}

// lastReading is the cached result of the last successful query. Only Query
// writes it.
type lastReading struct {
	mu sync.Mutex
	r  Reading
	ok bool
}

func (l *lastReading) set(r Reading) {
	l.mu.Lock()
	l.r, l.ok = r, true
	l.mu.Unlock()
}

func (l *lastReading) get() (Reading, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r, l.ok
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
