// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

const us = time.Microsecond

// fakeClock only advances when the driver sleeps, spins, or reads the pin.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }
func (c *fakeClock) Spin(d time.Duration)  { c.now = c.now.Add(d) }

type segment struct {
	l gpio.Level
	d time.Duration
}

// sensorPin emulates the data line of a sensor. Once the host releases the
// line, it plays the next waveform; the line is high past its end.
type sensorPin struct {
	gpiotest.Pin
	clock *fakeClock
	// waveforms are played in order, one per exchange. The last one repeats.
	waveforms [][]segment

	played   int
	released time.Time
	pull     gpio.Pull
	lows     []time.Time
	current  []segment
	// events logs the request and release of the line, in order.
	events []string
}

func (p *sensorPin) Out(l gpio.Level) error {
	if l == gpio.Low {
		p.lows = append(p.lows, p.clock.now)
		p.events = append(p.events, "request")
	}
	p.released = time.Time{}
	p.L = l
	return nil
}

func (p *sensorPin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.pull = pull
	p.released = p.clock.now
	p.events = append(p.events, "release")
	p.current = nil
	if len(p.waveforms) != 0 {
		i := p.played
		if i >= len(p.waveforms) {
			i = len(p.waveforms) - 1
		}
		p.current = p.waveforms[i]
	}
	p.played++
	return nil
}

func (p *sensorPin) Read() gpio.Level {
	p.clock.now = p.clock.now.Add(us)
	if p.released.IsZero() {
		return p.L
	}
	at := p.clock.now.Sub(p.released)
	for _, s := range p.current {
		if at < s.d {
			return s.l
		}
		at -= s.d
	}
	return gpio.High
}

// waveform returns the line levels a sensor produces to transmit b.
func waveform(b ...byte) []segment {
	s := []segment{{gpio.High, 30 * us}, {gpio.Low, 80 * us}, {gpio.High, 80 * us}}
	for _, v := range b {
		for i := 7; i >= 0; i-- {
			s = append(s, segment{gpio.Low, 50 * us})
			if v>>uint(i)&1 == 1 {
				s = append(s, segment{gpio.High, 70 * us})
			} else {
				s = append(s, segment{gpio.High, 26 * us})
			}
		}
	}
	return append(s, segment{gpio.Low, 50 * us})
}

func newTestDev(t *testing.T, f Family, opts *Opts, waveforms ...[]segment) (*Dev, *sensorPin) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	p := &sensorPin{Pin: gpiotest.Pin{N: "GPIO4", Num: 4}, clock: clock, waveforms: waveforms}
	d, err := newDev(p, f, opts, clock)
	if err != nil {
		t.Fatal(err)
	}
	return d, p
}

func TestFrameBytes(t *testing.T) {
	want := [5]byte{0xa5, 0x01, 0x80, 0xff, 0x3c}
	var f Frame
	for i := range f {
		f[i] = want[i/8]>>(7-uint(i%8))&1 == 1
	}
	if got := f.Bytes(); got != want {
		t.Errorf("Bytes() = %#v, want %#v", got, want)
	}
	// A single set bit lands at its MSB-first position regardless of the byte
	// it belongs to.
	for i := 0; i < frameBits; i++ {
		var one Frame
		one[i] = true
		b := one.Bytes()
		for j := range b {
			var exp byte
			if j == i/8 {
				exp = 0x80 >> uint(i%8)
			}
			if b[j] != exp {
				t.Fatalf("bit %d: byte %d = 0x%02x, want 0x%02x", i, j, b[j], exp)
			}
		}
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name   string
		family Family
		frame  [5]byte
		want   Reading
	}{
		{
			name:   "DHT11",
			family: DHT11,
			frame:  [5]byte{0x32, 0x00, 0x18, 0x00, 0x4a},
			want:   Reading{Humidity: 50 * physic.PercentRH, Temperature: physic.ZeroCelsius + 24*physic.Kelvin},
		},
		{
			name:   "DHT11 fractional",
			family: DHT11,
			frame:  [5]byte{0x2d, 0x05, 0x16, 0x07, 0x4f},
			want: Reading{
				Humidity:    45*physic.PercentRH + 500*physic.MicroRH,
				Temperature: physic.ZeroCelsius + 22*physic.Kelvin + 70*physic.MilliKelvin,
			},
		},
		{
			name:   "DHT22",
			family: DHT22,
			frame:  [5]byte{0x02, 0x8c, 0x01, 0x5f, 0xee},
			want:   Reading{Humidity: 652 * physic.MilliRH, Temperature: physic.ZeroCelsius + 351*100*physic.MilliKelvin},
		},
		{
			name:   "DHT22 negative",
			family: DHT22,
			frame:  [5]byte{0x01, 0x90, 0x80, 0x32, 0x43},
			want:   Reading{Humidity: 40 * physic.PercentRH, Temperature: physic.ZeroCelsius - 5*physic.Kelvin},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeFrame(tc.family, tc.frame)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(got, tc.want); diff != "" {
				t.Errorf("decodeFrame() difference (-got +want):\n%s", diff)
			}
		})
	}
}

func TestDecodeFrameChecksum(t *testing.T) {
	frame := [5]byte{0x32, 0x00, 0x18, 0x00, 0x4a}
	for i := 0; i < 32; i++ {
		b := frame
		b[i/8] ^= 0x80 >> uint(i%8)
		_, err := decodeFrame(DHT11, b)
		var ce *ChecksumError
		if !errors.As(err, &ce) {
			t.Fatalf("flipping bit %d: expected ChecksumError, got %v", i, err)
		}
		if ce.Want == b[4] {
			t.Fatalf("flipping bit %d: checksum unexpectedly matches", i)
		}
	}
}

func TestQuery(t *testing.T) {
	d, p := newTestDev(t, DHT22, nil, waveform(0x01, 0x90, 0x80, 0x32, 0x43))
	if _, ok := d.Last(); ok {
		t.Fatal("Last() must be empty before the first query")
	}
	r, err := d.Query()
	if err != nil {
		t.Fatal(err)
	}
	want := Reading{Humidity: 40 * physic.PercentRH, Temperature: physic.ZeroCelsius - 5*physic.Kelvin}
	if diff := cmp.Diff(r, want); diff != "" {
		t.Errorf("Query() difference (-got +want):\n%s", diff)
	}
	if last, ok := d.Last(); !ok || last != want {
		t.Errorf("Last() = %v, %t", last, ok)
	}
	if p.pull != gpio.PullUp {
		t.Errorf("expected the pull-up to be enabled, got %s", p.pull)
	}
	if len(p.lows) != 1 {
		t.Errorf("expected a single request pulse, got %d", len(p.lows))
	}
}

func TestQueryNoPullUp(t *testing.T) {
	d, p := newTestDev(t, DHT11, &Opts{}, waveform(0x32, 0x00, 0x18, 0x00, 0x4a))
	if _, err := d.Query(); err != nil {
		t.Fatal(err)
	}
	if p.pull != gpio.PullNoChange {
		t.Errorf("expected the pull to be left unchanged, got %s", p.pull)
	}
}

func TestQueryNoResponse(t *testing.T) {
	// No waveform: the line stays high after the release.
	d, _ := newTestDev(t, DHT11, nil)
	_, err := d.Query()
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if !te.NoResponse() {
		t.Errorf("expected no response, got phase %q", te.Phase)
	}
	if _, ok := d.Last(); ok {
		t.Error("failed query must not produce a reading")
	}
}

func TestQueryTruncatedFrame(t *testing.T) {
	w := waveform(0x32, 0x00, 0x18, 0x00, 0x4a)
	// Keep the ack and the first 20 bits.
	w = w[:3+2*20]
	d, _ := newTestDev(t, DHT11, nil, w)
	_, err := d.Query()
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if te.Phase != PhaseBit || te.Bit < 19 || te.Bit > 20 {
		t.Errorf("unexpected timeout %#v", te)
	}
	if !strings.Contains(err.Error(), "bit") {
		t.Errorf("unexpected message %q", err)
	}
}

func TestQueryChecksumKeepsLast(t *testing.T) {
	d, _ := newTestDev(t, DHT11, nil,
		waveform(0x32, 0x00, 0x18, 0x00, 0x4a),
		waveform(0x33, 0x00, 0x18, 0x00, 0x4a))
	first, err := d.Query()
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.Query()
	var ce *ChecksumError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ChecksumError, got %v", err)
	}
	if ce.Frame[0] != 0x33 || ce.Want != 0x4b {
		t.Errorf("unexpected checksum error %#v", ce)
	}
	if last, ok := d.Last(); !ok || last != first {
		t.Errorf("Last() = %v, %t, want %v", last, ok, first)
	}
}

func TestQueryCooldown(t *testing.T) {
	good := waveform(0x32, 0x00, 0x18, 0x00, 0x4a)
	d, p := newTestDev(t, DHT11, nil, good, good)
	for i := 0; i < 2; i++ {
		if _, err := d.Query(); err != nil {
			t.Fatal(err)
		}
	}
	if len(p.lows) != 2 {
		t.Fatalf("expected 2 request pulses, got %d", len(p.lows))
	}
	if gap := p.lows[1].Sub(p.lows[0]); gap < DefaultOpts.Cooldown {
		t.Errorf("second request after %s, cooldown is %s", gap, DefaultOpts.Cooldown)
	}
}

func TestQueryConcurrent(t *testing.T) {
	good := waveform(0x32, 0x00, 0x18, 0x00, 0x4a)
	d, p := newTestDev(t, DHT11, nil, good)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.Query()
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("query %d: %v", i, err)
		}
	}
	// The second exchange only starts once the first one released the line
	// and read its frame.
	want := []string{"request", "release", "request", "release"}
	if diff := cmp.Diff(want, p.events); diff != "" {
		t.Fatalf("exchanges interleaved (-want +got):\n%s", diff)
	}
	if gap := p.lows[1].Sub(p.lows[0]); gap < DefaultOpts.Cooldown {
		t.Errorf("second request after %s, cooldown is %s", gap, DefaultOpts.Cooldown)
	}
	if r, ok := d.Last(); !ok || r.Humidity != 50*physic.PercentRH {
		t.Errorf("Last() = %v, %t", r, ok)
	}
}

func TestQueryRetry(t *testing.T) {
	opts := DefaultOpts
	opts.Retries = 2
	d, p := newTestDev(t, DHT11, &opts,
		waveform(0x32, 0x00, 0x18, 0x00, 0x00),
		nil,
		waveform(0x32, 0x00, 0x18, 0x00, 0x4a))
	r, err := d.Query()
	if err != nil {
		t.Fatal(err)
	}
	if r.Humidity != 50*physic.PercentRH {
		t.Errorf("unexpected reading %v", r)
	}
	if len(p.lows) != 3 {
		t.Fatalf("expected 3 exchanges, got %d", len(p.lows))
	}
	for i := 1; i < len(p.lows); i++ {
		if gap := p.lows[i].Sub(p.lows[i-1]); gap < opts.Cooldown {
			t.Errorf("retry %d after %s, inside the cooldown", i, gap)
		}
	}
}

func TestQueryRetryExhausted(t *testing.T) {
	opts := DefaultOpts
	opts.Retries = 1
	d, p := newTestDev(t, DHT11, &opts)
	_, err := d.Query()
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if len(p.lows) != 2 {
		t.Errorf("expected 2 exchanges, got %d", len(p.lows))
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	opts := DefaultOpts
	opts.Logger = &logger
	d, _ := newTestDev(t, DHT11, &opts, waveform(0x32, 0x00, 0x18, 0x00, 0x4a))
	if _, err := d.Query(); err != nil {
		t.Fatal(err)
	}
	if s := buf.String(); !strings.Contains(s, `"checksum_ok":true`) || !strings.Contains(s, "DHT11") {
		t.Errorf("unexpected log output %q", s)
	}
}

func TestSense(t *testing.T) {
	d, _ := newTestDev(t, DHT11, nil, waveform(0x32, 0x00, 0x18, 0x00, 0x4a))
	e := physic.Env{Pressure: physic.Pascal}
	if err := d.Sense(&e); err != nil {
		t.Fatal(err)
	}
	want := physic.Env{Temperature: physic.ZeroCelsius + 24*physic.Kelvin, Humidity: 50 * physic.PercentRH}
	if diff := cmp.Diff(e, want); diff != "" {
		t.Errorf("Sense() difference (-got +want):\n%s", diff)
	}
}

func TestSenseContinuous(t *testing.T) {
	opts := DefaultOpts
	opts.Cooldown = 10 * time.Millisecond
	d, _ := newTestDev(t, DHT22, &opts, waveform(0x02, 0x8c, 0x01, 0x5f, 0xee))
	if _, err := d.SenseContinuous(time.Millisecond); err == nil {
		t.Error("SenseContinuous() accepted an interval below the cooldown")
	}
	ch, err := d.SenseContinuous(10 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.SenseContinuous(10 * time.Millisecond); err == nil {
		t.Error("SenseContinuous() started twice")
	}
	for i := 0; i < 3; i++ {
		e := <-ch
		if e.Humidity != 652*physic.MilliRH {
			t.Errorf("unexpected humidity %s", e.Humidity)
		}
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	for range ch {
	}
}

func TestBasic(t *testing.T) {
	if _, err := New(nil, DHT11, nil); err == nil {
		t.Error("New() accepted a nil pin")
	}
	if _, err := New(&gpiotest.Pin{N: "GPIO4"}, Family(3), nil); err == nil {
		t.Error("New() accepted an unknown family")
	}
	p := &gpiotest.Pin{N: "GPIO4", Num: 4}
	d, err := New(p, DHT22, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s := d.String(); s != "DHT22{"+p.String()+"}" {
		t.Errorf("unexpected String() %q", s)
	}
	if d.Family() != DHT22 {
		t.Errorf("unexpected family %s", d.Family())
	}
	e := physic.Env{}
	d.Precision(&e)
	if e.Temperature != 100*physic.MilliKelvin || e.Humidity != physic.PercentRH/10 {
		t.Errorf("unexpected precision %v", e)
	}
	if err := d.Halt(); err != nil {
		t.Error(err)
	}
}
