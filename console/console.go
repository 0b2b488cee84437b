// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package console shows the duty cycle of the PWM channels on a terminal
// using ANSI color codes.
//
// Each channel is drawn as one colored block, from black when off to bright
// green when fully on, followed by the duty in percent. Useful to check the
// motor and servo mapping with nothing wired to the controller.
package console

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"

	"github.com/GermanBionicSystems/iyirobot/pca9685"
)

// DutyReader reads back the on and off tick of a PWM channel.
// *pca9685.Dev implements it.
type DutyReader interface {
	ChannelDuty(channel int) (on, off int, err error)
}

// Opts represents the options available for the view.
type Opts struct {
	// W is the terminal. Default is a colorable stdout.
	W       io.Writer
	Palette *ansi256.Palette
	// Channels is the number of channels shown. Default is
	// pca9685.NumChannels.
	Channels int
}

// Dev renders PWM channel duty cycles to the console.
type Dev struct {
	w        io.Writer
	palette  ansi256.Palette
	channels int

	ticks []int
	buf   bytes.Buffer
}

// New returns a Dev that displays at the console. The Opts can be nil.
func New(opts *Opts) *Dev {
	if opts == nil {
		opts = &Opts{}
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	n := opts.Channels
	if n <= 0 {
		n = pca9685.NumChannels
	}
	return &Dev{w: w, palette: *p, channels: n, ticks: make([]int, n)}
}

func (d *Dev) String() string {
	return "Console"
}

// Halt implements conn.Resource.
//
// It resets the terminal colors.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Write shows the high time of each channel, in ticks out of
// pca9685.MaxTick+1.
func (d *Dev) Write(ticks []int) error {
	if len(ticks) > d.channels {
		return errors.New("console: too many channels")
	}
	copy(d.ticks, ticks)
	return d.refresh()
}

// Refresh reads every channel from r and shows them.
func (d *Dev) Refresh(r DutyReader) error {
	for i := range d.ticks {
		on, off, err := r.ChannelDuty(i)
		if err != nil {
			return fmt.Errorf("console: %w", err)
		}
		d.ticks[i] = HighTicks(on, off)
	}
	return d.refresh()
}

// HighTicks returns the number of ticks a channel is high per period.
func HighTicks(on, off int) int {
	return ((off-on)%period + period) % period
}

const period = pca9685.MaxTick + 1

func (d *Dev) refresh() error {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for _, t := range d.ticks {
		c := color.NRGBA{G: byte(t * 255 / pca9685.MaxTick), A: 255}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m")
	for i, t := range d.ticks {
		fmt.Fprintf(&d.buf, " %d:%3d%%", i, t*100/period)
	}
	_, err := d.buf.WriteTo(d.w)
	return err
}

var _ fmt.Stringer = &Dev{}
