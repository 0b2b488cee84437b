// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package console

import (
	"bytes"
	"errors"
	"image/color"
	"strings"
	"testing"

	"github.com/maruel/ansi256"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/GermanBionicSystems/iyirobot/pca9685"
)

func TestHighTicks(t *testing.T) {
	tests := []struct {
		on, off, want int
	}{
		{0, 0, 0},
		{0, 2048, 2048},
		{1000, 3000, 2000},
		{3000, 1000, 2096},
		{0, 4095, 4095},
	}
	for _, tc := range tests {
		if got := HighTicks(tc.on, tc.off); got != tc.want {
			t.Errorf("HighTicks(%d, %d) = %d, want %d", tc.on, tc.off, got, tc.want)
		}
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	d := New(&Opts{W: &buf, Channels: 2})
	if err := d.Write([]int{0, 2048}); err != nil {
		t.Fatal(err)
	}
	p := ansi256.Default
	want := "\r\033[0m" +
		p.Block(color.NRGBA{A: 255}) +
		p.Block(color.NRGBA{G: 127, A: 255}) +
		"\033[0m 0:  0% 1: 50%"
	if got := buf.String(); got != want {
		t.Errorf("Write() output %q, want %q", got, want)
	}
	if err := d.Write(make([]int, 3)); err == nil {
		t.Error("Write() accepted more channels than configured")
	}
	buf.Reset()
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "\n\033[0m" {
		t.Errorf("Halt() output %q", buf.String())
	}
	if d.String() != "Console" {
		t.Error(d.String())
	}
}

type failingReader struct{}

func (failingReader) ChannelDuty(channel int) (int, int, error) {
	return 0, 0, errors.New("no ack")
}

func TestRefresh(t *testing.T) {
	// A controller that was never used; the view initializes it and reads the
	// two channels it shows.
	ops := []i2ctest.IO{
		{Addr: 0x40, W: []byte{0x00, 0x00}},
		{Addr: 0x40, W: []byte{0x00}, R: []byte{0x00}},
		{Addr: 0x40, W: []byte{0x00, 0x10}},
		{Addr: 0x40, W: []byte{0xfe, 121}},
		{Addr: 0x40, W: []byte{0x00, 0x00}},
		{Addr: 0x40, W: []byte{0x00, 0xa1}},
		{Addr: 0x40, W: []byte{0x06}, R: []byte{0x00, 0x00, 0xff, 0x0f}},
		{Addr: 0x40, W: []byte{0x0a}, R: []byte{0x00, 0x00, 0x00, 0x00}},
	}
	bus := &i2ctest.Playback{Ops: ops}
	dev, err := pca9685.NewI2C(bus, pca9685.DefaultAddress, nil)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	d := New(&Opts{W: &buf, Channels: 2})
	if err := d.Refresh(dev); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(buf.String(), " 0: 99% 1:  0%") {
		t.Errorf("unexpected output %q", buf.String())
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Refresh(failingReader{}); err == nil {
		t.Error("Refresh() ignored the read error")
	}
}
