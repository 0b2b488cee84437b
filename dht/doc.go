// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dht reads the DHT11 and DHT22 (AM2302) humidity and temperature
// sensors over their single-wire protocol.
//
// The host pulls the data line low for 18ms to request a measurement, then
// releases it. The sensor acknowledges with 80µs low and 80µs high and sends
// 40 bits, each one a 50µs low followed by a high phase of about 26µs for a 0
// and 70µs for a 1. The last byte is the 8 bit sum of the first four.
//
// Every edge wait is bounded by Opts.EdgeTimeout so a disconnected sensor
// returns a *TimeoutError instead of blocking. The sensor needs about two
// seconds between measurements, the driver enforces this with Opts.Cooldown.
//
// The dht.Dev type implements the physic.SenseEnv interface. Pressure is
// always 0.
//
// # Datasheet
//
// https://www.mouser.com/datasheet/2/758/DHT11-Technical-Data-Sheet-Translated-Version-1143054.pdf
//
// https://www.sparkfun.com/datasheets/Sensors/Temperature/DHT22.pdf
package dht
