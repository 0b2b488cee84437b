// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht_test

import (
	"errors"
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/iyirobot/dht"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// The data line of the sensor is connected to GPIO4.
	p := gpioreg.ByName("GPIO4")
	if p == nil {
		log.Fatal("failed to find GPIO4")
	}

	d, err := dht.New(p, dht.DHT22, nil) // nil for default options or &dht.DefaultOpts
	if err != nil {
		log.Fatalf("failed to initialize DHT22: %v", err)
	}

	r, err := d.Query()
	var te *dht.TimeoutError
	if errors.As(err, &te) && te.NoResponse() {
		log.Fatal("sensor is not connected")
	} else if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%8s %9s\n", r.Temperature, r.Humidity)
}
