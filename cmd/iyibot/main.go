// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// iyibot drives an iYi robot from the command line.
//
// Usage:
//
//	iyibot [flags] sense
//	iyibot [flags] motor <1-4> <speed>
//	iyibot [flags] drive run|turn|spin <speed> [left|right]
//	iyibot [flags] servo <1-8> <degree>|release
//	iyibot [flags] stop [left|right]
//	iyibot [flags] sonar <n> [cm|in|us]
//	iyibot [flags] track
//	iyibot [flags] pwm
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/iyirobot/actuator"
	"github.com/GermanBionicSystems/iyirobot/board"
	"github.com/GermanBionicSystems/iyirobot/console"
	"github.com/GermanBionicSystems/iyirobot/sonar"
)

func main() {
	var configFlag string
	var levelFlag string
	var metricsAddr string
	var watch bool
	var interval time.Duration
	var hold time.Duration

	pflag.StringVarP(&configFlag, "config", "c", "", "YAML board configuration, IYI_* variables override it")
	pflag.StringVarP(&levelFlag, "level", "l", "info", "Set log level")
	pflag.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	pflag.BoolVarP(&watch, "watch", "w", false, "Repeat sense, sonar, track and pwm until interrupted")
	pflag.DurationVar(&interval, "interval", 2*time.Second, "Interval between repeated measurements")
	pflag.DurationVar(&hold, "hold", 0, "Keep motor, drive and servo commands applied this long, 0 until interrupted")
	pflag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	level, err := zerolog.ParseLevel(levelFlag)
	if err != nil {
		Exitf("Invalid log level '%s': %v\n", levelFlag, err)
	}
	logger = logger.Level(level)

	args := pflag.Args()
	if len(args) == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	cfg, err := board.Load(configFlag)
	if err != nil {
		Exitf("Failed to load configuration: %v\n", err)
	}
	if _, err := host.Init(); err != nil {
		Exitf("Failed to initialize host: %v\n", err)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	b, err := board.Open(cfg, logger, board.NewMetrics(reg))
	if err != nil {
		Exitf("Failed to open board: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	c := &command{b: b, log: logger, watch: watch, interval: interval, hold: hold}

	if err := c.serve(ctx, args, metricsAddr, reg); err != nil {
		Exitf("%s failed: %v\n", args[0], err)
	}
}

// serve executes args next to the metrics server when addr is set, then
// halts the board.
func (c *command) serve(ctx context.Context, args []string, addr string, reg *prometheus.Registry) error {
	g, ctx := errgroup.WithContext(ctx)
	ctx, done := context.WithCancel(ctx)
	g.Go(func() error {
		defer done()
		return c.execute(ctx, args)
	})
	if addr != "" {
		g.Go(func() error { return serveMetrics(ctx, addr, reg, c.log) })
	}
	err := g.Wait()
	if herr := c.b.Close(); herr != nil {
		c.log.Error().Err(herr).Msg("Failed to halt board")
	}
	return err
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Debug().Str("address", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type command struct {
	b        *board.Board
	log      zerolog.Logger
	watch    bool
	interval time.Duration
	// hold is how long actuator commands stay applied before the board is
	// halted, 0 until ctx is done.
	hold time.Duration
}

// holding lists the commands whose effect lasts until the board is halted.
var holding = map[string]bool{"motor": true, "drive": true, "servo": true}

// execute runs the command in args. Motor, drive and servo commands then keep
// the outputs applied for c.hold or until ctx is done; the caller halts the
// board afterwards.
func (c *command) execute(ctx context.Context, args []string) error {
	if err := c.run(ctx, args); err != nil {
		return err
	}
	if !holding[args[0]] || (args[0] == "servo" && args[len(args)-1] == "release") {
		return nil
	}
	c.log.Info().Str("command", args[0]).Dur("hold", c.hold).Msg("Holding outputs, interrupt to stop")
	if c.hold <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTimer(c.hold)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	return nil
}

func (c *command) run(ctx context.Context, args []string) error {
	switch args[0] {
	case "sense":
		return c.repeat(ctx, c.sense)
	case "motor":
		if len(args) != 3 {
			return errors.New("usage: motor <1-4> <speed>")
		}
		m, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		speed, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		return c.b.Actuator.SetMotor(actuator.Motor(m), speed)
	case "drive":
		return c.drive(args[1:])
	case "servo":
		if len(args) != 3 {
			return errors.New("usage: servo <1-8> <degree>|release")
		}
		s, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		if args[2] == "release" {
			return c.b.Actuator.ReleaseServo(actuator.Servo(s))
		}
		degree, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		return c.b.Actuator.SetServo(actuator.Servo(s), degree)
	case "stop":
		if len(args) == 1 {
			return c.b.Drive.StopAll()
		}
		side, err := parseSide(args[1])
		if err != nil {
			return err
		}
		return c.b.Drive.Stop(side)
	case "sonar":
		return c.sonar(ctx, args[1:])
	case "track":
		return c.repeat(ctx, func() error {
			if c.b.Trackers == nil {
				return errors.New("no tracker configured")
			}
			fmt.Println(c.b.Trackers.ReadAll())
			return nil
		})
	case "pwm":
		if c.b.PWM == nil {
			return errors.New("pwm needs the pca9685 backend")
		}
		v := console.New(nil)
		defer v.Halt()
		return c.repeat(ctx, func() error { return v.Refresh(c.b.PWM) })
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (c *command) sense() error {
	r, err := c.b.Sense()
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", c.b.DHT, r)
	return nil
}

func (c *command) drive(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: drive run|turn|spin <speed> [left|right]")
	}
	speed, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	if args[0] == "run" {
		return c.b.Drive.Run(speed)
	}
	if len(args) != 3 {
		return errors.New("turn and spin need a direction")
	}
	side, err := parseSide(args[2])
	if err != nil {
		return err
	}
	switch args[0] {
	case "turn":
		return c.b.Drive.Turn(side, speed)
	case "spin":
		return c.b.Drive.Spin(side, speed)
	default:
		return fmt.Errorf("unknown drive mode %q", args[0])
	}
}

func (c *command) sonar(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: sonar <n> [cm|in|us]")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	u := sonar.Centimeters
	if len(args) > 1 {
		switch args[1] {
		case "cm":
		case "in":
			u = sonar.Inches
		case "us":
			u = sonar.Microseconds
		default:
			return fmt.Errorf("unknown unit %q", args[1])
		}
	}
	return c.repeat(ctx, func() error {
		d, err := c.b.Distance(n, u)
		var te *sonar.TimeoutError
		if errors.As(err, &te) {
			c.log.Warn().Err(err).Msg("Nothing in range")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%d%s\n", d, u)
		return nil
	})
}

// repeat runs f once, or every interval until ctx is done with -watch.
func (c *command) repeat(ctx context.Context, f func() error) error {
	if err := f(); err != nil || !c.watch {
		return err
	}
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := f(); err != nil {
				c.log.Warn().Err(err).Msg("Measurement failed")
			}
		}
	}
}

func parseSide(s string) (actuator.Side, error) {
	switch s {
	case "left":
		return actuator.Left, nil
	case "right":
		return actuator.Right, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// Exitf prints the given error message and exits with code 1.
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
