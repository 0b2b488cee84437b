// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package board

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GermanBionicSystems/iyirobot/actuator"
)

// Metrics counts the operations of a Board.
type Metrics struct {
	SensorQueries    *prometheus.CounterVec
	ActuatorCommands *prometheus.CounterVec
	SonarMeasures    *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg, which can be
// nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SensorQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iyirobot",
			Name:      "sensor_queries_total",
			Help:      "Humidity and temperature queries, by result.",
		}, []string{"result"}),
		ActuatorCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iyirobot",
			Name:      "actuator_commands_total",
			Help:      "Motor and servo commands, by kind and result.",
		}, []string{"kind", "result"}),
		SonarMeasures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iyirobot",
			Name:      "sonar_measures_total",
			Help:      "Ultrasonic measurements, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.SensorQueries, m.ActuatorCommands, m.SonarMeasures)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// meteredActuator counts the commands sent to an Actuator.
type meteredActuator struct {
	actuator.Actuator
	c *prometheus.CounterVec
}

func (a *meteredActuator) SetMotor(m actuator.Motor, speed int) error {
	err := a.Actuator.SetMotor(m, speed)
	a.c.WithLabelValues("motor", result(err)).Inc()
	return err
}

func (a *meteredActuator) SetServo(s actuator.Servo, degree int) error {
	err := a.Actuator.SetServo(s, degree)
	a.c.WithLabelValues("servo", result(err)).Inc()
	return err
}

func (a *meteredActuator) ReleaseServo(s actuator.Servo) error {
	err := a.Actuator.ReleaseServo(s)
	a.c.WithLabelValues("release", result(err)).Inc()
	return err
}
