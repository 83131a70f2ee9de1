// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package diag

import (
	"time"
)

// Mode summarizes health in one word.
type Mode string

const (
	ModeNormal   Mode = "NORMAL"
	ModePowerBad Mode = "POWER_BAD"
	ModeDegraded Mode = "DEGRADED"
)

// Bus describes the bus wiring for reporting.
type Bus struct {
	Mode        string `json:"mode"`
	FrequencyHz int64  `json:"frequency_hz"`
	Resets      int    `json:"resets"`
}

// HealthSnapshot is a read-only view of the Engine at one instant. Ages are
// nil when the event never happened.
type HealthSnapshot struct {
	At     time.Time     `json:"at"`
	Uptime time.Duration `json:"uptime_ns"`
	Mode   Mode          `json:"mode"`

	PowerBad           bool          `json:"power_bad"`
	Score              int           `json:"score"`
	BusFaultRatePerMin float64       `json:"bus_fault_rate_per_min"`
	Window             time.Duration `json:"window_ns"`
	WindowEvents       int           `json:"window_events"`

	BusFaultTotal         int  `json:"bus_fault_total"`
	SensorFaultTotal      int  `json:"sensor_fault_total"`
	DisplayInitFaultTotal int  `json:"display_init_fault_total"`
	RecoverTotal          int  `json:"recover_total"`
	RestartTotal          int  `json:"restart_total"`
	RuntimeDegraded       bool `json:"runtime_degraded"`

	LastRecoverAge   *time.Duration `json:"last_recover_age_ns,omitempty"`
	LastBusFaultAge  *time.Duration `json:"last_bus_fault_age_ns,omitempty"`
	LastPowerBadAge  *time.Duration `json:"last_power_bad_age_ns,omitempty"`
	LastSensorErrAge *time.Duration `json:"last_sensor_err_age_ns,omitempty"`

	Bus Bus `json:"bus"`
}

// Snapshot derives a HealthSnapshot from the state left by the last Compute.
func (e *Engine) Snapshot(now time.Time, bus Bus) HealthSnapshot {
	s := HealthSnapshot{
		At:                    now,
		Uptime:                now.Sub(e.boot),
		Mode:                  ModeNormal,
		PowerBad:              e.last.PowerBad,
		Score:                 e.last.Score,
		BusFaultRatePerMin:    e.last.BusFaultRatePerMin,
		Window:                e.lastWindow,
		WindowEvents:          len(e.events),
		BusFaultTotal:         e.faultTotal[FaultBus],
		SensorFaultTotal:      e.faultTotal[FaultSensorRead],
		DisplayInitFaultTotal: e.faultTotal[FaultDisplayInit],
		RecoverTotal:          e.recoverTotal,
		RestartTotal:          e.restartTotal,
		RuntimeDegraded:       e.degraded,
		LastRecoverAge:        age(now, e.lastRecover),
		LastBusFaultAge:       age(now, e.lastFault[FaultBus]),
		LastPowerBadAge:       age(now, e.lastPowerBad),
		LastSensorErrAge:      age(now, e.lastFault[FaultSensorRead]),
		Bus:                   bus,
	}
	switch {
	case e.degraded:
		s.Mode = ModeDegraded
	case e.last.PowerBad:
		s.Mode = ModePowerBad
	}
	return s
}

func age(now, t time.Time) *time.Duration {
	if t.IsZero() {
		return nil
	}
	d := now.Sub(t)
	return &d
}
