// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package monitor

import (
	"time"

	"github.com/GermanBionicSystems/airmon/scd4x"
	"github.com/GermanBionicSystems/airmon/thresholds"
)

// Level is the air quality class of a raw CO2 reading.
type Level int

const (
	Unknown Level = iota
	Good
	OK
	High
)

func (l Level) String() string {
	switch l {
	case Good:
		return "GOOD"
	case OK:
		return "OK"
	case High:
		return "HIGH"
	default:
		return "-"
	}
}

// LevelOf classifies co2 against s.
func LevelOf(co2 scd4x.PPM, s thresholds.Settings) Level {
	switch {
	case co2 < s.WarnOn:
		return Good
	case co2 <= s.HighOn:
		return OK
	default:
		return High
	}
}

// Alert is a notification edge.
type Alert int

const (
	NoAlert Alert = iota
	Ventilate
	Reminder
	Recovered
)

func (a Alert) String() string {
	switch a {
	case Ventilate:
		return "ventilate"
	case Reminder:
		return "reminder"
	case Recovered:
		return "recovery"
	default:
		return "none"
	}
}

// alerter turns level changes into notification edges. Every entry into High
// sends ventilate, whether it comes from Good or OK. Recovery is sent on the
// first Good after any High, so High, OK, Good still ends with a recovery.
type alerter struct {
	prev      Level
	wasHigh   bool
	lastAlert time.Time
}

// step returns the edge produced by level at now. Reminders repeat every
// remind while the level stays High; suppressed alerts still restart the
// reminder interval.
func (a *alerter) step(now time.Time, level Level, remind time.Duration) Alert {
	prev := a.prev
	a.prev = level
	switch {
	case level == High && prev != High:
		a.wasHigh = true
		a.lastAlert = now
		return Ventilate
	case level == High && now.Sub(a.lastAlert) >= remind:
		a.lastAlert = now
		return Reminder
	case level == Good && a.wasHigh:
		a.wasHigh = false
		return Recovered
	}
	return NoAlert
}

// suppressible reports whether quiet hours silence a.
func (a Alert) suppressible() bool {
	return a == Ventilate || a == Reminder
}
