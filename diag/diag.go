// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package diag scores bus and sensor health over a rolling window and caps
// how often the sensor may be force-restarted.
//
// Individual faults are only recorded here. Whether they add up to something
// worth acting on is decided by Compute (weighted score) and AllowRestart
// (attempt count), which the control loop consults before any disruptive
// action.
package diag

import (
	"fmt"
	"time"
)

// EventKind classifies window events.
type EventKind string

const (
	BusFault EventKind = "bus-fault"
	Recover  EventKind = "recover"
)

// Fault is the origin of a fault, counted separately over the lifetime of
// the process. Every fault enters the window as a BusFault event.
type Fault int

const (
	FaultBus Fault = iota
	FaultSensorRead
	FaultDisplayInit
	numFaults
)

var faultNames = [numFaults]string{"bus", "sensor-read", "display-init"}

func (f Fault) String() string {
	if f < 0 || f >= numFaults {
		return fmt.Sprintf("Fault(%d)", int(f))
	}
	return faultNames[f]
}

// Event is one weighted entry of the window.
type Event struct {
	At     time.Time
	Kind   EventKind
	Weight int
}

// Result is the outcome of Compute.
type Result struct {
	Score              int
	BusFaultRatePerMin float64
	PowerBad           bool
}

// DefaultMaxEvents bounds the window length during fault storms.
const DefaultMaxEvents = 64

// Engine holds all diagnostic state for the process. It has a single writer,
// the control loop, and is not safe for concurrent use.
type Engine struct {
	boot      time.Time
	maxEvents int

	events   []Event
	restarts []time.Time

	faultTotal [numFaults]int
	lastFault  [numFaults]time.Time

	recoverTotal int
	lastRecover  time.Time
	restartTotal int

	last         Result
	lastWindow   time.Duration
	lastPowerBad time.Time
	degraded     bool
}

// New returns an Engine whose uptime counts from boot. maxEvents <= 0 selects
// DefaultMaxEvents.
func New(boot time.Time, maxEvents int) *Engine {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Engine{boot: boot, maxEvents: maxEvents}
}

// AddEvent appends a window event. When the window is full the oldest entry
// is dropped.
func (e *Engine) AddEvent(now time.Time, kind EventKind, weight int) {
	if len(e.events) >= e.maxEvents {
		copy(e.events, e.events[1:])
		e.events = e.events[:len(e.events)-1]
	}
	e.events = append(e.events, Event{At: now, Kind: kind, Weight: weight})
}

// MarkFault counts a fault of origin f and enters it into the window.
func (e *Engine) MarkFault(now time.Time, f Fault, weight int) {
	e.faultTotal[f]++
	e.lastFault[f] = now
	e.AddEvent(now, BusFault, weight)
}

// MarkRecover counts a bus reset and enters it into the window. Resets are
// weighted too: a bus that needs resetting is itself a symptom.
func (e *Engine) MarkRecover(now time.Time, weight int) {
	e.recoverTotal++
	e.lastRecover = now
	e.AddEvent(now, Recover, weight)
}

// prune drops the events older than window.
func (e *Engine) prune(now time.Time, window time.Duration) {
	i := 0
	for i < len(e.events) && now.Sub(e.events[i].At) > window {
		i++
	}
	if i > 0 {
		e.events = append(e.events[:0], e.events[i:]...)
	}
}

// Compute prunes the window and derives score, bus fault rate and the power
// flag. Always mutate first, then Compute.
func (e *Engine) Compute(now time.Time, window time.Duration, badScore int) Result {
	e.prune(now, window)
	var r Result
	faults := 0
	for _, ev := range e.events {
		r.Score += ev.Weight
		if ev.Kind == BusFault {
			faults++
		}
	}
	if ms := window.Milliseconds(); ms > 0 {
		r.BusFaultRatePerMin = float64(faults) * 60000 / float64(ms)
	}
	r.PowerBad = r.Score >= badScore
	if r.PowerBad {
		e.lastPowerBad = now
	}
	e.last = r
	e.lastWindow = window
	return r
}

// AllowRestart decides whether a forced sensor restart may happen now. Once
// max restarts have happened inside window it refuses and latches the
// degraded flag; from then on every request is refused until Reset.
func (e *Engine) AllowRestart(now time.Time, window time.Duration, max int) (bool, string) {
	if e.degraded {
		return false, "runtime degraded"
	}
	i := 0
	for i < len(e.restarts) && now.Sub(e.restarts[i]) > window {
		i++
	}
	e.restarts = append(e.restarts[:0], e.restarts[i:]...)
	if len(e.restarts) >= max {
		e.degraded = true
		return false, fmt.Sprintf("%d restarts within %s", len(e.restarts), window)
	}
	e.restarts = append(e.restarts, now)
	e.restartTotal++
	return true, "allowed"
}

// Degraded reports the sticky flag set by AllowRestart.
func (e *Engine) Degraded() bool {
	return e.degraded
}

// Reset is the external full reset: counters, window, restart history and
// the degraded flag are cleared and uptime restarts at now.
func (e *Engine) Reset(now time.Time) {
	*e = Engine{boot: now, maxEvents: e.maxEvents}
}

// Events returns a copy of the current window, oldest first.
func (e *Engine) Events() []Event {
	return append([]Event(nil), e.events...)
}
