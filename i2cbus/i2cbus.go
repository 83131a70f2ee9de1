// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package i2cbus owns the I²C handles used by the sensor and the display.
//
// When both devices hang off the same pins (Shared topology) a fault on
// either one cannot be attributed, so the only remedy is to reopen the bus and
// hand the fresh handle to every device. That reset is rate limited: at most
// one per cooldown, however many faults arrive. With separate buses faults
// stay attributed to their own handle and no reset is performed here.
package i2cbus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
)

// Topology describes how the sensor and display are wired.
type Topology int

const (
	Separate Topology = iota
	Shared
)

func (t Topology) String() string {
	if t == Shared {
		return "SHARED"
	}
	return "SEPARATE"
}

// Opener acquires a bus by name. i2creg.Open is the default.
type Opener func(name string) (i2c.BusCloser, error)

// Rebinder is implemented by devices that accept a replacement bus handle.
type Rebinder interface {
	Rebind(b i2c.Bus)
}

// Config selects the buses and their speeds.
type Config struct {
	// SensorBus and DisplayBus are i2creg names. Equal names mean the devices
	// share one bus. "" is the first bus found.
	SensorBus  string
	DisplayBus string
	// Display is false when no display is attached; the topology is then
	// always Separate and no display handle is opened.
	Display bool

	// Speeds. Shared buses run at the slowest, most noise tolerant rate.
	SharedSpeed  physic.Frequency
	SensorSpeed  physic.Frequency
	DisplaySpeed physic.Frequency

	// Minimum time between two resets.
	Cooldown time.Duration
}

// DefaultConfig matches a sensor and an OLED sharing the first bus.
var DefaultConfig = Config{
	Display:      true,
	SharedSpeed:  20 * physic.KiloHertz,
	SensorSpeed:  50 * physic.KiloHertz,
	DisplaySpeed: 100 * physic.KiloHertz,
	Cooldown:     2500 * time.Millisecond,
}

// Info describes the topology for health reporting.
type Info struct {
	Topology     Topology
	SensorBus    string
	DisplayBus   string
	Speed        physic.Frequency
	DisplaySpeed physic.Frequency
	Resets       int
	LastReset    time.Time
}

// Manager owns the handles. It is driven from the control loop only and is
// not safe for concurrent use.
type Manager struct {
	cfg      Config
	open     Opener
	log      *zap.Logger
	topology Topology

	sensor  i2c.BusCloser
	display i2c.BusCloser
	bound   []Rebinder

	lastReset time.Time
	resets    int
}

// Open acquires the handles described by cfg. A nil opener uses i2creg.Open.
func Open(cfg Config, open Opener, log *zap.Logger) (*Manager, error) {
	if open == nil {
		open = i2creg.Open
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{cfg: cfg, open: open, log: log}
	if cfg.Display && cfg.SensorBus == cfg.DisplayBus {
		m.topology = Shared
	}

	b, err := m.acquire(cfg.SensorBus, m.sensorSpeed())
	if err != nil {
		return nil, fmt.Errorf("i2cbus: sensor bus %q: %w", cfg.SensorBus, err)
	}
	m.sensor = b
	switch {
	case m.topology == Shared:
		m.display = b
	case cfg.Display:
		d, err := m.acquire(cfg.DisplayBus, cfg.DisplaySpeed)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("i2cbus: display bus %q: %w", cfg.DisplayBus, err)
		}
		m.display = d
	}
	log.Info("i2c buses acquired",
		zap.Stringer("topology", m.topology),
		zap.String("sensor_bus", b.String()),
		zap.Stringer("speed", m.sensorSpeed()))
	return m, nil
}

// Topology returns how the buses are wired.
func (m *Manager) Topology() Topology {
	return m.topology
}

// SensorBus returns the current sensor handle.
func (m *Manager) SensorBus() i2c.Bus {
	return m.sensor
}

// DisplayBus returns the current display handle, the sensor handle when
// shared, or nil when no display is configured.
func (m *Manager) DisplayBus() i2c.Bus {
	if m.display == nil {
		return nil
	}
	return m.display
}

// Bind registers devices that must follow a reset onto the new handle.
func (m *Manager) Bind(r ...Rebinder) {
	m.bound = append(m.bound, r...)
}

// Recover resets a shared bus if the cooldown allows it. It returns true only
// when a fresh handle was opened and rebound. The caller must not retry the
// failed operation; the new handle is used from the next poll on.
func (m *Manager) Recover(now time.Time) bool {
	if m.topology != Shared {
		return false
	}
	if !m.lastReset.IsZero() && now.Sub(m.lastReset) < m.cfg.Cooldown {
		return false
	}
	// Rate limit attempts, not successes: a bus that cannot be reopened must
	// not be hammered either.
	m.lastReset = now
	b, err := m.acquire(m.cfg.SensorBus, m.cfg.SharedSpeed)
	if err != nil {
		m.log.Warn("i2c bus reset failed", zap.Error(err))
		return false
	}
	old := m.sensor
	m.sensor, m.display = b, b
	if err := old.Close(); err != nil {
		m.log.Debug("closing previous bus handle", zap.Error(err))
	}
	for _, r := range m.bound {
		r.Rebind(b)
	}
	m.resets++
	m.log.Info("i2c bus reset", zap.Int("resets", m.resets), zap.Int("rebound", len(m.bound)))
	return true
}

// Info returns the topology description.
func (m *Manager) Info() Info {
	info := Info{
		Topology:  m.topology,
		Speed:     m.sensorSpeed(),
		Resets:    m.resets,
		LastReset: m.lastReset,
	}
	if m.sensor != nil {
		info.SensorBus = m.sensor.String()
	}
	if m.display != nil {
		info.DisplayBus = m.display.String()
		info.DisplaySpeed = m.cfg.DisplaySpeed
		if m.topology == Shared {
			info.DisplaySpeed = m.cfg.SharedSpeed
		}
	}
	return info
}

// Close releases the handles.
func (m *Manager) Close() error {
	var errs []error
	if m.sensor != nil {
		errs = append(errs, m.sensor.Close())
	}
	if m.display != nil && m.topology != Shared {
		errs = append(errs, m.display.Close())
	}
	m.sensor, m.display = nil, nil
	return errors.Join(errs...)
}

func (m *Manager) sensorSpeed() physic.Frequency {
	if m.topology == Shared {
		return m.cfg.SharedSpeed
	}
	return m.cfg.SensorSpeed
}

func (m *Manager) acquire(name string, speed physic.Frequency) (i2c.BusCloser, error) {
	b, err := m.open(name)
	if err != nil {
		return nil, err
	}
	if speed != 0 {
		if err := b.SetSpeed(speed); err != nil {
			// Not every host driver supports changing the clock.
			m.log.Debug("bus speed not applied", zap.String("bus", b.String()), zap.Stringer("speed", speed), zap.Error(err))
		}
	}
	return b, nil
}

// Scan probes the sensor bus and, when separate, the display bus.
func (m *Manager) Scan() (sensor, display []uint16) {
	sensor = Scan(m.sensor)
	switch {
	case m.topology == Shared:
		display = sensor
	case m.display != nil:
		display = Scan(m.display)
	}
	return sensor, display
}

// Probe reports whether a device acknowledges a one byte read at addr.
func Probe(b i2c.Bus, addr uint16) bool {
	if b == nil {
		return false
	}
	return b.Tx(addr, nil, make([]byte, 1)) == nil
}

// Scan probes the 7-bit address range 0x08-0x77 and returns the responders.
func Scan(b i2c.Bus) []uint16 {
	var found []uint16
	for addr := uint16(0x08); addr <= 0x77; addr++ {
		if Probe(b, addr) {
			found = append(found, addr)
		}
	}
	return found
}

// FormatAddrs renders addresses as a comma separated hex list, or "-".
func FormatAddrs(addrs []uint16) string {
	if len(addrs) == 0 {
		return "-"
	}
	s := make([]string, len(addrs))
	for i, a := range addrs {
		s[i] = fmt.Sprintf("0x%02x", a)
	}
	return strings.Join(s, ",")
}
