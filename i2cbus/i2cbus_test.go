// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cbus

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

// opener hands out a fresh playback bus per call and remembers the names.
type opener struct {
	names []string
	buses []*i2ctest.Playback
	fail  bool
}

func (o *opener) open(name string) (i2c.BusCloser, error) {
	if o.fail {
		return nil, errors.New("no such bus")
	}
	o.names = append(o.names, name)
	b := &i2ctest.Playback{DontPanic: true}
	o.buses = append(o.buses, b)
	return b, nil
}

type rebinder struct {
	buses []i2c.Bus
}

func (r *rebinder) Rebind(b i2c.Bus) {
	r.buses = append(r.buses, b)
}

func TestSharedTopology(t *testing.T) {
	o := &opener{}
	m, err := Open(DefaultConfig, o.open, nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.Topology() != Shared {
		t.Fatalf("equal bus names must be shared, got %s", m.Topology())
	}
	if len(o.names) != 1 {
		t.Errorf("shared topology opened %d buses", len(o.names))
	}
	if m.SensorBus() != m.DisplayBus() {
		t.Error("shared topology must hand out one handle")
	}
	info := m.Info()
	if info.Speed != 20*physic.KiloHertz || info.DisplaySpeed != 20*physic.KiloHertz {
		t.Errorf("unexpected speeds %s %s", info.Speed, info.DisplaySpeed)
	}
}

func TestSeparateTopology(t *testing.T) {
	o := &opener{}
	cfg := DefaultConfig
	cfg.SensorBus = "0"
	cfg.DisplayBus = "1"
	m, err := Open(cfg, o.open, nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.Topology() != Separate {
		t.Fatalf("distinct bus names must be separate, got %s", m.Topology())
	}
	if len(o.names) != 2 || o.names[0] != "0" || o.names[1] != "1" {
		t.Errorf("unexpected opens %v", o.names)
	}
	r := &rebinder{}
	m.Bind(r)
	if m.Recover(time.Unix(0, 0)) {
		t.Error("separate topology must never reset")
	}
	if len(r.buses) != 0 {
		t.Error("separate topology rebound a device")
	}
	if err := m.Close(); err != nil {
		t.Error(err)
	}
}

func TestNoDisplay(t *testing.T) {
	o := &opener{}
	cfg := DefaultConfig
	cfg.Display = false
	m, err := Open(cfg, o.open, nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.Topology() != Separate || m.DisplayBus() != nil {
		t.Error("without a display there is no display handle and nothing is shared")
	}
}

func TestRecoverCooldown(t *testing.T) {
	o := &opener{}
	m, err := Open(DefaultConfig, o.open, nil)
	if err != nil {
		t.Fatal(err)
	}
	sensor, display := &rebinder{}, &rebinder{}
	m.Bind(sensor, display)

	t0 := time.Unix(1000, 0)
	if !m.Recover(t0) {
		t.Fatal("first recovery must run")
	}
	// Two faults inside the cooldown: no further rebind.
	if m.Recover(t0.Add(time.Second)) || m.Recover(t0.Add(2*time.Second)) {
		t.Error("recovery inside the cooldown must be a no-op")
	}
	if len(sensor.buses) != 1 || len(display.buses) != 1 {
		t.Fatalf("expected one rebind each, got %d and %d", len(sensor.buses), len(display.buses))
	}
	if sensor.buses[0] != m.SensorBus() || display.buses[0] != m.SensorBus() {
		t.Error("devices were not rebound to the fresh handle")
	}
	if !m.Recover(t0.Add(2500 * time.Millisecond)) {
		t.Error("recovery after the cooldown must run")
	}
	if m.Info().Resets != 2 {
		t.Errorf("expected 2 resets, got %d", m.Info().Resets)
	}
	if len(o.buses) != 3 {
		t.Errorf("expected 3 opens, got %d", len(o.buses))
	}
}

func TestRecoverOpenFailure(t *testing.T) {
	o := &opener{}
	m, err := Open(DefaultConfig, o.open, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := &rebinder{}
	m.Bind(r)
	o.fail = true
	t0 := time.Unix(1000, 0)
	if m.Recover(t0) {
		t.Error("recovery must fail when the bus cannot be reopened")
	}
	o.fail = false
	if m.Recover(t0.Add(time.Second)) {
		t.Error("a failed attempt still starts the cooldown")
	}
	if len(r.buses) != 0 {
		t.Error("nothing may be rebound after a failed reopen")
	}
}

func TestOpenFailure(t *testing.T) {
	o := &opener{fail: true}
	if _, err := Open(DefaultConfig, o.open, nil); err == nil {
		t.Error("expected an error")
	}
}

func TestProbeAndScan(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{{Addr: 0x3c, R: []byte{0}}}}
	if !Probe(pb, 0x3c) {
		t.Error("0x3c must respond")
	}
	if Probe(nil, 0x3c) {
		t.Error("nil bus must not respond")
	}

	ops := make([]i2ctest.IO, 0, 2)
	ops = append(ops, i2ctest.IO{Addr: 0x08, R: []byte{0}})
	// The playback refuses everything after the first op, so only 0x08 answers.
	pb = &i2ctest.Playback{Ops: ops, DontPanic: true}
	found := Scan(pb)
	if len(found) != 1 || found[0] != 0x08 {
		t.Errorf("unexpected scan result %v", found)
	}
	if s := FormatAddrs([]uint16{0x3c, 0x62}); s != "0x3c,0x62" {
		t.Errorf("FormatAddrs=%q", s)
	}
	if FormatAddrs(nil) != "-" {
		t.Error("empty scan must format as -")
	}
}
