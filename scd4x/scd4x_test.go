// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.
//
// Unit tests for the package. Note that this supports running on a live
// sensor, or using playback mode to simulate a live device.
//
// To use a live device, define the environment variable SCD4X and run go test.

package scd4x

import (
	"errors"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/GermanBionicSystems/airmon/fault"
	"github.com/GermanBionicSystems/airmon/frame"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var liveDevice bool = false

var restartPlayback = []i2ctest.IO{
	{Addr: SensorAddress, W: []uint8{0x3f, 0x86}},
	{Addr: SensorAddress, W: []uint8{0x36, 0xf6}},
	{Addr: SensorAddress, W: []uint8{0x36, 0x46}},
	{Addr: SensorAddress, W: []uint8{0x21, 0xb1}}}

var pollPlayback = []i2ctest.IO{
	{Addr: SensorAddress, W: []uint8{0xe4, 0xb8}},
	{Addr: SensorAddress, R: []uint8{0x80, 0x0, 0xa2}},
	{Addr: SensorAddress, W: []uint8{0xe4, 0xb8}},
	{Addr: SensorAddress, R: []uint8{0x80, 0x6, 0x4}},
	{Addr: SensorAddress, W: []uint8{0xec, 0x5}},
	{Addr: SensorAddress, R: []uint8{0x2, 0x2c, 0xa3, 0x67, 0xd, 0x36, 0x4d, 0x8, 0xf1}}}

var setupPlayback = []i2ctest.IO{
	{Addr: SensorAddress, W: []uint8{0x3f, 0x86}},
	{Addr: SensorAddress, W: []uint8{0x36, 0xf6}},
	{Addr: SensorAddress, W: []uint8{0x36, 0x46}},
	{Addr: SensorAddress, W: []uint8{0x24, 0x16, 0x0, 0x1, 0xb0}},
	{Addr: SensorAddress, W: []uint8{0x24, 0x3a, 0x1, 0xa4, 0x4d}},
	{Addr: SensorAddress, W: []uint8{0xe0, 0x0, 0x3, 0xf2, 0x4c}},
	{Addr: SensorAddress, W: []uint8{0x24, 0x1d, 0x5, 0xda, 0x29}},
	{Addr: SensorAddress, W: []uint8{0x36, 0x15}},
	{Addr: SensorAddress, W: []uint8{0x21, 0xb1}}}

func init() {
	// If the environment variable is set, assume we have a live device on
	// the default i2c bus and use it for testing. If the variable is not
	// present, then use the playback/read values.
	if os.Getenv("SCD4X") != "" {
		liveDevice = true
		if _, err := host.Init(); err != nil {
			fmt.Println(err)
		}
	}
}

// getDev returns an scd4x device for testing connected to either a live
// bus, or a playback bus loaded with ops. Settle delays are skipped and
// recorded in slept when playing back.
func getDev(t *testing.T, ops []i2ctest.IO) (*Dev, i2c.Bus, *[]time.Duration) {
	slept := &[]time.Duration{}
	if liveDevice {
		b, err := i2creg.Open("")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = b.Close() })
		rec := &i2ctest.Record{Bus: b}
		return NewI2C(rec, SensorAddress, nil), rec, slept
	}
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	opts := &Opts{
		Sleep: func(d time.Duration) { *slept = append(*slept, d) },
		Now:   func() time.Time { return time.Unix(1700000000, 0) },
	}
	return NewI2C(pb, SensorAddress, opts), pb, slept
}

// shutdown dumps the recorder values if we we're running a live device, and
// otherwise verifies that every playback operation was consumed.
func shutdown(t *testing.T, b i2c.Bus) {
	switch bus := b.(type) {
	case *i2ctest.Record:
		t.Logf("%#v", bus.Ops)
	case *i2ctest.Playback:
		if err := bus.Close(); err != nil {
			t.Error(err)
		}
	}
}

func TestCountToTemperature(t *testing.T) {
	tests := []struct {
		count    uint16
		expected float64
	}{
		{count: 0, expected: -45},
		{count: 0x6667, expected: 25},
		{count: 0xffff, expected: 130},
	}
	for _, test := range tests {
		result := countToTemp(test.count)
		if math.Abs(result-test.expected) > 0.01 {
			t.Errorf("received: %.8f expected %.8f", result, test.expected)
		}
	}
}

func TestCountToHumidity(t *testing.T) {
	result := countToHumidity(0x5eb9) // from the datasheet
	if math.Abs(result-37) > 0.01 {
		t.Errorf("unexpected value: %f expected 37", result)
	}
	if countToHumidity(0xffff) != 100 || countToHumidity(0) != 0 {
		t.Error("humidity range is not [0, 100]")
	}
}

func TestClamping(t *testing.T) {
	tests := []struct {
		name     string
		got      uint16
		expected uint16
	}{
		{"altitude negative", altitudeToCount(-10 * physic.Metre), 0},
		{"altitude", altitudeToCount(1604 * physic.Metre), 1604},
		{"altitude high", altitudeToCount(5 * physic.KiloMetre), 3000},
		{"pressure rounds", pressureToCount(101325 * physic.Pascal), 1013},
		{"pressure low", pressureToCount(50 * physic.KiloPascal), 700},
		{"pressure high", pressureToCount(130 * physic.KiloPascal), 1200},
		{"offset", offsetToCount(4 * physic.Celsius), 1498},
		{"offset negative", offsetToCount(-2 * physic.Celsius), 0},
		{"offset high", offsetToCount(25 * physic.Celsius), 7490},
	}
	for _, test := range tests {
		if test.got != test.expected {
			t.Errorf("%s: got %d expected %d", test.name, test.got, test.expected)
		}
	}
	if clamp(PPM(100), MinASCTarget, MaxASCTarget) != 400 || clamp(PPM(5000), MinASCTarget, MaxASCTarget) != 2000 {
		t.Error("asc target not clamped to 400-2000")
	}
}

func TestRestart(t *testing.T) {
	dev, bus, slept := getDev(t, restartPlayback)
	defer shutdown(t, bus)
	if err := dev.Restart(); err != nil {
		t.Fatal(err)
	}
	if liveDevice {
		return
	}
	expected := []time.Duration{500 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 20 * time.Millisecond}
	if fmt.Sprint(*slept) != fmt.Sprint(expected) {
		t.Errorf("settle delays %v expected %v", *slept, expected)
	}
}

func TestRestartIsBestEffort(t *testing.T) {
	if liveDevice {
		t.Skip("playback only")
	}
	// The bus refuses everything: every step must still be attempted.
	pb := &i2ctest.Playback{DontPanic: true}
	dev := NewI2C(pb, SensorAddress, &Opts{Sleep: func(time.Duration) {}})
	err := dev.Restart()
	if err == nil {
		t.Fatal("expected an error")
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) != 4 {
		t.Fatalf("expected 4 joined errors, got %v", err)
	}
	if k := fault.Of(err); k != fault.Bus {
		t.Errorf("expected bus fault kind, got %q", k)
	}
}

func TestSense(t *testing.T) {
	dev, bus, slept := getDev(t, pollPlayback)
	defer shutdown(t, bus)

	ready, err := dev.IsReady()
	if err != nil {
		t.Fatal(err)
	}
	if !liveDevice && ready {
		t.Error("0x8000 must not report ready")
	}
	if ready, err = dev.IsReady(); err != nil {
		t.Fatal(err)
	}
	if !liveDevice && !ready {
		t.Error("0x8006 must report ready")
	}
	s, err := dev.ReadSample()
	if err != nil {
		t.Fatal(err)
	}
	t.Log(s.String())
	if liveDevice {
		return
	}
	if s.CO2 != 556 {
		t.Errorf("co2 %d expected 556", s.CO2)
	}
	if math.Abs(s.Temperature-25.446) > 0.01 {
		t.Errorf("temperature %f expected 25.446", s.Temperature)
	}
	if math.Abs(s.Humidity-30.09) > 0.01 {
		t.Errorf("humidity %f expected 30.09", s.Humidity)
	}
	if !s.At.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected timestamp %v", s.At)
	}
	for _, d := range *slept {
		if d != time.Millisecond {
			t.Errorf("read-style settle %v expected 1ms", d)
		}
	}
}

func TestSetup(t *testing.T) {
	if liveDevice {
		t.Skip("writing configuration to a live sensor is not done by default")
	}
	dev, bus, slept := getDev(t, setupPlayback)
	defer shutdown(t, bus)
	offset := 4 * physic.Celsius
	cfg := &Config{
		ASCEnabled:        true,
		ASCTarget:         420,
		AmbientPressure:   101 * physic.KiloPascal,
		SensorAltitude:    500 * physic.Metre,
		TemperatureOffset: &offset,
	}
	if err := dev.Setup(cfg, true); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, d := range *slept {
		if d == 800*time.Millisecond {
			found = true
		}
	}
	if !found {
		t.Error("persist must settle for 800ms")
	}
}

func TestConfigureAltitudeWhenNoPressure(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: SensorAddress, W: []uint8{0x24, 0x16, 0x0, 0x0, 0x81}},
		{Addr: SensorAddress, W: frame.Encode(0x2427, 3000)},
	}}
	dev := NewI2C(pb, SensorAddress, &Opts{Sleep: func(time.Duration) {}})
	if err := dev.Configure(&Config{SensorAltitude: 9000 * physic.Metre}); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestChecksumError(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: SensorAddress, W: []uint8{0xec, 0x5}},
		{Addr: SensorAddress, R: []uint8{0x2, 0x2c, 0xa3, 0x67, 0xd, 0x37, 0x4d, 0x8, 0xf1}},
	}}
	dev := NewI2C(pb, SensorAddress, &Opts{Sleep: func(time.Duration) {}})
	_, err := dev.ReadSample()
	if !errors.Is(err, frame.ErrChecksum) {
		t.Fatalf("expected checksum error, got %v", err)
	}
	if fault.Of(err) != fault.Checksum {
		t.Errorf("unexpected kind %q", fault.Of(err))
	}
}

func TestRebind(t *testing.T) {
	first := &i2ctest.Playback{DontPanic: true}
	second := &i2ctest.Playback{Ops: []i2ctest.IO{{Addr: SensorAddress, W: []uint8{0x21, 0xb1}}}}
	dev := NewI2C(first, SensorAddress, &Opts{Sleep: func(time.Duration) {}})
	if err := dev.Start(); fault.Of(err) != fault.Bus {
		t.Fatalf("expected bus fault on the refusing bus, got %v", err)
	}
	dev.Rebind(second)
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	if err := second.Close(); err != nil {
		t.Error(err)
	}
	if len(dev.String()) == 0 {
		t.Error("Dev.String() returned empty value.")
	}
}
