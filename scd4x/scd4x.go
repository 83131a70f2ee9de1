// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scd4x

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/GermanBionicSystems/airmon/fault"
	"github.com/GermanBionicSystems/airmon/frame"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// PPM=Parts Per Million. Units of measure for CO2 concentration.
type PPM int

func (ppm PPM) String() string {
	return fmt.Sprintf("%d PPM", int(ppm))
}

const (
	// These devices only support this i2c address.
	SensorAddress uint16 = 0x62
)

// Configuration limits documented for the sensor. Values outside are clamped
// before encoding.
const (
	MinASCTarget PPM = 400
	MaxASCTarget PPM = 2000

	MaxAltitudeMetres = 3000

	MinPressureHPa = 700
	MaxPressureHPa = 1200

	MaxTemperatureOffsetC = 20.0
)

type cmd uint16

// Structure to simplify sending commands to the device.
type command struct {
	name string
	// The 16-bit command word.
	cmdWord cmd
	// Number of reply words read after the settle delay. 0, 1 or 3.
	replyWords int
	// Time the sensor needs after the command before it accepts the next
	// transaction.
	settle time.Duration
}

var cmdStopMeasurement = command{
	name:    "stop",
	cmdWord: 0x3f86,
	settle:  500 * time.Millisecond,
}

var cmdWakeUp = command{
	name:    "wake",
	cmdWord: 0x36f6,
	settle:  20 * time.Millisecond,
}

var cmdReinit = command{
	name:    "reinit",
	cmdWord: 0x3646,
	settle:  30 * time.Millisecond,
}

var cmdStartMeasurement = command{
	name:    "start",
	cmdWord: 0x21b1,
	settle:  20 * time.Millisecond,
}

var cmdGetDataReadyStatus = command{
	name:       "data ready",
	cmdWord:    0xe4b8,
	replyWords: 1,
	settle:     time.Millisecond,
}

var cmdReadMeasurement = command{
	name:       "read",
	cmdWord:    0xec05,
	replyWords: 3,
	settle:     time.Millisecond,
}

var cmdSetASCEnabled = command{
	name:    "set asc enabled",
	cmdWord: 0x2416,
	settle:  time.Millisecond,
}

var cmdSetASCTarget = command{
	name:    "set asc target",
	cmdWord: 0x243a,
	settle:  time.Millisecond,
}

var cmdSetSensorAltitude = command{
	name:    "set altitude",
	cmdWord: 0x2427,
	settle:  time.Millisecond,
}

var cmdSetAmbientPressure = command{
	name:    "set ambient pressure",
	cmdWord: 0xe000,
	settle:  time.Millisecond,
}

var cmdSetTemperatureOffset = command{
	name:    "set temperature offset",
	cmdWord: 0x241d,
	settle:  time.Millisecond,
}

var cmdPersistSettings = command{
	name:    "persist",
	cmdWord: 0x3615,
	settle:  800 * time.Millisecond,
}

// Config is the configuration applied by Configure. Values prefixed with ASC
// refer to Auto-Self-Calibration. Zero values of ASCTarget and AmbientPressure
// mean "leave unchanged"; a nil TemperatureOffset likewise.
//
// Refer to the datasheet for more information on settings.
type Config struct {
	// Automatic-Self-Calibration enabled. True or false.
	ASCEnabled bool
	// Target CO2 concentration for automatic self calibration. To obtain the
	// current value, visit:
	//
	// https://www.co2.earth/daily-co2
	ASCTarget PPM
	// Ambient pressure value. Takes precedence over SensorAltitude when set.
	AmbientPressure physic.Pressure
	// Sensor altitude. Alternative method to adjust ambient pressure
	// for sensor correction.
	SensorAltitude physic.Distance
	// Offset between the sensor die and ambient temperature, 0-20°C.
	TemperatureOffset *physic.Temperature
}

// Sample is one decoded measurement.
type Sample struct {
	CO2 PPM
	// Degrees Celsius.
	Temperature float64
	// Percent relative humidity.
	Humidity float64
	At       time.Time
}

// Return the sensor readings in string format.
func (s Sample) String() string {
	return fmt.Sprintf("Temperature: %.2f°C Humidity: %.2f%%rH CO2: %s", s.Temperature, s.Humidity, s.CO2)
}

// Dev represents an SCD4x device.
//
// Dev is not safe for concurrent use. The bus handle may be swapped with
// Rebind between operations.
type Dev struct {
	bus  i2c.Bus
	addr uint16

	sleep func(time.Duration)
	now   func() time.Time
}

// Opts tunes the driver for testing.
type Opts struct {
	// Sleep replaces time.Sleep for the settle delays.
	Sleep func(time.Duration)
	// Now replaces time.Now for sample timestamps.
	Now func() time.Time
}

// NewI2C creates a new SCD4x sensor using the supplied bus and address.
// The constant value SensorAddress should be supplied as the value for
// addr. The device is not touched; call Setup or Restart to begin
// measuring.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) *Dev {
	d := &Dev{bus: b, addr: addr, sleep: time.Sleep, now: time.Now}
	if opts != nil {
		if opts.Sleep != nil {
			d.sleep = opts.Sleep
		}
		if opts.Now != nil {
			d.now = opts.Now
		}
	}
	return d
}

// Rebind replaces the bus handle used for subsequent commands.
func (d *Dev) Rebind(b i2c.Bus) {
	d.bus = b
}

// Stop halts periodic measurement.
func (d *Dev) Stop() error {
	_, err := d.sendCommand(cmdStopMeasurement)
	return err
}

// Wake wakes the sensor from power-down. The SCD41 does not acknowledge this
// command, so an error here is expected on some parts.
func (d *Dev) Wake() error {
	_, err := d.sendCommand(cmdWakeUp)
	return err
}

// Reinit reloads the user settings from EEPROM.
func (d *Dev) Reinit() error {
	_, err := d.sendCommand(cmdReinit)
	return err
}

// Start begins periodic measurement; a new sample is ready about every five
// seconds.
func (d *Dev) Start() error {
	_, err := d.sendCommand(cmdStartMeasurement)
	return err
}

// Persist writes the current running configuration to the sensor EEPROM for
// use on the next power-up. The EEPROM has limited write endurance.
func (d *Dev) Persist() error {
	_, err := d.sendCommand(cmdPersistSettings)
	return err
}

// IsReady reports whether a new measurement can be read.
func (d *Dev) IsReady() (bool, error) {
	words, err := d.sendCommand(cmdGetDataReadyStatus)
	if err != nil {
		return false, err
	}
	return words[0]&0x07ff != 0, nil
}

// ReadSample reads the latest measurement.
func (d *Dev) ReadSample() (Sample, error) {
	words, err := d.sendCommand(cmdReadMeasurement)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		CO2:         PPM(words[0]),
		Temperature: countToTemp(words[1]),
		Humidity:    countToHumidity(words[2]),
		At:          d.now(),
	}, nil
}

// SetASCEnabled turns automatic self-calibration on or off.
func (d *Dev) SetASCEnabled(enabled bool) error {
	var w uint16
	if enabled {
		w = 1
	}
	_, err := d.sendCommand(cmdSetASCEnabled, w)
	return err
}

// SetASCTarget sets the self-calibration baseline, clamped to 400-2000 ppm.
func (d *Dev) SetASCTarget(target PPM) error {
	_, err := d.sendCommand(cmdSetASCTarget, uint16(clamp(target, MinASCTarget, MaxASCTarget)))
	return err
}

// SetSensorAltitude sets the altitude, truncated to whole metres and clamped
// to 0-3000 m.
func (d *Dev) SetSensorAltitude(altitude physic.Distance) error {
	_, err := d.sendCommand(cmdSetSensorAltitude, altitudeToCount(altitude))
	return err
}

// SetAmbientPressure sets the ambient pressure, rounded to hPa and clamped to
// 700-1200 hPa.
func (d *Dev) SetAmbientPressure(p physic.Pressure) error {
	_, err := d.sendCommand(cmdSetAmbientPressure, pressureToCount(p))
	return err
}

// SetTemperatureOffset sets the temperature offset, clamped to 0-20°C. The
// value is a difference, so 4°C is 4*physic.Celsius.
func (d *Dev) SetTemperatureOffset(offset physic.Temperature) error {
	_, err := d.sendCommand(cmdSetTemperatureOffset, offsetToCount(offset))
	return err
}

// Configure applies cfg. The sensor must not be measuring. Every setting is
// attempted; the returned error joins the individual failures.
func (d *Dev) Configure(cfg *Config) error {
	errs := []error{d.SetASCEnabled(cfg.ASCEnabled)}
	if cfg.ASCTarget != 0 {
		errs = append(errs, d.SetASCTarget(cfg.ASCTarget))
	}
	if cfg.AmbientPressure != 0 {
		errs = append(errs, d.SetAmbientPressure(cfg.AmbientPressure))
	} else {
		errs = append(errs, d.SetSensorAltitude(cfg.SensorAltitude))
	}
	if cfg.TemperatureOffset != nil {
		errs = append(errs, d.SetTemperatureOffset(*cfg.TemperatureOffset))
	}
	return errors.Join(errs...)
}

// Restart runs stop, wake, reinit and start. Each step runs even if an
// earlier one failed; the failures are joined.
func (d *Dev) Restart() error {
	return errors.Join(d.Stop(), d.Wake(), d.Reinit(), d.Start())
}

// Setup is the boot sequence: stop, wake, reinit, configure, optionally
// persist, then start. Like Restart it is best-effort.
func (d *Dev) Setup(cfg *Config, persist bool) error {
	errs := []error{d.Stop(), d.Wake(), d.Reinit()}
	if cfg != nil {
		errs = append(errs, d.Configure(cfg))
		if persist {
			errs = append(errs, d.Persist())
		}
	}
	errs = append(errs, d.Start())
	return errors.Join(errs...)
}

func (d *Dev) String() string {
	if d.bus == nil {
		return fmt.Sprintf("scd4x: <unbound>@%#x", d.addr)
	}
	return fmt.Sprintf("scd4x: %s@%#x", d.bus.String(), d.addr)
}

// All commands to read or write to the sensor go through this function. The
// command is one write transaction; replies are fetched by a separate read
// after the settle delay.
func (d *Dev) sendCommand(c command, args ...uint16) ([]uint16, error) {
	op := "scd4x " + c.name
	if d.bus == nil {
		return nil, &fault.E{K: fault.Bus, Op: op, Err: errors.New("no bus bound")}
	}
	if err := d.bus.Tx(d.addr, frame.Encode(uint16(c.cmdWord), args...), nil); err != nil {
		return nil, &fault.E{K: fault.Bus, Op: fmt.Sprintf("%s cmd 0x%04x write", op, uint16(c.cmdWord)), Err: err}
	}
	d.sleep(c.settle)
	if c.replyWords == 0 {
		return nil, nil
	}
	r := make([]byte, c.replyWords*frame.WordSize)
	if err := d.bus.Tx(d.addr, nil, r); err != nil {
		return nil, &fault.E{K: fault.Bus, Op: fmt.Sprintf("%s cmd 0x%04x read", op, uint16(c.cmdWord)), Err: err}
	}
	words, err := frame.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s cmd 0x%04x: %w", op, uint16(c.cmdWord), err)
	}
	return words, nil
}

func clamp[T ~int | ~float64](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func altitudeToCount(altitude physic.Distance) uint16 {
	m := int(altitude / physic.Metre)
	return uint16(clamp(m, 0, MaxAltitudeMetres))
}

func pressureToCount(p physic.Pressure) uint16 {
	hpa := int(math.Round(float64(p) / float64(100*physic.Pascal)))
	return uint16(clamp(hpa, MinPressureHPa, MaxPressureHPa))
}

// Formula used for temperature offset calculation.
func offsetToCount(offset physic.Temperature) uint16 {
	c := clamp(float64(offset)/float64(physic.Celsius), 0, MaxTemperatureOffsetC)
	return uint16(math.Round(c * 65535 / 175))
}

// countToTemp converts a device count to degrees Celsius.
func countToTemp(count uint16) float64 {
	frac := float64(count) / 65535.0
	return -45 + 175*frac
}

func countToHumidity(count uint16) float64 {
	frac := float64(count) / 65535.0
	return frac * 100.0
}
