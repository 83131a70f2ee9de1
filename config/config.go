// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config reads the process configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/GermanBionicSystems/airmon/fault"
	"github.com/joho/godotenv"
)

// Prefix of every variable read by Load.
const Prefix = "AIRMON_"

// Display selects the status panel.
type Display string

const (
	DisplayOLED    Display = "oled"
	DisplayConsole Display = "console"
	DisplayNone    Display = "none"
)

// Config is the process configuration.
type Config struct {
	LogLevel  string
	LogFormat string

	// i2creg bus names; equal names mean a shared bus.
	SensorBus  string
	DisplayBus string
	Display    Display

	StateFile string

	// Sensor setup.
	ASCEnabled        bool
	ASCTarget         int
	PressurePa        int
	AltitudeM         int
	TemperatureOffset float64
	Persist           bool

	TelegramToken    string
	TelegramChatID   int64
	TelegramEndpoint string

	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string

	QuietEnabled bool
	QuietStart   int
	QuietEnd     int
}

// Load reads envFile when it exists, without overriding variables already
// set, then builds a Config from AIRMON_* variables. A missing file is not an
// error; malformed values are reported together.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %s: %w", envFile, err)
		}
	}
	var e env
	c := &Config{
		LogLevel:  e.str("LOG_LEVEL", "info"),
		LogFormat: e.str("LOG_FORMAT", "json"),

		SensorBus:  e.str("SENSOR_BUS", ""),
		DisplayBus: e.str("DISPLAY_BUS", ""),
		Display:    Display(strings.ToLower(e.str("DISPLAY", string(DisplayOLED)))),

		StateFile: e.str("STATE_FILE", "airmon-state.json"),

		ASCEnabled:        e.boolean("ASC_ENABLED", true),
		ASCTarget:         e.integer("ASC_TARGET", 420),
		PressurePa:        e.integer("PRESSURE_PA", 101000),
		AltitudeM:         e.integer("ALTITUDE_M", 0),
		TemperatureOffset: e.float("TEMP_OFFSET_C", 0),
		Persist:           e.boolean("PERSIST", false),

		TelegramToken:    e.str("TELEGRAM_TOKEN", ""),
		TelegramChatID:   int64(e.integer("TELEGRAM_CHAT_ID", 0)),
		TelegramEndpoint: e.str("TELEGRAM_ENDPOINT", ""),

		MQTTBroker:   e.str("MQTT_BROKER", ""),
		MQTTClientID: e.str("MQTT_CLIENT_ID", "airmon"),
		MQTTUsername: e.str("MQTT_USERNAME", ""),
		MQTTPassword: e.str("MQTT_PASSWORD", ""),
		MQTTTopic:    e.str("MQTT_TOPIC", "airmon"),

		QuietEnabled: e.boolean("QUIET_ENABLED", true),
		QuietStart:   e.integer("QUIET_START_H", 0),
		QuietEnd:     e.integer("QUIET_END_H", 10),
	}
	switch c.Display {
	case DisplayOLED, DisplayConsole, DisplayNone:
	default:
		e.fail("DISPLAY", string(c.Display), errors.New("want oled, console or none"))
	}
	if c.QuietStart < 0 || c.QuietStart > 23 || c.QuietEnd < 0 || c.QuietEnd > 23 {
		e.fail("QUIET_START_H/QUIET_END_H", fmt.Sprintf("%d-%d", c.QuietStart, c.QuietEnd), errors.New("hours are 0-23"))
	}
	if err := errors.Join(e.errs...); err != nil {
		return nil, fault.Wrap(fault.Config, "config", err)
	}
	return c, nil
}

// Shared reports whether sensor and display use the same bus.
func (c *Config) Shared() bool {
	return c.Display == DisplayOLED && c.SensorBus == c.DisplayBus
}

// env collects parse errors while reading variables.
type env struct {
	errs []error
}

func (e *env) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s%s=%q: %w", Prefix, key, v, err))
}

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(Prefix + key); ok && v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return i
}

func (e *env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return f
}

func (e *env) boolean(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return b
}
