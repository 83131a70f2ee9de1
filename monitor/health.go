// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package monitor

import (
	"time"

	"github.com/GermanBionicSystems/airmon/diag"
	"github.com/GermanBionicSystems/airmon/scd4x"
	"github.com/GermanBionicSystems/airmon/thresholds"
)

// State is the sampling state of the loop.
type State int

const (
	Warmup State = iota
	Normal
	Stale
)

func (s State) String() string {
	switch s {
	case Normal:
		return "NORMAL"
	case Stale:
		return "STALE"
	default:
		return "WARMUP"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// MarshalText renders the level by name in JSON.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// Health is the immutable view published by the loop once per tick. It is
// safe to share between goroutines.
type Health struct {
	diag.HealthSnapshot

	State            State               `json:"state"`
	Level            Level               `json:"level"`
	Sample           *scd4x.Sample       `json:"sample,omitempty"`
	SampleAge        *time.Duration      `json:"sample_age_ns,omitempty"`
	Filtered         Filtered            `json:"filtered"`
	Trends           Trends              `json:"trends"`
	Thresholds       thresholds.Settings `json:"thresholds"`
	Quiet            bool                `json:"quiet"`
	NotifyErrorTotal int                 `json:"notify_error_total"`
}

// Reading is published for every accepted sample.
type Reading struct {
	At       time.Time    `json:"at"`
	Sample   scd4x.Sample `json:"sample"`
	Filtered Filtered     `json:"filtered"`
	Trends   Trends       `json:"trends"`
	Level    Level        `json:"level"`
}

// View is what a Panel draws.
type View struct {
	At         time.Time
	State      State
	Sample     scd4x.Sample
	Age        time.Duration
	Filtered   Filtered
	Trends     Trends
	Level      Level
	Thresholds thresholds.Settings
}
