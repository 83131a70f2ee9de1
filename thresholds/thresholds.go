// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package thresholds holds the user adjustable CO2 alert settings.
package thresholds

import (
	"time"

	"github.com/GermanBionicSystems/airmon/fault"
	"github.com/GermanBionicSystems/airmon/scd4x"
)

// Limits accepted by Validate.
const (
	WarnMin   scd4x.PPM = 600
	WarnMax   scd4x.PPM = 1400
	HighMin   scd4x.PPM = 1000
	HighMax   scd4x.PPM = 3000
	MinGap    scd4x.PPM = 200
	RemindMin           = 5
	RemindMax           = 120
)

// Settings are the alert thresholds. A reading below WarnOn is good, up to
// and including HighOn it is OK, above it is high.
type Settings struct {
	WarnOn    scd4x.PPM `json:"warn_on"`
	HighOn    scd4x.PPM `json:"high_on"`
	RemindMin int       `json:"remind_min"`
}

// Defaults are used when nothing has been stored yet.
var Defaults = Settings{WarnOn: 800, HighOn: 1500, RemindMin: 20}

// Remind returns the reminder interval.
func (s Settings) Remind() time.Duration {
	return time.Duration(s.RemindMin) * time.Minute
}

// ValidationError explains why a Settings value was rejected. Reason is
// meant to be shown to the user as is.
type ValidationError struct {
	Reason string
}

func (v *ValidationError) Error() string {
	return "thresholds: " + v.Reason
}

// Kind implements the fault kind interface.
func (v *ValidationError) Kind() fault.Kind {
	return fault.Config
}

// Validate returns a *ValidationError when s is not acceptable.
func (s Settings) Validate() error {
	switch {
	case s.WarnOn < WarnMin || s.WarnOn > WarnMax:
		return &ValidationError{"WARN out of range"}
	case s.HighOn < HighMin || s.HighOn > HighMax:
		return &ValidationError{"HIGH out of range"}
	case s.HighOn < s.WarnOn+MinGap:
		return &ValidationError{"HIGH must be >= WARN+200"}
	case s.RemindMin < RemindMin || s.RemindMin > RemindMax:
		return &ValidationError{"REM out of range"}
	}
	return nil
}

// Repair clamps every field into range and then restores the minimum gap,
// lowering WarnOn when HighOn would exceed its maximum. Zero fields take
// their default first. The result always passes Validate.
func (s Settings) Repair() Settings {
	if s.WarnOn == 0 {
		s.WarnOn = Defaults.WarnOn
	}
	if s.HighOn == 0 {
		s.HighOn = Defaults.HighOn
	}
	if s.RemindMin == 0 {
		s.RemindMin = Defaults.RemindMin
	}
	s.WarnOn = min(max(s.WarnOn, WarnMin), WarnMax)
	s.HighOn = min(max(s.HighOn, HighMin), HighMax)
	s.RemindMin = min(max(s.RemindMin, RemindMin), RemindMax)
	if s.HighOn < s.WarnOn+MinGap {
		s.HighOn = s.WarnOn + MinGap
		if s.HighOn > HighMax {
			s.WarnOn = HighMax - MinGap
			s.HighOn = HighMax
		}
	}
	return s
}
