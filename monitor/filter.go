// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package monitor

import (
	"github.com/GermanBionicSystems/airmon/scd4x"
)

// Smoothing factors and trend deadbands per channel.
const (
	AlphaCO2         = 0.35
	AlphaTemperature = 0.20
	AlphaHumidity    = 0.20

	DeadbandCO2         = 20.0
	DeadbandTemperature = 0.2
	DeadbandHumidity    = 1.0
)

// EMA returns the exponential moving average step from prev towards x.
// alpha must be in (0, 1]; 1 disables smoothing.
func EMA(prev, x, alpha float64) float64 {
	return prev + alpha*(x-prev)
}

// Trend is the direction of a filtered channel between two polls.
type Trend int

const (
	Flat Trend = iota
	Up
	Down
)

func (t Trend) String() string {
	switch t {
	case Up:
		return "^"
	case Down:
		return "v"
	default:
		return "-"
	}
}

// TrendOf compares next to prev; changes within deadband are Flat.
func TrendOf(prev, next, deadband float64) Trend {
	switch d := next - prev; {
	case d > deadband:
		return Up
	case d < -deadband:
		return Down
	default:
		return Flat
	}
}

// Trends holds one Trend per channel.
type Trends struct {
	CO2         Trend `json:"co2"`
	Temperature Trend `json:"temperature"`
	Humidity    Trend `json:"humidity"`
}

// Filtered is the smoothed view of the samples. Valid is false until the
// first sample was accepted.
type Filtered struct {
	Valid       bool    `json:"valid"`
	CO2         float64 `json:"co2"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// Update folds s into f. The first sample seeds the filter as is and reports
// every channel as Flat.
func (f Filtered) Update(s scd4x.Sample) (Filtered, Trends) {
	co2 := float64(s.CO2)
	if !f.Valid {
		return Filtered{Valid: true, CO2: co2, Temperature: s.Temperature, Humidity: s.Humidity}, Trends{}
	}
	n := Filtered{
		Valid:       true,
		CO2:         EMA(f.CO2, co2, AlphaCO2),
		Temperature: EMA(f.Temperature, s.Temperature, AlphaTemperature),
		Humidity:    EMA(f.Humidity, s.Humidity, AlphaHumidity),
	}
	return n, Trends{
		CO2:         TrendOf(f.CO2, n.CO2, DeadbandCO2),
		Temperature: TrendOf(f.Temperature, n.Temperature, DeadbandTemperature),
		Humidity:    TrendOf(f.Humidity, n.Humidity, DeadbandHumidity),
	}
}
