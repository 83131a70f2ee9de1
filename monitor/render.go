// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package monitor

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// AlertText renders the notification for a using the filtered values.
func AlertText(a Alert, f Filtered) string {
	var title string
	switch a {
	case Ventilate:
		title = "Ventilate now."
	case Reminder:
		title = "Reminder: ventilate now."
	case Recovered:
		title = "Air is back to normal."
	default:
		return ""
	}
	return fmt.Sprintf("%s\nCO2: %s ppm\nTemp: %s C\nRH: %s %%", title, fmtInt(f.CO2, f.Valid), fmt1(f.Temperature, f.Valid), fmt1(f.Humidity, f.Valid))
}

// HealthCard renders h as a short multi-line report.
func HealthCard(h Health) string {
	power := "GOOD"
	if h.PowerBad {
		power = "BAD"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "System Health\n")
	fmt.Fprintf(&b, "Mode: %s | State: %s\n", h.Mode, h.State)
	fmt.Fprintf(&b, "Power: %s (score %d)\n", power, h.Score)
	fmt.Fprintf(&b, "Uptime: %s\n", fmtUptime(h.Uptime))
	fmt.Fprintf(&b, "Err rate: %.2f/min (%ds)\n", h.BusFaultRatePerMin, int(h.Window/time.Second))
	fmt.Fprintf(&b, "I2C errs: %d | Sensor: %d | OLED: %d\n", h.BusFaultTotal, h.SensorFaultTotal, h.DisplayInitFaultTotal)
	fmt.Fprintf(&b, "Recovers: %d | Restarts: %d | Send errs: %d\n", h.RecoverTotal, h.RestartTotal, h.NotifyErrorTotal)
	fmt.Fprintf(&b, "Last recover: %s | Last I2C err: %s\n", fmtAge(h.LastRecoverAge), fmtAge(h.LastBusFaultAge))
	fmt.Fprintf(&b, "Last power bad: %s | Sample age: %s\n", fmtAge(h.LastPowerBadAge), fmtAge(h.SampleAge))
	fmt.Fprintf(&b, "CO2: %s ppm (%s) | Temp: %s C | RH: %s %%\n", fmtInt(h.Filtered.CO2, h.Filtered.Valid), h.Level, fmt1(h.Filtered.Temperature, h.Filtered.Valid), fmt1(h.Filtered.Humidity, h.Filtered.Valid))
	fmt.Fprintf(&b, "Bus: %s @ %d Hz", h.Bus.Mode, h.Bus.FrequencyHz)
	return b.String()
}

func fmtInt(v float64, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%d", int(math.Round(v)))
}

func fmt1(v float64, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.1f", v)
}

func fmtAge(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%d s", int(*d/time.Second))
}

func fmtUptime(d time.Duration) string {
	s := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s%3600/60, s%60)
}
