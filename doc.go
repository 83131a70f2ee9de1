// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package airmon is an indoor CO2 monitor built around the Sensirion SCD4x.
//
// The sensor and an optional SSD1306/SH1106 OLED may share one noisy I²C
// bus. The control loop in package monitor filters the readings, classifies
// the air quality, sends ventilation alerts and keeps a health score of the
// bus, resetting the bus or restarting the sensor when needed.
//
// The executable lives in cmd/airmon.
package airmon
