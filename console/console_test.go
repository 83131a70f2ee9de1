// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/GermanBionicSystems/airmon/monitor"
	"github.com/GermanBionicSystems/airmon/thresholds"
	"github.com/stretchr/testify/require"
)

func view(co2 float64, level monitor.Level) monitor.View {
	return monitor.View{
		State:      monitor.Normal,
		Filtered:   monitor.Filtered{Valid: true, CO2: co2, Temperature: 22.14, Humidity: 41.2},
		Trends:     monitor.Trends{CO2: monitor.Up},
		Level:      level,
		Thresholds: thresholds.Defaults,
	}
}

func TestGauge(t *testing.T) {
	g := Gauge(view(400, monitor.Good), 20)
	require.Len(t, g, 20)
	for _, c := range g {
		require.Equal(t, dark, c)
	}

	g = Gauge(view(2400, monitor.High), 20)
	// Each cell spans 100 ppm: 400-800 green, 800-1500 amber, above red.
	require.Equal(t, green, g[0])
	require.Equal(t, green, g[3])
	require.Equal(t, amber, g[4])
	require.Equal(t, amber, g[10])
	require.Equal(t, red, g[11])
	require.Equal(t, red, g[19])

	g = Gauge(view(900, monitor.OK), 20)
	require.Equal(t, amber, g[4])
	require.Equal(t, dark, g[5])

	w := view(2400, monitor.High)
	w.State = monitor.Warmup
	require.Equal(t, dark, Gauge(w, 10)[0])
}

func TestShowPlain(t *testing.T) {
	var buf bytes.Buffer
	p := New(&Opts{Out: &buf})
	require.True(t, p.Ready())
	require.NoError(t, p.Init())
	require.NoError(t, p.Show(view(912.4, monitor.OK)))
	require.Equal(t, "CO2  912 ppm OK   ^  T 22.1C -  RH 41% -\n", buf.String())
	require.NoError(t, p.Halt())
	require.NotContains(t, buf.String(), "\033")
}

func TestShowColor(t *testing.T) {
	var buf bytes.Buffer
	p := New(&Opts{Out: &buf, Color: true, Width: 8})
	require.NoError(t, p.Show(view(1600, monitor.High)))
	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\r\033[0m"), "%q", out)
	require.Contains(t, out, "CO2 1600 ppm HIGH")

	v := view(0, monitor.Unknown)
	v.State, v.Age = monitor.Stale, 20*time.Second
	buf.Reset()
	require.NoError(t, p.Show(v))
	require.Contains(t, buf.String(), "STALE 20s")
	require.NoError(t, p.Halt())
	require.True(t, strings.HasSuffix(buf.String(), "\n\033[0m"))
}
