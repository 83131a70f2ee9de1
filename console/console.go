// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package console shows the measurements as a one line CO2 gauge on the
// terminal, using ANSI color codes when the output is a terminal.
//
// Useful on hosts without a display and while debugging on a desktop.
package console

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"

	"github.com/GermanBionicSystems/airmon/monitor"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Opts represents the options available for this panel.
type Opts struct {
	// Cells in the gauge.
	Width   int
	Palette *ansi256.Palette
	// Out defaults to stdout; Color is then detected.
	Out   io.Writer
	Color bool
}

// Gauge scale.
const (
	GaugeMin = 400
	GaugeMax = 2400
)

var (
	green = color.NRGBA{0, 200, 0, 255}
	amber = color.NRGBA{255, 170, 0, 255}
	red   = color.NRGBA{230, 0, 0, 255}
	dark  = color.NRGBA{40, 40, 40, 255}
)

// Panel implements monitor.Panel on a terminal.
type Panel struct {
	w       io.Writer
	color   bool
	width   int
	palette ansi256.Palette

	buf bytes.Buffer
}

// New returns a Panel writing to the console.
func New(opts *Opts) *Panel {
	o := Opts{Width: 40}
	if opts != nil {
		o = *opts
	}
	if o.Width <= 0 {
		o.Width = 40
	}
	p := o.Palette
	if p == nil {
		p = ansi256.Default
	}
	if o.Out == nil {
		o.Out = colorable.NewColorableStdout()
		o.Color = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}
	return &Panel{w: o.Out, color: o.Color, width: o.Width, palette: *p}
}

func (p *Panel) String() string {
	return "console"
}

// Ready is always true; there is nothing to initialize.
func (p *Panel) Ready() bool { return true }

// Init implements monitor.Panel.
func (p *Panel) Init() error { return nil }

// Show redraws the gauge line. On a terminal the line is rewritten in place,
// otherwise one line is printed per call.
func (p *Panel) Show(v monitor.View) error {
	p.buf.Reset()
	if p.color {
		_, _ = p.buf.WriteString("\r\033[0m")
		for _, c := range Gauge(v, p.width) {
			_, _ = io.WriteString(&p.buf, p.palette.Block(c))
		}
		_, _ = p.buf.WriteString("\033[0m ")
	}
	_, _ = p.buf.WriteString(Summary(v))
	if !p.color {
		_ = p.buf.WriteByte('\n')
	}
	_, err := p.buf.WriteTo(p.w)
	return err
}

// Halt resets the terminal attributes and ends the line.
func (p *Panel) Halt() error {
	if !p.color {
		return nil
	}
	_, err := p.w.Write([]byte("\n\033[0m"))
	return err
}

// Gauge returns width cells, filled proportionally to the filtered CO2 and
// colored by the level each cell represents.
func Gauge(v monitor.View, width int) []color.NRGBA {
	cells := make([]color.NRGBA, width)
	ratio := (math.Min(math.Max(v.Filtered.CO2, GaugeMin), GaugeMax) - GaugeMin) / (GaugeMax - GaugeMin)
	filled := int(math.Round(ratio * float64(width)))
	if v.State == monitor.Warmup {
		filled = 0
	}
	for i := range cells {
		if i >= filled {
			cells[i] = dark
			continue
		}
		ppm := GaugeMin + (float64(i)+0.5)*(GaugeMax-GaugeMin)/float64(width)
		switch {
		case ppm < float64(v.Thresholds.WarnOn):
			cells[i] = green
		case ppm <= float64(v.Thresholds.HighOn):
			cells[i] = amber
		default:
			cells[i] = red
		}
	}
	return cells
}

// Summary is the text part of the line.
func Summary(v monitor.View) string {
	switch v.State {
	case monitor.Warmup:
		return "WARMUP waiting for first sample"
	case monitor.Stale:
		return fmt.Sprintf("STALE %ds  CO2 %4d ppm", int(v.Age.Seconds()), int(math.Round(v.Filtered.CO2)))
	}
	return fmt.Sprintf("CO2 %4d ppm %-4s %s  T %.1fC %s  RH %.0f%% %s",
		int(math.Round(v.Filtered.CO2)), v.Level, v.Trends.CO2,
		v.Filtered.Temperature, v.Trends.Temperature,
		v.Filtered.Humidity, v.Trends.Humidity)
}
