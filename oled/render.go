// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package oled

import (
	"fmt"
	"image"
	"math"

	"github.com/GermanBionicSystems/airmon/monitor"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gomonobold"
)

// Page is one of the rotating measurement screens.
type Page int

const (
	PageCO2 Page = iota
	PageTemperature
	PageHumidity
	numPages
)

// Bar ranges.
const (
	co2BarMin, co2BarMax   = 400, 2400
	tempBarMin, tempBarMax = -10, 40
)

// Renderer draws views into monochrome friendly images. Anti-aliased edges
// are thresholded by the controller.
type Renderer struct {
	W, H  int
	big   font.Face
	small font.Face
}

// NewRenderer loads the fonts.
func NewRenderer(w, h int) (*Renderer, error) {
	f, err := truetype.Parse(gomonobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("oled: parsing font: %w", err)
	}
	return &Renderer{
		W:     w,
		H:     h,
		big:   truetype.NewFace(f, &truetype.Options{Size: 24, Hinting: font.HintingFull}),
		small: basicfont.Face7x13,
	}, nil
}

// Render draws v. page only matters in the Normal state.
func (r *Renderer) Render(v monitor.View, page Page) image.Image {
	dc := gg.NewContext(r.W, r.H)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetFontFace(r.small)

	age := fmt.Sprintf("%ds", int(v.Age.Seconds()))
	switch v.State {
	case monitor.Warmup:
		r.header(dc, "SENSOR", "-", "WARMUP", false)
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored("SCD4x warmup", float64(r.W)/2, 30, 0.5, 0.5)
		dc.DrawStringAnchored("waiting for sample", float64(r.W)/2, 46, 0.5, 0.5)
	case monitor.Stale:
		r.header(dc, "DATA", age, "STALE", false)
		dc.SetRGB(1, 1, 1)
		dc.DrawString("No fresh sample", 4, 26)
		dc.DrawString(fmt.Sprintf("CO2 %4d", int(math.Round(v.Filtered.CO2))), 4, 40)
		dc.DrawString(fmt.Sprintf("T %.1fC RH %.0f%%", v.Filtered.Temperature, v.Filtered.Humidity), 4, 54)
	default:
		switch page {
		case PageTemperature:
			r.header(dc, "TEMP", age, "", false)
			r.value(dc, fmt.Sprintf("%.1f", v.Filtered.Temperature), "C", v.Trends.Temperature)
			r.bar(dc, v.Filtered.Temperature, tempBarMin, tempBarMax)
		case PageHumidity:
			r.header(dc, "HUM", age, "", false)
			r.value(dc, fmt.Sprintf("%.0f", v.Filtered.Humidity), "%", v.Trends.Humidity)
			r.bar(dc, v.Filtered.Humidity, 0, 100)
		default:
			// The level chip blinks every other second while high.
			blink := v.Level == monitor.High && v.At.Unix()%2 == 0
			r.header(dc, "CO2", age, v.Level.String(), blink)
			r.value(dc, fmt.Sprintf("%d", int(math.Round(v.Filtered.CO2))), "ppm", v.Trends.CO2)
			r.bar(dc, v.Filtered.CO2, co2BarMin, co2BarMax)
		}
	}
	return dc.Image()
}

// header draws an inverted title bar with the sample age on the right and an
// optional status chip in the middle.
func (r *Renderer) header(dc *gg.Context, title, age, status string, invert bool) {
	w := float64(r.W)
	dc.SetRGB(1, 1, 1)
	dc.DrawRectangle(0, 0, w, 11)
	dc.Fill()
	dc.SetRGB(0, 0, 0)
	dc.DrawString(title, 2, 10)
	dc.DrawStringAnchored(age, w-2, 10, 1, 0)
	if status == "" {
		return
	}
	tw, _ := dc.MeasureString(status)
	x := (w - tw) / 2
	if invert {
		dc.DrawRectangle(x-2, 0, tw+4, 11)
		dc.Fill()
		dc.SetRGB(1, 1, 1)
	}
	dc.DrawString(status, x, 10)
}

func (r *Renderer) value(dc *gg.Context, text, unit string, t monitor.Trend) {
	dc.SetRGB(1, 1, 1)
	dc.SetFontFace(r.big)
	dc.DrawStringAnchored(text, float64(r.W)/2-8, 33, 0.5, 0.5)
	dc.SetFontFace(r.small)
	dc.DrawStringAnchored(unit, float64(r.W)-2, 46, 1, 0)
	dc.DrawStringAnchored(t.String(), float64(r.W)-2, 24, 1, 0)
}

func (r *Renderer) bar(dc *gg.Context, v, lo, hi float64) {
	const x, h = 4.0, 8.0
	w := float64(r.W) - 2*x
	y := float64(r.H) - h - 1
	dc.SetRGB(1, 1, 1)
	dc.SetLineWidth(1)
	dc.DrawRectangle(x+0.5, y+0.5, w-1, h-1)
	dc.Stroke()
	ratio := (math.Min(math.Max(v, lo), hi) - lo) / (hi - lo)
	if fill := (w - 4) * ratio; fill >= 1 {
		dc.DrawRectangle(x+2, y+2, fill, h-4)
		dc.Fill()
	}
}
