// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package oled shows the measurements on a 128x64 SSD1306 or SH1106 OLED.
//
// The panel can sit on the same I²C bus as the sensor. After a bus reset the
// controller handle is dropped and the control loop initializes it again.
package oled

import (
	"errors"
	"fmt"
	"time"

	"github.com/GermanBionicSystems/airmon/monitor"
	"periph.io/x/conn/v3/i2c"
)

// Opts configures the panel.
type Opts struct {
	Addr       uint16
	Controller Controller
	W, H       int
	// Flip rotates the picture by 180°.
	Flip bool
	// PageEvery is how long each measurement page stays up.
	PageEvery time.Duration
}

// DefaultOpts matches the common 1.3" SH1106 and 0.96" SSD1306 modules.
var DefaultOpts = Opts{
	Addr:      0x3c,
	W:         128,
	H:         64,
	PageEvery: 5 * time.Second,
}

// Panel implements monitor.Panel.
type Panel struct {
	bus  i2c.Bus
	opts Opts
	r    *Renderer
	dev  *controller

	page       Page
	lastSwitch time.Time
}

var errNotReady = errors.New("oled: not initialized")

// New returns a Panel on b. The display is not touched until Init.
func New(b i2c.Bus, opts *Opts) (*Panel, error) {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if o.Addr == 0 {
		o.Addr = DefaultOpts.Addr
	}
	r, err := NewRenderer(o.W, o.H)
	if err != nil {
		return nil, err
	}
	return &Panel{bus: b, opts: o, r: r}, nil
}

// Rebind switches to a new bus handle. The controller must be initialized
// again since a reset may have power cycled it.
func (p *Panel) Rebind(b i2c.Bus) {
	p.bus = b
	p.dev = nil
}

// Ready reports whether Init succeeded on the current handle.
func (p *Panel) Ready() bool {
	return p.dev != nil
}

// Init sends the controller initialization sequence.
func (p *Panel) Init() error {
	if p.bus == nil {
		return errors.New("oled: no bus bound")
	}
	d, err := newController(p.bus, p.opts.Addr, p.opts.Controller, p.opts.W, p.opts.H, p.opts.Flip)
	if err != nil {
		return err
	}
	p.dev = d
	return nil
}

// Show draws v, advancing the measurement page when it is due.
func (p *Panel) Show(v monitor.View) error {
	if p.dev == nil {
		return errNotReady
	}
	if p.lastSwitch.IsZero() {
		p.lastSwitch = v.At
	} else if p.opts.PageEvery > 0 && v.At.Sub(p.lastSwitch) >= p.opts.PageEvery {
		p.lastSwitch = v.At
		p.page = (p.page + 1) % numPages
	}
	return p.dev.draw(p.r.Render(v, p.page))
}

// Halt turns the display off.
func (p *Panel) Halt() error {
	if p.dev == nil {
		return nil
	}
	return p.dev.halt()
}

func (p *Panel) String() string {
	kind := p.opts.Controller
	if p.dev != nil {
		kind = p.dev.kind
	}
	if kind == Auto {
		kind = "auto"
	}
	return fmt.Sprintf("oled: %s@%#x", kind, p.opts.Addr)
}
