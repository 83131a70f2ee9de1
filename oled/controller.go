// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package oled

// SSD1306 and SH1106 controllers are command compatible for everything used
// here except addressing: the SH1106 only supports page addressing and has
// 132 columns of RAM, the visible 128 starting at column 2. Pages are
// therefore always written one by one with an explicit column start.

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// Controller selects the display controller.
type Controller string

const (
	// Auto reads the controller ID from the status register.
	Auto    Controller = ""
	SSD1306 Controller = "SSD1306"
	SH1106  Controller = "SH1106"
)

const (
	cmdChargePump      = 0x8D
	cmdComScanDec      = 0xC8
	cmdComScanInc      = 0xC0
	cmdDisplayAllOn    = 0xA4
	cmdDisplayOff      = 0xAE
	cmdDisplayOn       = 0xAF
	cmdNormalDisplay   = 0xA6
	cmdPageStart       = 0xB0
	cmdSegRemap        = 0xA0
	cmdSegRemapFlip    = 0xA1
	cmdSetComPins      = 0xDA
	cmdSetContrast     = 0x81
	cmdSetClockDiv     = 0xD5
	cmdSetDisplayOff   = 0xD3
	cmdSetHighColumn   = 0x10
	cmdSetLowColumn    = 0x00
	cmdSetMultiplex    = 0xA8
	cmdSetPrecharge    = 0xD9
	cmdSetStartLine    = 0x40
	cmdSetVcomDetect   = 0xDB
	cmdDeactivateScrol = 0x2E

	i2cCmd  = 0x00
	i2cData = 0x40
)

// controller is the minimal I²C driver for the panel. It does not retain the
// bus across a reset: the panel builds a new one.
type controller struct {
	c      i2c.Dev
	kind   Controller
	rect   image.Rectangle
	offset byte
	// What the controller RAM holds. nil until the first full write.
	shown []byte
	next  *image1bit.VerticalLSB
}

// newController initializes the display. w must be a multiple of 8 up to
// 128 and h a multiple of 8 up to 64.
func newController(b i2c.Bus, addr uint16, kind Controller, w, h int, flip bool) (*controller, error) {
	if w < 8 || w > 128 || w&7 != 0 || h < 8 || h > 64 || h&7 != 0 {
		return nil, fmt.Errorf("oled: invalid size %dx%d", w, h)
	}
	d := &controller{
		c:    i2c.Dev{Bus: b, Addr: addr},
		kind: kind,
		rect: image.Rect(0, 0, w, h),
		next: image1bit.NewVerticalLSB(image.Rect(0, 0, w, h)),
	}
	if d.kind == Auto {
		d.kind = SSD1306
		if id, err := d.readID(); err == nil && id&0x0f == 0x08 {
			d.kind = SH1106
		}
	}
	if d.kind == SH1106 {
		d.offset = 2
	}
	if err := d.command(initSequence(w, h, flip)...); err != nil {
		return nil, fmt.Errorf("oled: %s init: %w", d.kind, err)
	}
	return d, nil
}

func initSequence(w, h int, flip bool) []byte {
	comScan, segRemap := byte(cmdComScanDec), byte(cmdSegRemapFlip)
	if flip {
		comScan, segRemap = cmdComScanInc, cmdSegRemap
	}
	comPins := byte(0x12)
	if h == 32 {
		comPins = 0x02
	}
	return []byte{
		cmdDisplayOff,
		cmdSetDisplayOff, 0x00,
		cmdSetStartLine,
		segRemap,
		comScan,
		cmdSetComPins, comPins,
		cmdSetContrast, 0xFF,
		cmdDisplayAllOn,
		cmdNormalDisplay,
		cmdSetClockDiv, 0x80,
		cmdChargePump, 0x14,
		cmdSetPrecharge, 0xF1,
		cmdSetVcomDetect, 0x40,
		cmdDeactivateScrol,
		cmdSetMultiplex, byte(h - 1),
		cmdDisplayOn,
	}
}

// draw renders src and sends the pages that differ from what is shown.
func (d *controller) draw(src image.Image) error {
	draw.Src.Draw(d.next, d.rect, src, image.Point{})
	w := d.rect.Dx()
	for page := 0; page < d.rect.Dy()/8; page++ {
		row := d.next.Pix[page*w : (page+1)*w]
		if d.shown != nil && bytes.Equal(d.shown[page*w:(page+1)*w], row) {
			continue
		}
		err := d.command(cmdPageStart|byte(page), cmdSetLowColumn|(d.offset&0x0F), cmdSetHighColumn|(d.offset>>4))
		if err == nil {
			err = d.c.Tx(append([]byte{i2cData}, row...), nil)
		}
		if err != nil {
			// RAM content is unknown now; resend everything next time.
			d.shown = nil
			return fmt.Errorf("oled: page %d: %w", page, err)
		}
	}
	if d.shown == nil {
		d.shown = make([]byte, len(d.next.Pix))
	}
	copy(d.shown, d.next.Pix)
	return nil
}

func (d *controller) halt() error {
	return d.command(cmdDisplayOff)
}

func (d *controller) command(c ...byte) error {
	return d.c.Tx(append([]byte{i2cCmd}, c...), nil)
}

// readID returns the status register. Its low nibble is 0x08 on the SH1106
// and 0x03 or 0x06 on the SSD1306.
func (d *controller) readID() (byte, error) {
	r := make([]byte, 1)
	err := d.c.Tx([]byte{i2cCmd}, r)
	return r[0], err
}
