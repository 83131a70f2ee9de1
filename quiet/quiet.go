// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package quiet mutes non-critical notifications during fixed local hours.
package quiet

import (
	"fmt"
	"time"
)

// Window is a daily range of whole local hours [Start, End). A Start after
// End wraps around midnight; Start == End never matches.
type Window struct {
	Enabled    bool
	Start, End int
	// Location defaults to time.Local.
	Location *time.Location
}

// Default is 00:00 to 10:00 local time.
var Default = Window{Enabled: true, Start: 0, End: 10}

// QuietNow reports whether t falls inside the window.
func (w Window) QuietNow(t time.Time) bool {
	if !w.Enabled || w.Start == w.End {
		return false
	}
	loc := w.Location
	if loc == nil {
		loc = time.Local
	}
	h := t.In(loc).Hour()
	if w.Start < w.End {
		return h >= w.Start && h < w.End
	}
	return h >= w.Start || h < w.End
}

func (w Window) String() string {
	if !w.Enabled {
		return "OFF"
	}
	return fmt.Sprintf("ON %02d:00-%02d:00", w.Start, w.End)
}
