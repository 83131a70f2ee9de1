// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package notify delivers alert texts to people.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Dispatcher delivers one text.
type Dispatcher interface {
	Notify(ctx context.Context, text string) error
}

// Log writes notifications to a logger. It is used when no chat transport is
// configured so that alerts remain visible.
type Log struct {
	L *zap.Logger
}

func (l Log) Notify(_ context.Context, text string) error {
	l.L.Info("notification", zap.String("text", text))
	return nil
}

// Multi sends to every dispatcher and joins the failures.
type Multi []Dispatcher

func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, d := range m {
		if err := d.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
