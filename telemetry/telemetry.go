// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package telemetry publishes readings and health reports over MQTT.
//
// Topics are <prefix>/reading for every accepted sample and <prefix>/health
// for the periodic health report. Health is retained so a late subscriber
// sees the current state at once.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GermanBionicSystems/airmon/monitor"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Client is the subset of mqtt.Client used for publishing.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Options configures Connect.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
	// Connect timeout.
	Timeout time.Duration
}

// Publisher implements monitor.Publisher.
type Publisher struct {
	c      Client
	prefix string
	qos    byte
	log    *zap.Logger
	close  func()
}

// New wraps an already connected client.
func New(c Client, prefix string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{c: c, prefix: prefix, log: log, close: func() {}}
}

// Connect dials the broker. The client reconnects on its own after a lost
// connection; publishes during the outage fail and are dropped.
func Connect(o Options, log *zap.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
	}
	if o.Password != "" {
		opts.SetPassword(o.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}
	opts.SetConnectTimeout(o.Timeout)

	c := mqtt.NewClient(opts)
	if tok := c.Connect(); !tok.WaitTimeout(o.Timeout) {
		return nil, fmt.Errorf("telemetry: connecting to %s: timeout", o.Broker)
	} else if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("telemetry: connecting to %s: %w", o.Broker, err)
	}
	p := New(c, o.Prefix, log)
	p.close = func() { c.Disconnect(250) }
	p.log.Info("mqtt connected", zap.String("broker", o.Broker), zap.String("prefix", o.Prefix))
	return p, nil
}

// PublishReading sends r to <prefix>/reading.
func (p *Publisher) PublishReading(ctx context.Context, r monitor.Reading) error {
	return p.publish(ctx, "reading", false, r)
}

// PublishHealth sends h to <prefix>/health, retained.
func (p *Publisher) PublishHealth(ctx context.Context, h monitor.Health) error {
	return p.publish(ctx, "health", true, h)
}

// Close disconnects a client opened by Connect.
func (p *Publisher) Close() {
	p.close()
}

func (p *Publisher) publish(ctx context.Context, name string, retained bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("telemetry: encoding %s: %w", name, err)
	}
	topic := p.prefix + "/" + name
	tok := p.c.Publish(topic, p.qos, retained, payload)
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return fmt.Errorf("telemetry: publishing to %s: %w", topic, ctx.Err())
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("telemetry: publishing to %s: %w", topic, err)
	}
	p.log.Debug("published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}
