// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// airmon samples an SCD4x CO2 sensor, shows the readings on an OLED or the
// terminal and sends ventilation alerts.
//
// SIGUSR1 sends the health card through the notifiers. SIGHUP reloads the
// thresholds from the state file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GermanBionicSystems/airmon/config"
	"github.com/GermanBionicSystems/airmon/console"
	"github.com/GermanBionicSystems/airmon/i2cbus"
	"github.com/GermanBionicSystems/airmon/logging"
	"github.com/GermanBionicSystems/airmon/monitor"
	"github.com/GermanBionicSystems/airmon/notify"
	"github.com/GermanBionicSystems/airmon/oled"
	"github.com/GermanBionicSystems/airmon/quiet"
	"github.com/GermanBionicSystems/airmon/scd4x"
	"github.com/GermanBionicSystems/airmon/telemetry"
	"github.com/GermanBionicSystems/airmon/thresholds"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

func main() {
	envFile := flag.String("env", ".env", "environment file, ignored when missing")
	scan := flag.Bool("scan", false, "list the devices found on the buses and exit")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "airmon: %v\n", err)
		os.Exit(2)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, "airmon")
	if err != nil {
		fmt.Fprintf(os.Stderr, "airmon: logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := mainImpl(cfg, log, *scan); err != nil {
		log.Error("airmon stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func mainImpl(cfg *config.Config, log *zap.Logger, scanOnly bool) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host init: %w", err)
	}

	bc := i2cbus.DefaultConfig
	bc.SensorBus = cfg.SensorBus
	bc.DisplayBus = cfg.DisplayBus
	bc.Display = cfg.Display == config.DisplayOLED
	buses, err := i2cbus.Open(bc, nil, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := buses.Close(); err != nil {
			log.Warn("closing buses", zap.Error(err))
		}
	}()

	if scanOnly {
		s, d := buses.Scan()
		fmt.Printf("sensor bus:  %s\n", i2cbus.FormatAddrs(s))
		if bc.Display {
			fmt.Printf("display bus: %s\n", i2cbus.FormatAddrs(d))
		}
		return nil
	}

	sensor := scd4x.NewI2C(buses.SensorBus(), scd4x.SensorAddress, nil)
	buses.Bind(sensor)
	if err := sensor.Setup(sensorConfig(cfg), cfg.Persist); err != nil {
		// Not fatal: the loop restarts the sensor when no sample arrives.
		log.Warn("sensor setup", zap.Error(err))
	}
	boot := time.Now()
	log.Info("sensor started", zap.Stringer("sensor", sensor))

	qw := quiet.Window{Enabled: cfg.QuietEnabled, Start: cfg.QuietStart, End: cfg.QuietEnd}
	deps := monitor.Deps{
		Sensor: sensor,
		Bus:    buses,
		Store:  &thresholds.FileStore{Path: cfg.StateFile},
		Quiet:  qw,
		Log:    log,
	}

	switch cfg.Display {
	case config.DisplayOLED:
		p, err := oled.New(buses.DisplayBus(), nil)
		if err != nil {
			return err
		}
		buses.Bind(p)
		deps.Panel = p
		defer func() { _ = p.Halt() }()
	case config.DisplayConsole:
		p := console.New(nil)
		deps.Panel = p
		defer func() { _ = p.Halt() }()
	}

	dispatchers := notify.Multi{notify.Log{L: log}}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, &notify.TelegramOpts{Endpoint: cfg.TelegramEndpoint, Log: log})
		if err != nil {
			return err
		}
		dispatchers = append(dispatchers, tg)
	}
	deps.Dispatcher = dispatchers

	if cfg.MQTTBroker != "" {
		pub, err := telemetry.Connect(telemetry.Options{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Prefix:   cfg.MQTTTopic,
		}, log)
		if err != nil {
			// Telemetry is optional; keep monitoring without it.
			log.Warn("telemetry disabled", zap.Error(err))
		} else {
			deps.Publisher = pub
			defer pub.Close()
		}
	}

	loop := monitor.New(nil, deps, boot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go handleSignals(ctx, loop, deps.Store, dispatchers, log)

	log.Info("monitoring",
		zap.String("display", string(cfg.Display)),
		zap.Stringer("quiet", qw),
		zap.Stringer("topology", buses.Topology()))
	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("shutting down")
	return nil
}

func sensorConfig(cfg *config.Config) *scd4x.Config {
	c := &scd4x.Config{
		ASCEnabled:      cfg.ASCEnabled,
		ASCTarget:       scd4x.PPM(cfg.ASCTarget),
		AmbientPressure: physic.Pressure(cfg.PressurePa) * physic.Pascal,
		SensorAltitude:  physic.Distance(cfg.AltitudeM) * physic.Metre,
	}
	if cfg.TemperatureOffset != 0 {
		off := physic.Temperature(cfg.TemperatureOffset * float64(physic.Kelvin))
		c.TemperatureOffset = &off
	}
	return c
}

// handleSignals serves the operator signals until ctx is done.
func handleSignals(ctx context.Context, loop *monitor.Loop, store thresholds.Store, d notify.Dispatcher, log *zap.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1, syscall.SIGHUP)
	defer signal.Stop(sig)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sig:
			switch s {
			case syscall.SIGUSR1:
				nctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				if err := d.Notify(nctx, monitor.HealthCard(loop.Health())); err != nil {
					log.Warn("sending health card", zap.Error(err))
				}
				cancel()
			case syscall.SIGHUP:
				th, err := store.Load()
				if err != nil {
					log.Warn("reloading thresholds", zap.Error(err))
					continue
				}
				if err := loop.UpdateThresholds(th); err != nil {
					log.Warn("applying thresholds", zap.Error(err))
					continue
				}
				log.Info("thresholds reloaded",
					zap.Int("warn_on", int(th.WarnOn)),
					zap.Int("high_on", int(th.HighOn)),
					zap.Int("remind_min", th.RemindMin))
			}
		}
	}
}
