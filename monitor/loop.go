// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package monitor runs the measurement loop: it polls the sensor, smooths
// and classifies the readings, raises notifications and decides when faults
// call for a bus reset or a sensor restart.
//
// All bus traffic happens on the goroutine calling Run (or Tick). Health and
// UpdateThresholds may be called from anywhere.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GermanBionicSystems/airmon/diag"
	"github.com/GermanBionicSystems/airmon/fault"
	"github.com/GermanBionicSystems/airmon/i2cbus"
	"github.com/GermanBionicSystems/airmon/scd4x"
	"github.com/GermanBionicSystems/airmon/thresholds"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"
)

// Sensor is the part of the scd4x driver the loop uses.
type Sensor interface {
	IsReady() (bool, error)
	ReadSample() (scd4x.Sample, error)
	Restart() error
}

// Bus is the part of the i2cbus manager the loop uses.
type Bus interface {
	Topology() i2cbus.Topology
	Recover(now time.Time) bool
	Info() i2cbus.Info
	Scan() (sensor, display []uint16)
}

// Dispatcher delivers a notification text.
type Dispatcher interface {
	Notify(ctx context.Context, text string) error
}

// QuietHours reports whether non-critical notifications are muted.
type QuietHours interface {
	QuietNow(t time.Time) bool
}

// Panel is a status display. Ready turns false when the panel lost its
// controller state, for example after a bus reset.
type Panel interface {
	Ready() bool
	Init() error
	Show(v View) error
}

// Publisher exports readings and health.
type Publisher interface {
	PublishReading(ctx context.Context, r Reading) error
	PublishHealth(ctx context.Context, h Health) error
}

// Config holds the loop timing and policy. DefaultConfig is what the
// firmware runs with.
type Config struct {
	Tick         time.Duration
	PollInterval time.Duration

	// Plausible CO2 range; readings outside are dropped.
	MinCO2, MaxCO2 scd4x.PPM

	StaleAfter   time.Duration
	FastRecovery time.Duration
	RestartAfter time.Duration
	// At most MaxRestarts forced restarts per RestartWindow, then the runtime
	// is degraded.
	RestartWindow time.Duration
	MaxRestarts   int

	DiagWindow    time.Duration
	BadScore      int
	FaultWeight   int
	RecoverWeight int

	DisplayRetry   time.Duration
	DisplayRefresh time.Duration

	PublishEvery time.Duration
	ScanEvery    time.Duration
	// NotifyTimeout bounds each notification and each telemetry publish.
	NotifyTimeout time.Duration
}

// DefaultConfig is the production configuration.
var DefaultConfig = Config{
	Tick:           120 * time.Millisecond,
	PollInterval:   500 * time.Millisecond,
	MinCO2:         350,
	MaxCO2:         10000,
	StaleAfter:     15 * time.Second,
	FastRecovery:   25 * time.Second,
	RestartAfter:   90 * time.Second,
	RestartWindow:  10 * time.Minute,
	MaxRestarts:    3,
	DiagWindow:     60 * time.Second,
	BadScore:       8,
	FaultWeight:    1,
	RecoverWeight:  2,
	DisplayRetry:   2 * time.Second,
	DisplayRefresh: 1200 * time.Millisecond,
	PublishEvery:   30 * time.Second,
	ScanEvery:      10 * time.Second,
	NotifyTimeout:  5 * time.Second,
}

// Deps are the collaborators of a Loop. Sensor and Bus are required.
type Deps struct {
	Sensor     Sensor
	Bus        Bus
	Store      thresholds.Store
	Dispatcher Dispatcher
	Quiet      QuietHours
	Panel      Panel
	Publisher  Publisher
	Log        *zap.Logger
	// Now defaults to time.Now and is only used by Run.
	Now func() time.Time
}

// Loop is the control loop. Create it with New.
type Loop struct {
	cfg Config
	d   Deps
	log *zap.Logger

	diag *diag.Engine

	health  atomic.Pointer[Health]
	updMu   sync.Mutex
	updates chan thresholds.Settings

	// Everything below is owned by the loop goroutine.
	th       thresholds.Settings
	boot     time.Time
	state    State
	powerBad bool

	hasSample  bool
	sample     scd4x.Sample
	lastSample time.Time
	filtered   Filtered
	trends     Trends
	level      Level
	alert      alerter
	notifyErrs int

	fastDone    bool
	lastPoll    time.Time
	lastRestart time.Time
	lastInit    time.Time
	lastRefresh time.Time
	lastPublish time.Time
	lastScan    time.Time
}

// New returns a Loop that considers boot as the moment the sensor was
// started. The thresholds are loaded from d.Store when set.
func New(cfg *Config, d Deps, boot time.Time) *Loop {
	if cfg == nil {
		cfg = &DefaultConfig
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	l := &Loop{
		cfg:         *cfg,
		d:           d,
		log:         d.Log,
		diag:        diag.New(boot, diag.DefaultMaxEvents),
		updates:     make(chan thresholds.Settings, 1),
		th:          thresholds.Defaults,
		boot:        boot,
		lastRestart: boot,
	}
	if d.Store != nil {
		th, err := d.Store.Load()
		if err != nil {
			l.log.Warn("loading thresholds, using defaults", zap.Error(err))
		} else {
			l.th = th.Repair()
		}
	}
	l.health.Store(&Health{HealthSnapshot: l.diag.Snapshot(boot, l.busInfo()), Thresholds: l.th})
	return l
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	t := time.NewTicker(l.cfg.Tick)
	defer t.Stop()
	l.Tick(ctx, l.d.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			l.Tick(ctx, l.d.Now())
		}
	}
}

// Health returns the snapshot computed by the last tick.
func (l *Loop) Health() Health {
	return *l.health.Load()
}

// UpdateThresholds validates and stores s, then hands it to the loop, which
// applies it at the start of its next tick. A rejected value is returned as
// a *thresholds.ValidationError and changes nothing.
func (l *Loop) UpdateThresholds(s thresholds.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if l.d.Store != nil {
		if err := l.d.Store.Save(s); err != nil {
			return err
		}
	}
	l.updMu.Lock()
	defer l.updMu.Unlock()
	// Latest value wins.
	select {
	case <-l.updates:
	default:
	}
	l.updates <- s
	return nil
}

// Tick runs one iteration. It never fails; faults are recorded in the
// diagnostics and reflected in Health.
func (l *Loop) Tick(ctx context.Context, now time.Time) {
	select {
	case s := <-l.updates:
		l.log.Info("thresholds updated", zap.Int("warn_on", int(s.WarnOn)), zap.Int("high_on", int(s.HighOn)), zap.Int("remind_min", s.RemindMin))
		l.th = s
	default:
	}

	if l.lastPoll.IsZero() || now.Sub(l.lastPoll) >= l.cfg.PollInterval {
		l.lastPoll = now
		l.poll(ctx, now)
	}
	l.scan(now)
	l.updateState(now)
	l.restartPolicy(now)
	l.refreshDisplay(now)
	l.refreshHealth(ctx, now)
}

func (l *Loop) poll(ctx context.Context, now time.Time) {
	ready, err := l.d.Sensor.IsReady()
	if err != nil {
		l.sensorFault(now, err)
		return
	}
	if !ready {
		return
	}
	s, err := l.d.Sensor.ReadSample()
	if err != nil {
		l.sensorFault(now, err)
		return
	}
	if s.CO2 < l.cfg.MinCO2 || s.CO2 > l.cfg.MaxCO2 {
		l.log.Debug("implausible sample dropped", zap.Stringer("co2", s.CO2), zap.Error(fault.Range))
		return
	}
	l.ingest(ctx, now, s)
}

func (l *Loop) ingest(ctx context.Context, now time.Time, s scd4x.Sample) {
	if !l.hasSample {
		l.log.Info("first sample", zap.Duration("after", now.Sub(l.boot)), zap.Stringer("sample", s))
	}
	l.hasSample = true
	l.sample = s
	l.lastSample = now
	l.filtered, l.trends = l.filtered.Update(s)
	l.level = LevelOf(s.CO2, l.th)

	if a := l.alert.step(now, l.level, l.th.Remind()); a != NoAlert {
		l.notify(ctx, now, a)
	}
	if l.d.Publisher != nil {
		r := Reading{At: now, Sample: s, Filtered: l.filtered, Trends: l.trends, Level: l.level}
		pctx, cancel := context.WithTimeout(ctx, l.cfg.NotifyTimeout)
		err := l.d.Publisher.PublishReading(pctx, r)
		cancel()
		if err != nil {
			l.log.Debug("publishing reading", zap.Error(err))
		}
	}
}

func (l *Loop) notify(ctx context.Context, now time.Time, a Alert) {
	if a.suppressible() && l.quiet(now) {
		l.log.Info("alert muted by quiet hours", zap.Stringer("alert", a))
		return
	}
	l.log.Info("alert", zap.Stringer("alert", a), zap.Stringer("level", l.level), zap.Float64("co2", l.filtered.CO2))
	if l.d.Dispatcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.NotifyTimeout)
	defer cancel()
	if err := l.d.Dispatcher.Notify(ctx, AlertText(a, l.filtered)); err != nil {
		l.notifyErrs++
		l.log.Warn("notification failed", zap.Stringer("alert", a), zap.Error(err))
	}
}

func (l *Loop) quiet(now time.Time) bool {
	return l.d.Quiet != nil && l.d.Quiet.QuietNow(now)
}

// sensorFault records a failed sensor operation. Malformed replies mean the
// transfer got corrupted on the wire; anything else is a bus failure.
func (l *Loop) sensorFault(now time.Time, err error) {
	f := diag.FaultBus
	switch fault.Of(err) {
	case fault.Checksum, fault.Framing:
		f = diag.FaultSensorRead
	}
	l.markFault(now, f, err)
}

// markFault records f and, on a shared bus, attempts a reset. The failed
// operation is not retried; the next poll uses whatever handle is bound.
func (l *Loop) markFault(now time.Time, f diag.Fault, err error) {
	l.log.Warn("fault", zap.Stringer("source", f), zap.String("kind", string(fault.Of(err))), zap.Error(err))
	l.diag.MarkFault(now, f, l.cfg.FaultWeight)
	l.diag.Compute(now, l.cfg.DiagWindow, l.cfg.BadScore)
	if l.d.Bus == nil || l.d.Bus.Topology() != i2cbus.Shared {
		return
	}
	if l.d.Bus.Recover(now) {
		l.diag.MarkRecover(now, l.cfg.RecoverWeight)
		l.diag.Compute(now, l.cfg.DiagWindow, l.cfg.BadScore)
	}
}

func (l *Loop) updateState(now time.Time) {
	next := Warmup
	if l.hasSample {
		next = Normal
		if now.Sub(l.lastSample) > l.cfg.StaleAfter {
			next = Stale
		}
	}
	if next != l.state {
		l.log.Info("state changed", zap.Stringer("from", l.state), zap.Stringer("to", next))
		l.state = next
	}
}

func (l *Loop) restartPolicy(now time.Time) {
	if !l.hasSample && !l.fastDone && now.Sub(l.boot) >= l.cfg.FastRecovery {
		l.fastDone = true
		l.restart(now, "no first sample")
		return
	}
	stale := !l.hasSample || now.Sub(l.lastSample) > l.cfg.RestartAfter
	if stale && now.Sub(l.lastRestart) >= l.cfg.RestartAfter {
		l.restart(now, "no fresh sample")
	}
}

func (l *Loop) restart(now time.Time, why string) {
	l.lastRestart = now
	ok, reason := l.diag.AllowRestart(now, l.cfg.RestartWindow, l.cfg.MaxRestarts)
	if !ok {
		l.log.Warn("sensor restart refused", zap.String("why", why), zap.String("reason", reason))
		return
	}
	l.log.Warn("restarting sensor", zap.String("why", why))
	if err := l.d.Sensor.Restart(); err != nil {
		// Counted once however many of the steps failed.
		l.markFault(now, diag.FaultBus, err)
	}
}

// refreshDisplay leaves the panel alone until the sensor produced a sample:
// on a shared bus the panel traffic is what usually upsets the sensor during
// its start-up.
func (l *Loop) refreshDisplay(now time.Time) {
	p := l.d.Panel
	if p == nil || !l.hasSample {
		return
	}
	if !p.Ready() {
		if !l.lastInit.IsZero() && now.Sub(l.lastInit) < l.cfg.DisplayRetry {
			return
		}
		l.lastInit = now
		if err := p.Init(); err != nil {
			l.markFault(now, diag.FaultDisplayInit, err)
			return
		}
		l.log.Info("display ready")
		l.lastRefresh = time.Time{}
	}
	if !l.lastRefresh.IsZero() && now.Sub(l.lastRefresh) < l.cfg.DisplayRefresh {
		return
	}
	l.lastRefresh = now
	if err := p.Show(l.view(now)); err != nil {
		l.markFault(now, diag.FaultBus, err)
	}
}

func (l *Loop) view(now time.Time) View {
	return View{
		At:         now,
		State:      l.state,
		Sample:     l.sample,
		Age:        now.Sub(l.lastSample),
		Filtered:   l.filtered,
		Trends:     l.trends,
		Level:      l.level,
		Thresholds: l.th,
	}
}

func (l *Loop) scan(now time.Time) {
	if l.d.Bus == nil || l.cfg.ScanEvery <= 0 {
		return
	}
	if !l.lastScan.IsZero() && now.Sub(l.lastScan) < l.cfg.ScanEvery {
		return
	}
	l.lastScan = now
	sensor, display := l.d.Bus.Scan()
	l.log.Info("i2c scan", zap.String("sensor_bus", i2cbus.FormatAddrs(sensor)), zap.String("display_bus", i2cbus.FormatAddrs(display)))
}

func (l *Loop) refreshHealth(ctx context.Context, now time.Time) {
	r := l.diag.Compute(now, l.cfg.DiagWindow, l.cfg.BadScore)
	if r.PowerBad != l.powerBad {
		l.powerBad = r.PowerBad
		if r.PowerBad {
			l.log.Warn("power looks bad", zap.Int("score", r.Score), zap.Float64("bus_faults_per_min", r.BusFaultRatePerMin))
		} else {
			l.log.Info("power back to normal", zap.Int("score", r.Score))
		}
	}
	h := &Health{
		HealthSnapshot:   l.diag.Snapshot(now, l.busInfo()),
		State:            l.state,
		Level:            l.level,
		Filtered:         l.filtered,
		Trends:           l.trends,
		Thresholds:       l.th,
		Quiet:            l.quiet(now),
		NotifyErrorTotal: l.notifyErrs,
	}
	if l.hasSample {
		s := l.sample
		age := now.Sub(l.lastSample)
		h.Sample, h.SampleAge = &s, &age
	}
	l.health.Store(h)

	if l.d.Publisher == nil {
		return
	}
	if !l.lastPublish.IsZero() && now.Sub(l.lastPublish) < l.cfg.PublishEvery {
		return
	}
	l.lastPublish = now
	ctx, cancel := context.WithTimeout(ctx, l.cfg.NotifyTimeout)
	defer cancel()
	if err := l.d.Publisher.PublishHealth(ctx, *h); err != nil {
		l.log.Debug("publishing health", zap.Error(err))
	}
}

func (l *Loop) busInfo() diag.Bus {
	if l.d.Bus == nil {
		return diag.Bus{Mode: "-"}
	}
	info := l.d.Bus.Info()
	return diag.Bus{Mode: info.Topology.String(), FrequencyHz: int64(info.Speed / physic.Hertz), Resets: info.Resets}
}
