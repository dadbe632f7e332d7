// Package garage wires the door controller tasks together.
package garage

import (
	"context"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/garagedoor/pkg/cloud"
	"github.com/robotalks/garagedoor/pkg/display"
	"github.com/robotalks/garagedoor/pkg/door"
	fx "github.com/robotalks/garagedoor/pkg/framework"
	"github.com/robotalks/garagedoor/pkg/network"
)

// DefaultBootFlash is how long the screen stays white at boot.
const DefaultBootFlash = time.Second

// Signals is the state shared between tasks.
type Signals struct {
	// Network is set each time the station connects.
	Network *fx.Event
	// Display carries the last written door value to the display task.
	Display *display.Requests
}

// NewSignals creates cleared Signals.
func NewSignals() *Signals {
	return &Signals{
		Network: &fx.Event{},
		Display: display.NewRequests(),
	}
}

// Clear resets both signals.
func (s *Signals) Clear() {
	s.Network.Clear()
	s.Display.Clear()
}

// Daemon is the door controller: it boots the peripherals and runs
// the network, cloud, door and display tasks.
type Daemon struct {
	Display   *display.Locked
	Pin       door.Pin
	Signals   *Signals
	BootFlash time.Duration

	Network  *network.Manager
	Cloud    *cloud.Manager
	Actuator *door.Actuator
	Updater  *display.Updater

	// Closers release peripherals when Run returns.
	Closers []io.Closer
}

// New creates a Daemon with default timings.
func New(d display.Display, pin door.Pin, st network.Station, factory cloud.SessionFactory, creds cloud.Credentials) *Daemon {
	locked, ok := d.(*display.Locked)
	if !ok {
		locked = display.NewLocked(d)
	}
	signals := NewSignals()
	actuator := door.NewActuator(pin, signals.Display)
	return &Daemon{
		Display:   locked,
		Pin:       pin,
		Signals:   signals,
		BootFlash: DefaultBootFlash,
		Network:   network.NewManager(st, locked, signals.Network),
		Cloud:     cloud.NewManager(signals.Network, factory, creds, actuator.OnWrite),
		Actuator:  actuator,
		Updater:   display.NewUpdater(locked, signals.Display),
	}
}

// Name implements Named.
func (d *Daemon) Name() string {
	return "garaged"
}

// Boot puts the peripherals in their initial state: button released
// and a short white flash on the screen.
func (d *Daemon) Boot(ctx context.Context) error {
	if err := d.Actuator.Idle(); err != nil {
		return err
	}
	err := d.Display.Do(func(disp display.Display) error {
		if err := disp.SleepMode(false); err != nil {
			return err
		}
		return disp.Fill(display.White)
	})
	if err != nil {
		return err
	}
	if err := fx.Sleep(ctx, d.BootFlash); err != nil {
		return err
	}
	return d.Display.SleepMode(true)
}

// Run implements Runnable.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.close()
	if err := d.Boot(ctx); err != nil {
		return err
	}
	glog.Info("garage door controller started")
	d.Signals.Clear()
	return fx.NewRunnerWith(ctx).
		Go(d.Network, d.Cloud, d.Actuator, d.Updater).
		Wait()
}

func (d *Daemon) close() {
	for n := len(d.Closers) - 1; n >= 0; n-- {
		if err := d.Closers[n].Close(); err != nil {
			glog.Warningf("close: %v", err)
		}
	}
}
