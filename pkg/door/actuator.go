package door

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/garagedoor/pkg/display"
	fx "github.com/robotalks/garagedoor/pkg/framework"
)

// Defaults
const (
	DefaultPulseWidth = time.Second
	DefaultQueueSize  = 16
)

// ErrQueueFull indicates too many writes are waiting for their pulse.
var ErrQueueFull = errors.New("pulse queue full")

// Actuator presses the door button once per remote write.
// Writes are queued and pulsed in order by Run, so the caller
// never waits for the pulse. After each successful pulse the written
// value is posted to Requests.
type Actuator struct {
	Pin        Pin
	Requests   *display.Requests
	PulseWidth time.Duration

	writes chan bool
	lock   sync.Mutex
	pulses int
}

// NewActuator creates an Actuator.
func NewActuator(pin Pin, reqs *display.Requests) *Actuator {
	return &Actuator{
		Pin:        pin,
		Requests:   reqs,
		PulseWidth: DefaultPulseWidth,
		writes:     make(chan bool, DefaultQueueSize),
	}
}

// Name implements Named.
func (a *Actuator) Name() string {
	return "door"
}

// Idle releases the button.
func (a *Actuator) Idle() error {
	return a.Pin.Set(true)
}

// OnWrite is the write callback of the door property.
func (a *Actuator) OnWrite(value bool) {
	glog.Infof("Value is: %v", value)
	if err := a.Enqueue(value); err != nil {
		glog.Errorf("door write %v dropped: %v", value, err)
	}
}

// Enqueue schedules a pulse for value.
func (a *Actuator) Enqueue(value bool) error {
	select {
	case a.writes <- value:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pulses returns the number of completed pulses.
func (a *Actuator) Pulses() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.pulses
}

// Run implements Runnable.
func (a *Actuator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case value := <-a.writes:
			if err := a.Pulse(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				glog.Errorf("door pulse for %v failed: %v", value, err)
				continue
			}
			a.Requests.Post(value)
		}
	}
}

// Pulse drives the line low then high, holding each level for PulseWidth.
// The line is left high even if ctx is cancelled.
func (a *Actuator) Pulse(ctx context.Context) error {
	if err := a.Pin.Set(false); err != nil {
		return err
	}
	sleepErr := fx.Sleep(ctx, a.PulseWidth)
	if err := a.Pin.Set(true); err != nil {
		return err
	}
	if sleepErr != nil {
		return sleepErr
	}
	if err := fx.Sleep(ctx, a.PulseWidth); err != nil {
		return err
	}
	a.lock.Lock()
	a.pulses++
	a.lock.Unlock()
	return nil
}
