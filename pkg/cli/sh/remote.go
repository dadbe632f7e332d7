package sh

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robotalks/garagedoor/pkg/cloud"
	"github.com/robotalks/garagedoor/pkg/cloud/mqtt"
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("broker timeout")

// ReportFunc receives property reports from the device.
type ReportFunc func(name string, value bool)

// Remote controls a door controller through the broker, from the
// cloud side: it writes properties and tracks reported values.
type Remote struct {
	Queue    *mqtt.Queue
	DeviceID string
	Timeout  time.Duration

	lock     sync.Mutex
	values   map[string]bool
	watchers []ReportFunc
	sub      *mqtt.Subscription
}

// NewRemote creates a Remote for a device.
func NewRemote(q *mqtt.Queue, deviceID string) *Remote {
	return &Remote{
		Queue:    q,
		DeviceID: deviceID,
		Timeout:  5 * time.Second,
		values:   make(map[string]bool),
	}
}

// Start subscribes to the device reports.
func (r *Remote) Start() error {
	r.lock.Lock()
	if r.sub != nil {
		r.lock.Unlock()
		return nil
	}
	r.sub = r.Queue.Sub(cloud.OutboundTopic(r.DeviceID), r.onReport)
	token := r.sub.Token
	r.lock.Unlock()
	return r.wait(token.WaitTimeout, token.Error)
}

// Close unsubscribes from the device reports.
func (r *Remote) Close() error {
	r.lock.Lock()
	sub := r.sub
	r.sub = nil
	r.lock.Unlock()
	if sub != nil {
		return sub.Close()
	}
	return nil
}

// Write sets a property on the device.
func (r *Remote) Write(name string, value bool) error {
	payload, err := cloud.EncodeRecords(cloud.BoolRecord(name, value))
	if err != nil {
		return err
	}
	token := r.Queue.Pub(cloud.InboundTopic(r.DeviceID), payload)
	return r.wait(token.WaitTimeout, token.Error)
}

// Value returns the last reported value of a property.
func (r *Remote) Value(name string) (value, ok bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	value, ok = r.values[name]
	return
}

// Values returns all reported values.
func (r *Remote) Values() map[string]bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	values := make(map[string]bool, len(r.values))
	for name, v := range r.values {
		values[name] = v
	}
	return values
}

// Watch registers fn to be called for each report.
func (r *Remote) Watch(fn ReportFunc) {
	r.lock.Lock()
	r.watchers = append(r.watchers, fn)
	r.lock.Unlock()
}

func (r *Remote) onReport(topic string, payload []byte) {
	recs, err := cloud.DecodeRecords(payload)
	if err != nil {
		return
	}
	for _, rec := range recs {
		if rec.BoolValue == nil {
			continue
		}
		name := rec.FullName()
		r.lock.Lock()
		r.values[name] = *rec.BoolValue
		watchers := r.watchers
		r.lock.Unlock()
		for _, fn := range watchers {
			fn(name, *rec.BoolValue)
		}
	}
}

func (r *Remote) wait(waitTimeout func(time.Duration) bool, errFn func() error) error {
	if !waitTimeout(r.Timeout) {
		return ErrTimeout
	}
	if err := errFn(); err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	return nil
}
