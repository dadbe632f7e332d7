// Package cloud connects the device to the IoT cloud broker and
// bridges remote properties to local callbacks.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/garagedoor/pkg/cloud/mqtt"
)

// Credentials authenticate the device with the broker.
type Credentials struct {
	DeviceID  string
	SecretKey string
}

// WriteFunc is called when the cloud writes a property.
type WriteFunc func(value bool)

// Session is an authenticated connection exposing device properties.
type Session interface {
	// Register adds a boolean property writable from the cloud.
	Register(name string, initial bool, onWrite WriteFunc) error
	// Run connects and dispatches incoming writes until ctx is done.
	// Write callbacks are invoked on the calling goroutine.
	Run(ctx context.Context) error
	// Close disconnects the session.
	Close() error
}

// SessionFactory creates sessions.
type SessionFactory func(Credentials) (Session, error)

// Errors
var (
	ErrNoProperties      = errors.New("no properties registered")
	ErrDuplicateProperty = errors.New("property already registered")
	ErrInvalidProperty   = errors.New("invalid property name")
)

// InboxSize is the number of inbound messages buffered before the
// broker client blocks.
const InboxSize = 8

// ThingIDProperty is the device property through which the cloud
// assigns the thing the device is attached to.
const ThingIDProperty = "thing_id"

// MQTTSession is a Session over MQTT, exchanging SenML CBOR packs.
//
// The session listens on the device topic /a/d/<device>/e/i. Until the
// cloud assigns a thing there (a "thing_id" string record), property
// writes are taken from the device topic and values are reported on
// /a/d/<device>/e/o. Once attached to a thing, writes arrive on
// /a/t/<thing>/e/i, values are reported on /a/t/<thing>/e/o, and the
// last values are requested over /a/t/<thing>/shadow/o.
type MQTTSession struct {
	Queue *mqtt.Queue
	Creds Credentials

	props     map[string]*property
	thingID   string
	thingSubs []*mqtt.Subscription
	propsLock sync.Mutex
	inbox     chan inbound
	done      chan struct{}
	closeOnce sync.Once
}

type inbound struct {
	topic   string
	payload []byte
}

type property struct {
	value   bool
	onWrite WriteFunc
}

// MQTTSessionFactory creates MQTT sessions connecting to brokerURL.
func MQTTSessionFactory(brokerURL string) SessionFactory {
	return func(creds Credentials) (Session, error) {
		return NewMQTTSession(brokerURL, creds)
	}
}

// NewMQTTSession creates a session authenticating with creds.
func NewMQTTSession(brokerURL string, creds Credentials) (*MQTTSession, error) {
	opts, topicPrefix, err := mqtt.ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}
	opts.SetUsername(creds.DeviceID).SetPassword(creds.SecretKey)
	if opts.ClientID == "" {
		opts.SetClientID(creds.DeviceID)
	}
	return NewMQTTSessionWithQueue(mqtt.NewQueue(opts, topicPrefix), creds), nil
}

// NewMQTTSessionWithQueue creates a session on an existing Queue.
func NewMQTTSessionWithQueue(q *mqtt.Queue, creds Credentials) *MQTTSession {
	s := &MQTTSession{
		Queue: q,
		Creds: creds,
		props: make(map[string]*property),
		inbox: make(chan inbound, InboxSize),
		done:  make(chan struct{}),
	}
	q.OnConnect = func(*mqtt.Queue) { s.reportAll() }
	return s
}

// InboundTopic is where the cloud writes properties.
func InboundTopic(deviceID string) string {
	return "/a/d/" + deviceID + "/e/i"
}

// OutboundTopic is where the device reports property values.
func OutboundTopic(deviceID string) string {
	return "/a/d/" + deviceID + "/e/o"
}

// ThingInboundTopic is where the cloud writes the properties of a thing.
func ThingInboundTopic(thingID string) string {
	return "/a/t/" + thingID + "/e/i"
}

// ThingOutboundTopic is where the properties of a thing are reported.
func ThingOutboundTopic(thingID string) string {
	return "/a/t/" + thingID + "/e/o"
}

// ShadowInboundTopic carries the last values of a thing.
func ShadowInboundTopic(thingID string) string {
	return "/a/t/" + thingID + "/shadow/i"
}

// ShadowOutboundTopic is where last values are requested.
func ShadowOutboundTopic(thingID string) string {
	return "/a/t/" + thingID + "/shadow/o"
}

// LastValuesRequest asks the cloud for the last values of a thing.
func LastValuesRequest() Record {
	req := "getLastValues"
	return Record{Name: "r:m", StrValue: &req}
}

// Register implements Session.
func (s *MQTTSession) Register(name string, initial bool, onWrite WriteFunc) error {
	if name == "" {
		return ErrInvalidProperty
	}
	s.propsLock.Lock()
	if _, ok := s.props[name]; ok {
		s.propsLock.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateProperty, name)
	}
	s.props[name] = &property{value: initial, onWrite: onWrite}
	s.propsLock.Unlock()
	if s.Queue.Client.IsConnected() {
		s.report(BoolRecord(name, initial))
	}
	return nil
}

// ThingID returns the thing the session is attached to, if any.
func (s *MQTTSession) ThingID() string {
	s.propsLock.Lock()
	defer s.propsLock.Unlock()
	return s.thingID
}

// Value returns the current value of a property.
func (s *MQTTSession) Value(name string) (value, ok bool) {
	s.propsLock.Lock()
	defer s.propsLock.Unlock()
	if p := s.props[name]; p != nil {
		return p.value, true
	}
	return false, false
}

// Run implements Session.
func (s *MQTTSession) Run(ctx context.Context) error {
	s.propsLock.Lock()
	count := len(s.props)
	s.propsLock.Unlock()
	if count == 0 {
		return ErrNoProperties
	}

	token := s.Queue.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	sub := s.Queue.Sub(InboundTopic(s.Creds.DeviceID), s.enqueue)
	defer sub.Close()
	defer s.detachThing()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.inbox:
			if s.isShadowTopic(msg.topic) {
				s.ApplyLastValues(msg.payload)
			} else {
				s.Dispatch(msg.payload)
			}
		}
	}
}

// Close implements Session.
func (s *MQTTSession) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.Queue.Close()
}

func (s *MQTTSession) enqueue(topic string, payload []byte) {
	select {
	case s.inbox <- inbound{topic: topic, payload: payload}:
	case <-s.done:
	}
}

// Dispatch applies a SenML pack of property writes, calling the
// write callback of each updated property. A thing_id record attaches
// the session to that thing.
func (s *MQTTSession) Dispatch(payload []byte) {
	recs, err := DecodeRecords(payload)
	if err != nil {
		glog.Warningf("bad property payload: %v", err)
		return
	}
	for _, rec := range recs {
		name := rec.FullName()
		if name == ThingIDProperty {
			if rec.StrValue != nil {
				s.attachThing(*rec.StrValue)
			}
			continue
		}
		s.propsLock.Lock()
		p := s.props[name]
		if p != nil && rec.BoolValue != nil {
			p.value = *rec.BoolValue
		}
		s.propsLock.Unlock()
		switch {
		case p == nil:
			glog.Warningf("write to unknown property %q ignored", name)
		case rec.BoolValue == nil:
			glog.Warningf("non-boolean write to %q ignored", name)
		default:
			glog.V(1).Infof("property %s=%v", name, *rec.BoolValue)
			if p.onWrite != nil {
				p.onWrite(*rec.BoolValue)
			}
			s.report(BoolRecord(name, *rec.BoolValue))
		}
	}
}

// ApplyLastValues restores property values from the thing shadow.
// Write callbacks are not called: a restored value is state, not a
// command.
func (s *MQTTSession) ApplyLastValues(payload []byte) {
	recs, err := DecodeRecords(payload)
	if err != nil {
		glog.Warningf("bad last values payload: %v", err)
		return
	}
	s.propsLock.Lock()
	defer s.propsLock.Unlock()
	for _, rec := range recs {
		if p := s.props[rec.FullName()]; p != nil && rec.BoolValue != nil {
			p.value = *rec.BoolValue
			glog.V(1).Infof("property %s restored to %v", rec.FullName(), p.value)
		}
	}
}

func (s *MQTTSession) attachThing(thingID string) {
	s.propsLock.Lock()
	if thingID == s.thingID {
		s.propsLock.Unlock()
		return
	}
	s.propsLock.Unlock()
	s.detachThing()
	if thingID == "" {
		return
	}
	glog.Infof("attached to thing %s", thingID)
	subs := []*mqtt.Subscription{
		s.Queue.Sub(ThingInboundTopic(thingID), s.enqueue),
		s.Queue.Sub(ShadowInboundTopic(thingID), s.enqueue),
	}
	s.propsLock.Lock()
	s.thingID, s.thingSubs = thingID, subs
	s.propsLock.Unlock()
	s.publish(ShadowOutboundTopic(thingID), LastValuesRequest())
	s.reportAll()
}

func (s *MQTTSession) detachThing() {
	s.propsLock.Lock()
	subs := s.thingSubs
	s.thingID, s.thingSubs = "", nil
	s.propsLock.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

func (s *MQTTSession) isShadowTopic(topic string) bool {
	s.propsLock.Lock()
	defer s.propsLock.Unlock()
	return s.thingID != "" && topic == ShadowInboundTopic(s.thingID)
}

func (s *MQTTSession) outboundTopic() string {
	s.propsLock.Lock()
	defer s.propsLock.Unlock()
	if s.thingID != "" {
		return ThingOutboundTopic(s.thingID)
	}
	return OutboundTopic(s.Creds.DeviceID)
}

func (s *MQTTSession) reportAll() {
	var recs []Record
	s.propsLock.Lock()
	for name, p := range s.props {
		recs = append(recs, BoolRecord(name, p.value))
	}
	s.propsLock.Unlock()
	if len(recs) > 0 {
		s.report(recs...)
	}
}

func (s *MQTTSession) report(recs ...Record) {
	s.publish(s.outboundTopic(), recs...)
}

func (s *MQTTSession) publish(topic string, recs ...Record) {
	payload, err := EncodeRecords(recs...)
	if err != nil {
		glog.Errorf("encode records: %v", err)
		return
	}
	token := s.Queue.Pub(topic, payload)
	go func() {
		if token.Wait(); token.Error() != nil {
			glog.Warningf("publish %s: %v", topic, token.Error())
		}
	}()
}
