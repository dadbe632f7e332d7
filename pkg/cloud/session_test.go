package cloud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/garagedoor/pkg/cloud/mqtt"
	"github.com/robotalks/garagedoor/pkg/cloud/mqtt/mqtttest"
)

var testCreds = Credentials{DeviceID: "dev-1", SecretKey: "key"}

func newTestSession() (*MQTTSession, *mqtttest.Client) {
	client := mqtttest.NewClient()
	return NewMQTTSessionWithQueue(&mqtt.Queue{Client: client}, testCreds), client
}

func mustEncode(t *testing.T, recs ...Record) []byte {
	data, err := EncodeRecords(recs...)
	require.NoError(t, err)
	return data
}

func TestSessionDispatchWrites(t *testing.T) {
	s, client := newTestSession()
	var writes []bool
	require.NoError(t, s.Register("garage", true, func(v bool) { writes = append(writes, v) }))

	s.Dispatch(mustEncode(t, BoolRecord("garage", false)))
	s.Dispatch(mustEncode(t, BoolRecord("garage", false)))
	require.Equal(t, []bool{false, false}, writes)
	v, ok := s.Value("garage")
	require.True(t, ok)
	require.False(t, v)

	pubs := client.Published()
	require.Len(t, pubs, 2)
	require.Equal(t, OutboundTopic("dev-1"), pubs[0].Topic)
	recs, err := DecodeRecords(pubs[0].Payload)
	require.NoError(t, err)
	require.Equal(t, []Record{BoolRecord("garage", false)}, recs)
}

func TestSessionDispatchIgnoresBadWrites(t *testing.T) {
	s, client := newTestSession()
	called := 0
	require.NoError(t, s.Register("garage", true, func(bool) { called++ }))

	num := 1.0
	s.Dispatch([]byte{0xff, 0x00})
	s.Dispatch(mustEncode(t, BoolRecord("porch", false)))
	s.Dispatch(mustEncode(t, Record{Name: "garage", Value: &num}))
	require.Zero(t, called)
	require.Empty(t, client.Published())
	v, _ := s.Value("garage")
	require.True(t, v)
}

func TestSessionRegister(t *testing.T) {
	s, _ := newTestSession()
	require.ErrorIs(t, s.Register("", true, nil), ErrInvalidProperty)
	require.NoError(t, s.Register("garage", true, nil))
	require.ErrorIs(t, s.Register("garage", false, nil), ErrDuplicateProperty)
}

func TestSessionRun(t *testing.T) {
	s, client := newTestSession()
	writeCh := make(chan bool, 1)
	require.NoError(t, s.Register("garage", true, func(v bool) { writeCh <- v }))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return client.Subscribed(InboundTopic("dev-1")) }, time.Second, time.Millisecond)

	require.Equal(t, 1, client.Deliver(InboundTopic("dev-1"), mustEncode(t, BoolRecord("garage", false))))
	select {
	case v := <-writeCh:
		require.False(t, v)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("write callback not called")
	}

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("session did not stop")
	}
	require.False(t, client.Subscribed(InboundTopic("dev-1")))
	require.NoError(t, s.Close())
	require.False(t, client.IsConnected())
}

func TestSessionRunErrors(t *testing.T) {
	s, client := newTestSession()
	require.ErrorIs(t, s.Run(context.Background()), ErrNoProperties)

	errAuth := errors.New("not Authorized")
	client.ConnectErr = errAuth
	require.NoError(t, s.Register("garage", true, nil))
	require.ErrorIs(t, s.Run(context.Background()), errAuth)
}

func TestDecodeRecordsBaseName(t *testing.T) {
	v := true
	recs, err := DecodeRecords(mustEncode(t,
		Record{BaseName: "urn:dev:", Name: "garage", BoolValue: &v},
		Record{Name: "light", BoolValue: &v},
	))
	require.NoError(t, err)
	require.Equal(t, "urn:dev:garage", recs[0].FullName())
	require.Equal(t, "urn:dev:light", recs[1].FullName())

	_, err = DecodeRecords(mustEncode(t))
	require.ErrorIs(t, err, ErrEmptyPack)
}

func stringRecord(name, v string) Record {
	return Record{Name: name, StrValue: &v}
}

func waitPublished(t *testing.T, client *mqtttest.Client, topic string) []Record {
	for {
		pub, ok := client.NextPublished(500 * time.Millisecond)
		require.True(t, ok, "nothing published on %s", topic)
		if pub.Topic == topic {
			recs, err := DecodeRecords(pub.Payload)
			require.NoError(t, err)
			return recs
		}
	}
}

func TestSessionAttachesToThing(t *testing.T) {
	s, client := newTestSession()
	writeCh := make(chan bool, 1)
	require.NoError(t, s.Register("garage", true, func(v bool) { writeCh <- v }))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return client.Subscribed(InboundTopic("dev-1")) }, time.Second, time.Millisecond)

	client.Deliver(InboundTopic("dev-1"), mustEncode(t, stringRecord(ThingIDProperty, "thing-7")))
	require.Eventually(t, func() bool {
		return client.Subscribed(ThingInboundTopic("thing-7")) && client.Subscribed(ShadowInboundTopic("thing-7"))
	}, time.Second, time.Millisecond)
	require.Equal(t, "thing-7", s.ThingID())
	require.Equal(t, []Record{LastValuesRequest()}, waitPublished(t, client, ShadowOutboundTopic("thing-7")))
	require.Equal(t, []Record{BoolRecord("garage", true)}, waitPublished(t, client, ThingOutboundTopic("thing-7")))

	// last values restore state without pressing the button.
	client.Deliver(ShadowInboundTopic("thing-7"), mustEncode(t, BoolRecord("garage", false)))
	require.Eventually(t, func() bool {
		v, _ := s.Value("garage")
		return !v
	}, time.Second, time.Millisecond)
	require.Empty(t, writeCh)

	client.Deliver(ThingInboundTopic("thing-7"), mustEncode(t, BoolRecord("garage", true)))
	select {
	case v := <-writeCh:
		require.True(t, v)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("write callback not called")
	}
	require.Equal(t, []Record{BoolRecord("garage", true)}, waitPublished(t, client, ThingOutboundTopic("thing-7")))

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.False(t, client.Subscribed(ThingInboundTopic("thing-7")))
	require.False(t, client.Subscribed(ShadowInboundTopic("thing-7")))
	require.Empty(t, s.ThingID())
}

func TestSessionThingReassigned(t *testing.T) {
	s, client := newTestSession()
	require.NoError(t, s.Register("garage", true, nil))
	s.Dispatch(mustEncode(t, stringRecord(ThingIDProperty, "thing-1")))
	s.Dispatch(mustEncode(t, stringRecord(ThingIDProperty, "thing-2")))
	require.Equal(t, "thing-2", s.ThingID())
	require.False(t, client.Subscribed(ThingInboundTopic("thing-1")))
	require.True(t, client.Subscribed(ThingInboundTopic("thing-2")))

	s.Dispatch(mustEncode(t, stringRecord(ThingIDProperty, "")))
	require.Empty(t, s.ThingID())
	require.False(t, client.Subscribed(ThingInboundTopic("thing-2")))
}
