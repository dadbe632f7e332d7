package sh

import (
	"errors"
	"testing"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/garagedoor/pkg/cloud"
	"github.com/robotalks/garagedoor/pkg/cloud/mqtt"
	"github.com/robotalks/garagedoor/pkg/cloud/mqtt/mqtttest"
)

func newTestRemote(t *testing.T) (*Remote, *mqtttest.Client) {
	client := mqtttest.NewClient()
	r := NewRemote(&mqtt.Queue{Client: client}, "dev-1")
	require.NoError(t, r.Start())
	return r, client
}

func TestRemoteWrite(t *testing.T) {
	r, client := newTestRemote(t)
	require.NoError(t, r.Write("garage", false))

	pubs := client.Published()
	require.Len(t, pubs, 1)
	require.Equal(t, "/a/d/dev-1/e/i", pubs[0].Topic)
	recs, err := cloud.DecodeRecords(pubs[0].Payload)
	require.NoError(t, err)
	require.Equal(t, []cloud.Record{cloud.BoolRecord("garage", false)}, recs)
}

func TestRemoteTracksReports(t *testing.T) {
	r, client := newTestRemote(t)
	require.True(t, client.Subscribed("/a/d/dev-1/e/o"))
	var watched []bool
	r.Watch(func(name string, value bool) {
		require.Equal(t, "garage", name)
		watched = append(watched, value)
	})

	_, ok := r.Value("garage")
	require.False(t, ok)

	payload, err := cloud.EncodeRecords(cloud.BoolRecord("garage", true))
	require.NoError(t, err)
	require.Equal(t, 1, client.Deliver("/a/d/dev-1/e/o", payload))
	payload, err = cloud.EncodeRecords(cloud.BoolRecord("garage", false))
	require.NoError(t, err)
	client.Deliver("/a/d/dev-1/e/o", payload)
	client.Deliver("/a/d/dev-1/e/o", []byte("junk"))

	v, ok := r.Value("garage")
	require.True(t, ok)
	require.False(t, v)
	require.Equal(t, map[string]bool{"garage": false}, r.Values())
	require.Equal(t, []bool{true, false}, watched)

	require.NoError(t, r.Close())
	require.False(t, client.Subscribed("/a/d/dev-1/e/o"))
}

func TestRemoteIgnoresOtherDevices(t *testing.T) {
	r, client := newTestRemote(t)
	payload, err := cloud.EncodeRecords(cloud.BoolRecord("garage", true))
	require.NoError(t, err)
	require.Zero(t, client.Deliver("/a/d/dev-2/e/o", payload))
	require.Empty(t, r.Values())
}

func TestRemoteWriteError(t *testing.T) {
	client := &failingClient{Client: mqtttest.NewClient()}
	r := NewRemote(&mqtt.Queue{Client: client}, "dev-1")
	require.Error(t, r.Write("garage", true))
}

type failingClient struct {
	*mqtttest.Client
}

func (c *failingClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	return &mqtttest.Token{Err: errors.New("not authorized")}
}
