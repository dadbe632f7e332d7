package network

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/garagedoor/pkg/display"
	fx "github.com/robotalks/garagedoor/pkg/framework"
)

type textDisplay struct {
	lock   sync.Mutex
	ops    []string
	asleep bool
}

func (d *textDisplay) SleepMode(on bool) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.asleep = on
	d.ops = append(d.ops, fmt.Sprintf("sleep=%v", on))
	return nil
}

func (d *textDisplay) Fill(c display.Color) error {
	return nil
}

func (d *textDisplay) Text(s string, x, y int, fg, bg display.Color) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.ops = append(d.ops, s)
	return nil
}

func (d *textDisplay) Ops() []string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]string(nil), d.ops...)
}

func (d *textDisplay) LastText() string {
	ops := d.Ops()
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i] != "sleep=true" && ops[i] != "sleep=false" {
			return ops[i]
		}
	}
	return ""
}

type managerTestEnv struct {
	t       *testing.T
	station *SimStation
	display *textDisplay
	ready   *fx.Event
	mgr     *Manager
	cancel  func()
	errCh   chan error
}

func newManagerTestEnv(t *testing.T, connectAfter int) *managerTestEnv {
	env := &managerTestEnv{
		t:       t,
		station: NewSimStation(connectAfter),
		display: &textDisplay{},
		ready:   &fx.Event{},
		errCh:   make(chan error, 1),
	}
	env.mgr = NewManager(env.station, env.display, env.ready)
	env.mgr.SSID, env.mgr.Password = "garage-ap", "secret"
	env.mgr.PollInterval = time.Millisecond
	env.mgr.MonitorInterval = 5 * time.Millisecond
	env.mgr.ConnectedHold = 5 * time.Millisecond
	return env
}

func (e *managerTestEnv) start() *managerTestEnv {
	var ctx context.Context
	ctx, e.cancel = context.WithCancel(context.Background())
	go func() { e.errCh <- e.mgr.Run(ctx) }()
	return e
}

func (e *managerTestEnv) stop() {
	e.cancel()
	select {
	case err := <-e.errCh:
		require.ErrorIs(e.t, err, context.Canceled)
	case <-time.After(500 * time.Millisecond):
		e.t.Fatal("manager did not stop")
	}
}

func (e *managerTestEnv) waitReady() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(e.t, e.ready.Wait(ctx), "ready not signaled")
}

func TestManagerNeverConnects(t *testing.T) {
	env := newManagerTestEnv(t, -1).start()
	require.Eventually(t, func() bool { return env.station.Connects() >= 3 }, time.Second, time.Millisecond)
	env.stop()

	require.False(t, env.ready.IsSet())
	require.Equal(t, Connecting, env.mgr.State())
	require.Equal(t, ConnectingText, env.display.LastText())
	require.LessOrEqual(t, env.station.Polls(), DefaultAttempts)
	require.Equal(t, "garage-ap", env.station.SSID())
}

// pollRecorder records, for each connect request, when the station
// was polled.
type pollRecorder struct {
	*SimStation

	lock     sync.Mutex
	attempts [][]time.Time
}

func (r *pollRecorder) Connect(ssid, password string) error {
	r.lock.Lock()
	r.attempts = append(r.attempts, nil)
	r.lock.Unlock()
	return r.SimStation.Connect(ssid, password)
}

func (r *pollRecorder) IsConnected() bool {
	r.lock.Lock()
	if n := len(r.attempts); n > 0 {
		r.attempts[n-1] = append(r.attempts[n-1], time.Now())
	}
	r.lock.Unlock()
	return r.SimStation.IsConnected()
}

func (r *pollRecorder) Attempts() [][]time.Time {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([][]time.Time(nil), r.attempts...)
}

func TestManagerPollsAreBounded(t *testing.T) {
	testCases := []struct {
		name     string
		attempts int
	}{
		{"default", DefaultAttempts},
		{"three", 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newManagerTestEnv(t, -1)
			rec := &pollRecorder{SimStation: env.station}
			env.mgr.Station = rec
			env.mgr.PollInterval = 2 * time.Millisecond
			if tc.attempts != DefaultAttempts {
				env.mgr.Attempts = tc.attempts
			}
			env.start()
			require.Eventually(t, func() bool { return len(rec.Attempts()) >= 3 }, 2*time.Second, time.Millisecond)
			env.stop()

			attempts := rec.Attempts()
			// only the attempts followed by a new connect request are complete.
			for _, polls := range attempts[:len(attempts)-1] {
				require.Len(t, polls, tc.attempts)
				for n := 1; n < len(polls); n++ {
					require.GreaterOrEqual(t, polls[n].Sub(polls[n-1]), env.mgr.PollInterval)
				}
			}
		})
	}
}

func TestManagerConnects(t *testing.T) {
	env := newManagerTestEnv(t, 2)
	env.mgr.MonitorInterval = time.Hour
	env.start()
	env.waitReady()
	require.Equal(t, Connected, env.mgr.State())
	require.Equal(t, 1, env.station.Connects())
	require.Equal(t, 3, env.station.Polls())
	env.stop()

	require.Equal(t, []string{
		"sleep=false", ConnectingText,
		"sleep=false", ConnectedText,
		"sleep=true",
	}, env.display.Ops())
}

func TestManagerAlreadyConnectedAtStart(t *testing.T) {
	env := newManagerTestEnv(t, 0)
	env.mgr.MonitorInterval = time.Hour
	env.start()
	env.waitReady()
	require.Equal(t, 1, env.station.Polls())
	env.stop()
}

func TestManagerReconnectsAfterLoss(t *testing.T) {
	env := newManagerTestEnv(t, 0).start()
	defer env.stop()
	env.waitReady()
	// consume the signal as the cloud session manager does.
	env.ready.Clear()

	env.station.Drop()
	require.Eventually(t, func() bool { return env.station.Connects() == 2 }, time.Second, time.Millisecond)
	env.waitReady()
	require.Equal(t, Connected, env.mgr.State())
}

func TestManagerLossClearsReady(t *testing.T) {
	env := newManagerTestEnv(t, 0)
	env.start()
	env.waitReady()
	// make the reconnect fail so the cleared signal stays cleared.
	env.station.SetConnectAfter(-1)
	env.station.Drop()
	require.Eventually(t, func() bool { return env.station.Connects() == 2 }, time.Second, time.Millisecond)
	require.False(t, env.ready.IsSet())
	env.stop()
}

func TestSimStation(t *testing.T) {
	st := NewSimStation(1)
	require.NoError(t, st.Connect("ap", ""))
	// inactive interface never associates.
	require.False(t, st.IsConnected())
	require.False(t, st.IsConnected())

	require.NoError(t, st.Active(true))
	require.NoError(t, st.Connect("ap", ""))
	require.False(t, st.IsConnected())
	require.True(t, st.IsConnected())
	require.Equal(t, "192.168.4.2", st.Addr())
	st.Drop()
	require.False(t, st.IsConnected())
	require.Empty(t, st.Addr())
}
