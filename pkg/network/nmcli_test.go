package network

import (
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeNMCLI struct {
	lock    sync.Mutex
	devices string
	err     error
	calls   []string
}

func (f *fakeNMCLI) run(args ...string) ([]byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls = append(f.calls, strings.Join(args, " "))
	if f.err != nil {
		return nil, f.err
	}
	if len(args) > 0 && args[0] == "-t" {
		return []byte(f.devices), nil
	}
	return nil, nil
}

func (f *fakeNMCLI) Calls() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestNMStation(iface string, f *fakeNMCLI) *NMStation {
	s := NewNMStation(iface)
	s.run = f.run
	return s
}

func TestWiFiDevice(t *testing.T) {
	testCases := []struct {
		out    string
		device string
	}{
		{"lo:loopback\neth0:ethernet\nwlan0:wifi\np2p-dev-wlan0:wifi-p2p\n", "wlan0"},
		{"wlp2s0:wifi\nwlan1:wifi\n", "wlp2s0"},
		{"lo:loopback\neth0:ethernet\n", ""},
		{"", ""},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.device, wifiDevice([]byte(tc.out)), tc.out)
	}
}

func TestNMStationDiscoversDevice(t *testing.T) {
	f := &fakeNMCLI{devices: "lo:loopback\nwlan0:wifi\n"}
	s := newTestNMStation("", f)
	require.Equal(t, "wlan0", s.Device())
	require.Equal(t, "wlan0", s.Device())
	require.Equal(t, []string{"-t -f DEVICE,TYPE device"}, f.Calls())

	require.NoError(t, s.Connect("home", "pass"))
	require.Eventually(t, func() bool { return len(f.Calls()) == 2 }, time.Second, time.Millisecond)
	require.Equal(t, "device wifi connect home password pass ifname wlan0", f.Calls()[1])
}

func TestNMStationWithoutWiFiDevice(t *testing.T) {
	f := &fakeNMCLI{err: errors.New("nmcli not found")}
	s := newTestNMStation("", f)
	require.False(t, s.IsConnected())
	require.Empty(t, s.Addr())

	// retried once nmcli answers.
	f.lock.Lock()
	f.err, f.devices = nil, "wlan0:wifi\n"
	f.lock.Unlock()
	require.Equal(t, "wlan0", s.Device())
}

func TestNMStationExplicitInterface(t *testing.T) {
	f := &fakeNMCLI{}
	s := newTestNMStation("wlan1", f)
	require.Equal(t, "wlan1", s.Device())
	require.NoError(t, s.Active(true))
	require.Equal(t, []string{"radio wifi on"}, f.Calls())
}

func TestInterfaceAddr(t *testing.T) {
	ifaces, err := net.Interfaces()
	require.NoError(t, err)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 && iface.Flags&net.FlagUp != 0 {
			addr := interfaceAddr(iface.Name)
			if addr != "" {
				require.True(t, net.ParseIP(addr).IsLoopback())
			}
		}
	}
	require.Empty(t, interfaceAddr(""))
	require.Empty(t, interfaceAddr("no-such-iface0"))
}
