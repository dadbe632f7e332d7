package network

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/garagedoor/pkg/display"
	fx "github.com/robotalks/garagedoor/pkg/framework"
)

// State is the station connection state.
type State int

// States
const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Status messages.
const (
	ConnectingText = "Connecting to Network"
	ConnectedText  = "Connected"
)

// Defaults
const (
	DefaultAttempts        = 10
	DefaultPollInterval    = 5 * time.Second
	DefaultMonitorInterval = 60 * time.Second
	DefaultConnectedHold   = 5 * time.Second
)

// Manager keeps the station associated and sets Ready each time
// a connection is established.
type Manager struct {
	Station  Station
	Display  display.Display
	Ready    *fx.Event
	SSID     string
	Password string

	// Attempts is the number of association polls per connect request.
	Attempts int
	// PollInterval is the pause after each failed poll.
	PollInterval time.Duration
	// MonitorInterval is the pause between checks while connected.
	MonitorInterval time.Duration
	// ConnectedHold is how long "Connected" stays on screen.
	ConnectedHold time.Duration

	state     State
	stateLock sync.RWMutex
}

// NewManager creates a Manager with defaults.
func NewManager(st Station, d display.Display, ready *fx.Event) *Manager {
	return &Manager{
		Station:         st,
		Display:         d,
		Ready:           ready,
		Attempts:        DefaultAttempts,
		PollInterval:    DefaultPollInterval,
		MonitorInterval: DefaultMonitorInterval,
		ConnectedHold:   DefaultConnectedHold,
	}
}

// Name implements Named.
func (m *Manager) Name() string {
	return "network"
}

// State returns the current state.
func (m *Manager) State() State {
	m.stateLock.RLock()
	defer m.stateLock.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.stateLock.Lock()
	changed := m.state != s
	m.state = s
	m.stateLock.Unlock()
	if changed {
		glog.V(1).Infof("network %s", s)
	}
}

// Run implements Runnable. It only returns when ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	for {
		var err error
		if m.State() == Connected {
			err = m.monitor(ctx)
		} else {
			err = m.connect(ctx)
		}
		if err != nil {
			return err
		}
	}
}

func (m *Manager) connect(ctx context.Context) error {
	m.setState(Connecting)
	m.show(ConnectingText, 50, 100)
	glog.Info("Connecting to network...")
	if err := m.Station.Active(true); err != nil {
		glog.Warningf("activate station: %v", err)
	}
	if err := m.Station.Connect(m.SSID, m.Password); err != nil {
		glog.Warningf("connect %q: %v", m.SSID, err)
	}

	connected := false
	for i := 0; i < m.Attempts; i++ {
		if connected = m.Station.IsConnected(); connected {
			break
		}
		if err := fx.Sleep(ctx, m.PollInterval); err != nil {
			return err
		}
	}
	if !connected {
		return nil
	}

	m.show(ConnectedText, 100, 100)
	glog.Infof("Network Config: %s", m.Station.Addr())
	if err := fx.Sleep(ctx, m.ConnectedHold); err != nil {
		return err
	}
	if err := m.Display.SleepMode(true); err != nil {
		glog.Warningf("display error: %v", err)
	}
	m.setState(Connected)
	m.Ready.Set()
	return nil
}

func (m *Manager) monitor(ctx context.Context) error {
	if err := fx.Sleep(ctx, m.MonitorInterval); err != nil {
		return err
	}
	if !m.Station.IsConnected() {
		glog.Warning("network connection lost")
		m.Ready.Clear()
		m.setState(Disconnected)
	}
	return nil
}

func (m *Manager) show(text string, x, y int) {
	if err := display.ShowStatus(m.Display, text, x, y); err != nil {
		glog.Warningf("display error: %v", err)
	}
}
