package cloud

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/garagedoor/pkg/framework"
)

// Property defaults.
const (
	DefaultProperty = "garage"
	DefaultInitial  = true
)

// Manager starts a cloud session each time the network becomes ready.
// At most one session is alive: the previous one is closed before a new
// one is created.
type Manager struct {
	Ready    *fx.Event
	Factory  SessionFactory
	Creds    Credentials
	Property string
	Initial  bool
	OnWrite  WriteFunc

	lock     sync.Mutex
	session  Session
	sessions int
}

// NewManager creates a Manager for the default property.
func NewManager(ready *fx.Event, factory SessionFactory, creds Credentials, onWrite WriteFunc) *Manager {
	return &Manager{
		Ready:    ready,
		Factory:  factory,
		Creds:    creds,
		Property: DefaultProperty,
		Initial:  DefaultInitial,
		OnWrite:  onWrite,
	}
}

// Name implements Named.
func (m *Manager) Name() string {
	return "cloud"
}

// Sessions returns the number of sessions created so far.
func (m *Manager) Sessions() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.sessions
}

// Run implements Runnable. A session failure ends Run with the error,
// a session returning normally is followed by waiting for the network again.
func (m *Manager) Run(ctx context.Context) error {
	defer m.closeSession()
	for {
		if err := m.Ready.Wait(ctx); err != nil {
			return err
		}
		m.Ready.Clear()

		s, err := m.newSession()
		if err != nil {
			return err
		}
		glog.Infof("cloud session %d started for %s", m.Sessions(), m.Creds.DeviceID)
		err = s.Run(ctx)
		if err == nil {
			glog.Warning("cloud session ended")
			continue
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		return fmt.Errorf("cloud session: %w", err)
	}
}

func (m *Manager) newSession() (Session, error) {
	m.closeSession()
	s, err := m.Factory(m.Creds)
	if err != nil {
		return nil, fmt.Errorf("create cloud session: %w", err)
	}
	m.lock.Lock()
	m.session = s
	m.sessions++
	m.lock.Unlock()
	if err = s.Register(m.Property, m.Initial, m.OnWrite); err != nil {
		return nil, fmt.Errorf("register %q: %w", m.Property, err)
	}
	return s, nil
}

func (m *Manager) closeSession() {
	m.lock.Lock()
	s := m.session
	m.session = nil
	m.lock.Unlock()
	if s != nil {
		if err := s.Close(); err != nil {
			glog.Warningf("close cloud session: %v", err)
		}
	}
}
