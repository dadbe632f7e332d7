// Package network keeps the device associated with the WiFi access point.
package network

import "sync"

// Station is a WiFi interface in station mode.
type Station interface {
	// Active powers the interface up or down.
	Active(on bool) error
	// Connect starts associating with the access point. It doesn't wait
	// for the association to complete.
	Connect(ssid, password string) error
	// IsConnected reports whether the station is associated and has an address.
	IsConnected() bool
	// Addr returns the assigned IPv4 address.
	Addr() string
}

// SimStation is an in-memory Station for running without WiFi hardware.
type SimStation struct {
	// ConnectAfter is the number of IsConnected polls after Connect
	// before the association succeeds, negative for never.
	ConnectAfter int
	// Address is reported by Addr once connected.
	Address string

	lock      sync.Mutex
	active    bool
	connected bool
	pending   bool
	polls     int
	connects  int
	ssid      string
}

// NewSimStation creates a SimStation which connects after n polls.
func NewSimStation(n int) *SimStation {
	return &SimStation{ConnectAfter: n, Address: "192.168.4.2"}
}

// Active implements Station.
func (s *SimStation) Active(on bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.active = on
	if !on {
		s.connected, s.pending = false, false
	}
	return nil
}

// Connect implements Station.
func (s *SimStation) Connect(ssid, password string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.connects++
	s.ssid = ssid
	s.polls = 0
	s.pending = s.active && s.ConnectAfter >= 0
	return nil
}

// IsConnected implements Station.
func (s *SimStation) IsConnected() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.connected {
		return true
	}
	if s.pending && s.polls >= s.ConnectAfter {
		s.connected, s.pending = true, false
	}
	s.polls++
	return s.connected
}

// Addr implements Station.
func (s *SimStation) Addr() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.connected {
		return ""
	}
	return s.Address
}

// SetConnectAfter changes ConnectAfter for the following Connect calls.
func (s *SimStation) SetConnectAfter(n int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ConnectAfter = n
}

// Drop simulates losing the association.
func (s *SimStation) Drop() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.connected, s.pending = false, false
}

// Polls returns the number of IsConnected calls since the last Connect.
func (s *SimStation) Polls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.polls
}

// Connects returns the number of Connect calls.
func (s *SimStation) Connects() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.connects
}

// SSID returns the SSID of the last Connect.
func (s *SimStation) SSID() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.ssid
}
