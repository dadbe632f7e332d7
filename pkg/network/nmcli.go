package network

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"

	"github.com/golang/glog"
)

// NMStation drives a Linux WiFi interface through NetworkManager's nmcli.
// When Interface is empty the first wifi device reported by nmcli is used.
type NMStation struct {
	Interface string
	// Command is the nmcli executable.
	Command string

	// run executes nmcli and returns its output.
	run func(args ...string) ([]byte, error)

	lock   sync.Mutex
	device string
}

// NewNMStation creates a NMStation for the interface.
func NewNMStation(iface string) *NMStation {
	s := &NMStation{Interface: iface, Command: "nmcli"}
	s.run = func(args ...string) ([]byte, error) {
		return exec.Command(s.Command, args...).CombinedOutput()
	}
	return s
}

// Active implements Station.
func (s *NMStation) Active(on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	if out, err := s.run("radio", "wifi", state); err != nil {
		return fmt.Errorf("nmcli radio wifi %s: %w: %s", state, err, out)
	}
	return nil
}

// Connect implements Station. The association runs in the background,
// progress is observed through IsConnected.
func (s *NMStation) Connect(ssid, password string) error {
	args := []string{"device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	if dev := s.Device(); dev != "" {
		args = append(args, "ifname", dev)
	}
	go func() {
		if out, err := s.run(args...); err != nil {
			glog.Warningf("nmcli connect %q: %v: %s", ssid, err, bytes.TrimSpace(out))
		}
	}()
	return nil
}

// IsConnected implements Station.
func (s *NMStation) IsConnected() bool {
	return s.Addr() != ""
}

// Addr implements Station.
func (s *NMStation) Addr() string {
	dev := s.Device()
	if dev == "" {
		return ""
	}
	return interfaceAddr(dev)
}

// Device returns the interface in use, discovering the wifi device
// through nmcli if Interface is not set.
func (s *NMStation) Device() string {
	if s.Interface != "" {
		return s.Interface
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.device == "" {
		out, err := s.run("-t", "-f", "DEVICE,TYPE", "device")
		if err != nil {
			glog.Warningf("nmcli device: %v", err)
			return ""
		}
		if s.device = wifiDevice(out); s.device != "" {
			glog.Infof("using wifi device %s", s.device)
		}
	}
	return s.device
}

// wifiDevice picks the first wifi device from terse nmcli output
// ("DEVICE:TYPE" per line).
func wifiDevice(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		dev, typ, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if ok && typ == "wifi" && dev != "" {
			return dev
		}
	}
	return ""
}

// interfaceAddr returns the first routable IPv4 address of an up interface.
func interfaceAddr(name string) string {
	iface, err := net.InterfaceByName(name)
	if err != nil || iface.Flags&net.FlagUp == 0 {
		return ""
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLinkLocalUnicast() {
				return ip4.String()
			}
		}
	}
	return ""
}
