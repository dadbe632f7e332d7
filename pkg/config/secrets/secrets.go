// Package secrets loads device credentials from a dotenv file.
package secrets

import (
	"fmt"

	"github.com/joho/godotenv"
)

// Keys in the secrets file.
const (
	KeyDeviceID     = "DEVICE_ID"
	KeySecretKey    = "SECRET_KEY"
	KeyWiFiSSID     = "WIFI_SSID"
	KeyWiFiPassword = "WIFI_PASSWORD"
)

// Secrets are the private settings of a device.
type Secrets struct {
	DeviceID     string
	SecretKey    string
	WiFiSSID     string
	WiFiPassword string
}

// Load reads secrets from path. An empty path yields empty Secrets.
func Load(path string) (*Secrets, error) {
	s := &Secrets{}
	if path == "" {
		return s, nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets %q: %w", path, err)
	}
	s.DeviceID = vals[KeyDeviceID]
	s.SecretKey = vals[KeySecretKey]
	s.WiFiSSID = vals[KeyWiFiSSID]
	s.WiFiPassword = vals[KeyWiFiPassword]
	return s, nil
}

// Merge fills the empty fields of s from other.
func (s *Secrets) Merge(other *Secrets) *Secrets {
	if s.DeviceID == "" {
		s.DeviceID = other.DeviceID
	}
	if s.SecretKey == "" {
		s.SecretKey = other.SecretKey
	}
	if s.WiFiSSID == "" {
		s.WiFiSSID = other.WiFiSSID
	}
	if s.WiFiPassword == "" {
		s.WiFiPassword = other.WiFiPassword
	}
	return s
}
