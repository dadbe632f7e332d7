// Package config builds the door controller from flags, environment,
// the secrets file and the board file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/garagedoor/pkg/cloud"
	"github.com/robotalks/garagedoor/pkg/cloud/mqtt"
	"github.com/robotalks/garagedoor/pkg/config/secrets"
	"github.com/robotalks/garagedoor/pkg/display"
	"github.com/robotalks/garagedoor/pkg/door"
	"github.com/robotalks/garagedoor/pkg/garage"
	"github.com/robotalks/garagedoor/pkg/network"
)

// Peripheral drivers.
const (
	DriverGC9A01  = "gc9a01"
	DriverConsole = "console"
	DriverGPIO    = "gpio"
	DriverLog     = "log"
	DriverNMCLI   = "nmcli"
	DriverSim     = "sim"
)

// ErrNoSecretKey is returned when no secret key is configured.
var ErrNoSecretKey = errors.New("secret key is required")

// Timings are the durations of the controller tasks.
type Timings struct {
	Attempts        int
	PollInterval    time.Duration
	MonitorInterval time.Duration
	ConnectedHold   time.Duration
	PulseWidth      time.Duration
	BlinkCount      int
	BlinkHalfPeriod time.Duration
	BootFlash       time.Duration
}

// Config defines the configurations of the door controller.
type Config struct {
	// BrokerURL is the cloud broker, e.g. mqtts://host:port/topic-prefix.
	BrokerURL   string
	SecretsFile string
	BoardFile   string
	// Secrets set here take precedence over the secrets file.
	Secrets secrets.Secrets

	DisplayDriver   string
	PinDriver       string
	WiFiDriver      string
	WiFiInterface   string
	SimConnectAfter int

	Timings Timings
}

var defaultConfig = Config{
	BrokerURL:       "mqtts://iot.arduino.cc:8884",
	DisplayDriver:   DriverGC9A01,
	PinDriver:       DriverGPIO,
	WiFiDriver:      DriverNMCLI,
	SimConnectAfter: 2,
	Timings: Timings{
		Attempts:        network.DefaultAttempts,
		PollInterval:    network.DefaultPollInterval,
		MonitorInterval: network.DefaultMonitorInterval,
		ConnectedHold:   network.DefaultConnectedHold,
		PulseWidth:      door.DefaultPulseWidth,
		BlinkCount:      display.DefaultBlinkCount,
		BlinkHalfPeriod: display.DefaultBlinkHalfPeriod,
		BootFlash:       garage.DefaultBootFlash,
	},
}

func init() {
	if val := os.Getenv("GARAGE_MQTT_URL"); val != "" {
		defaultConfig.BrokerURL = val
	}
	if val := os.Getenv("GARAGE_SECRETS"); val != "" {
		defaultConfig.SecretsFile = val
	}
	if val := os.Getenv("GARAGE_BOARD"); val != "" {
		defaultConfig.BoardFile = val
	}
	if val := os.Getenv("GARAGE_DEVICE_ID"); val != "" {
		defaultConfig.Secrets.DeviceID = val
	}
	if val := os.Getenv("GARAGE_SECRET_KEY"); val != "" {
		defaultConfig.Secrets.SecretKey = val
	}
	if val := os.Getenv("GARAGE_WIFI_SSID"); val != "" {
		defaultConfig.Secrets.WiFiSSID = val
	}
	if val := os.Getenv("GARAGE_WIFI_PASSWORD"); val != "" {
		defaultConfig.Secrets.WiFiPassword = val
	}
	if val := os.Getenv("GARAGE_SIM_CONNECT_AFTER"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			defaultConfig.SimConnectAfter = n
		}
	}
}

// SetupClientFlags sets up the flags needed to reach a device.
func SetupClientFlags() {
	flag.StringVar(&defaultConfig.BrokerURL, "broker", defaultConfig.BrokerURL, "Cloud broker URL.")
	flag.StringVar(&defaultConfig.SecretsFile, "secrets", defaultConfig.SecretsFile, "Secrets file (dotenv).")
	flag.StringVar(&defaultConfig.Secrets.DeviceID, "device-id", defaultConfig.Secrets.DeviceID, "Device ID.")
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	SetupClientFlags()
	flag.StringVar(&defaultConfig.BoardFile, "board", defaultConfig.BoardFile, "Board wiring file (YAML).")
	flag.StringVar(&defaultConfig.Secrets.WiFiSSID, "wifi-ssid", defaultConfig.Secrets.WiFiSSID, "WiFi network name.")
	flag.StringVar(&defaultConfig.DisplayDriver, "display", defaultConfig.DisplayDriver, "Display driver: gc9a01, console.")
	flag.StringVar(&defaultConfig.PinDriver, "pin", defaultConfig.PinDriver, "Trigger pin driver: gpio, log.")
	flag.StringVar(&defaultConfig.WiFiDriver, "wifi", defaultConfig.WiFiDriver, "WiFi driver: nmcli, sim.")
	flag.StringVar(&defaultConfig.WiFiInterface, "wifi-iface", defaultConfig.WiFiInterface, "WiFi interface.")
	flag.IntVar(&defaultConfig.SimConnectAfter, "sim-connect-after", defaultConfig.SimConnectAfter, "Polls before the simulated WiFi connects, -1 never.")
	flag.DurationVar(&defaultConfig.Timings.PulseWidth, "pulse", defaultConfig.Timings.PulseWidth, "Door button press duration.")
	flag.DurationVar(&defaultConfig.Timings.PollInterval, "wifi-poll", defaultConfig.Timings.PollInterval, "WiFi association poll interval.")
	flag.DurationVar(&defaultConfig.Timings.MonitorInterval, "wifi-monitor", defaultConfig.Timings.MonitorInterval, "WiFi monitor interval.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// MergedSecrets merges the secrets file into the configured secrets.
func (c *Config) MergedSecrets() (*secrets.Secrets, error) {
	fileSecrets, err := secrets.Load(c.SecretsFile)
	if err != nil {
		return nil, err
	}
	s := c.Secrets
	return s.Merge(fileSecrets), nil
}

// LoadSecrets returns the device secrets, falling back to the machine ID
// for the device ID.
func (c *Config) LoadSecrets() (*secrets.Secrets, error) {
	s, err := c.MergedSecrets()
	if err != nil {
		return nil, err
	}
	if s.DeviceID == "" {
		if s.DeviceID, err = machineid.ID(); err != nil {
			return nil, fmt.Errorf("device id: %w", err)
		}
	}
	if s.SecretKey == "" {
		return nil, ErrNoSecretKey
	}
	return s, nil
}

// NewDaemon creates the door controller using current config.
func (c *Config) NewDaemon() (*garage.Daemon, error) {
	s, err := c.LoadSecrets()
	if err != nil {
		return nil, err
	}
	board, err := LoadBoard(c.BoardFile)
	if err != nil {
		return nil, err
	}
	if _, _, err = mqtt.ClientOptionsFromURL(c.BrokerURL); err != nil {
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}

	var closers []io.Closer
	fail := func(err error) (*garage.Daemon, error) {
		for _, closer := range closers {
			closer.Close()
		}
		return nil, err
	}

	var disp display.Display
	switch c.DisplayDriver {
	case DriverGC9A01:
		lcd, err := display.OpenGC9A01(board.Display.GC9A01Config())
		if err != nil {
			return fail(err)
		}
		closers = append(closers, lcd)
		disp = lcd
	case DriverConsole:
		disp = &display.Console{}
	default:
		return fail(fmt.Errorf("unknown display driver: %q", c.DisplayDriver))
	}

	var pin door.Pin
	switch c.PinDriver {
	case DriverGPIO:
		line, err := door.OpenLinePin(board.Trigger.Chip, board.Trigger.Offset)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, line)
		pin = line
	case DriverLog:
		pin = &door.LogPin{Name: "trigger"}
	default:
		return fail(fmt.Errorf("unknown pin driver: %q", c.PinDriver))
	}

	var station network.Station
	switch c.WiFiDriver {
	case DriverNMCLI:
		station = network.NewNMStation(c.WiFiInterface)
	case DriverSim:
		station = network.NewSimStation(c.SimConnectAfter)
	default:
		return fail(fmt.Errorf("unknown wifi driver: %q", c.WiFiDriver))
	}

	creds := cloud.Credentials{DeviceID: s.DeviceID, SecretKey: s.SecretKey}
	d := garage.New(disp, pin, station, cloud.MQTTSessionFactory(c.BrokerURL), creds)
	d.Closers = closers
	d.Network.SSID, d.Network.Password = s.WiFiSSID, s.WiFiPassword
	c.Timings.apply(d)
	glog.Infof("device %s, broker %s", s.DeviceID, c.BrokerURL)
	return d, nil
}

// MustNewDaemon creates the door controller and fails on error.
func (c *Config) MustNewDaemon() *garage.Daemon {
	d, err := c.NewDaemon()
	if err != nil {
		log.Fatalln(err)
	}
	return d
}

func (t Timings) apply(d *garage.Daemon) {
	d.BootFlash = t.BootFlash
	d.Network.Attempts = t.Attempts
	d.Network.PollInterval = t.PollInterval
	d.Network.MonitorInterval = t.MonitorInterval
	d.Network.ConnectedHold = t.ConnectedHold
	d.Actuator.PulseWidth = t.PulseWidth
	d.Updater.BlinkCount = t.BlinkCount
	d.Updater.BlinkHalfPeriod = t.BlinkHalfPeriod
}
