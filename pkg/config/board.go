package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/garagedoor/pkg/display"
)

// Board describes how the peripherals are wired.
type Board struct {
	Trigger Line          `yaml:"trigger"`
	Display DisplayWiring `yaml:"display"`
}

// Line is a GPIO line on a character device.
type Line struct {
	Chip   string `yaml:"chip"`
	Offset int    `yaml:"offset"`
}

// DisplayWiring is the SPI port and pins of the LCD.
type DisplayWiring struct {
	Port      string `yaml:"port"`
	SpeedHz   int64  `yaml:"speed_hz"`
	DC        string `yaml:"dc"`
	CS        string `yaml:"cs"`
	Backlight string `yaml:"backlight"`
	Rotation  int    `yaml:"rotation"`
}

// DefaultBoard is the reference wiring.
var DefaultBoard = Board{
	Trigger: Line{Chip: "gpiochip0", Offset: 8},
	Display: DisplayWiring{
		SpeedHz:   60000000,
		DC:        "GPIO2",
		CS:        "GPIO10",
		Backlight: "GPIO3",
	},
}

// LoadBoard reads a board file. Settings absent from the file keep
// their DefaultBoard values. An empty path returns DefaultBoard.
func LoadBoard(path string) (*Board, error) {
	b := DefaultBoard
	if path == "" {
		return &b, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read board %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse board %q: %w", path, err)
	}
	if b.Display.SpeedHz <= 0 {
		return nil, fmt.Errorf("board %q: invalid SPI speed %d", path, b.Display.SpeedHz)
	}
	return &b, nil
}

// GC9A01Config converts the display wiring for the LCD driver.
func (w DisplayWiring) GC9A01Config() display.GC9A01Config {
	return display.GC9A01Config{
		Port:      w.Port,
		Speed:     physic.Frequency(w.SpeedHz) * physic.Hertz,
		DC:        w.DC,
		CS:        w.CS,
		Backlight: w.Backlight,
		Rotation:  w.Rotation,
	}
}
