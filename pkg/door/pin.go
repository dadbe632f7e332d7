// Package door pulses the garage door wall-button line.
package door

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/warthog618/go-gpiocdev"
)

// Pin is the trigger output. The line is active low: high is idle
// and low presses the button.
type Pin interface {
	Set(high bool) error
}

// LinePin is an open-drain GPIO line on a Linux GPIO character device.
type LinePin struct {
	line *gpiocdev.Line
}

// OpenLinePin requests the line as an open-drain output, initially high.
func OpenLinePin(chip string, offset int) (*LinePin, error) {
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(1),
		gpiocdev.AsOpenDrain,
		gpiocdev.WithConsumer("garagedoor"))
	if err != nil {
		return nil, fmt.Errorf("request line %s:%d: %w", chip, offset, err)
	}
	return &LinePin{line: line}, nil
}

// Set implements Pin.
func (p *LinePin) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	return p.line.SetValue(v)
}

// Close releases the line.
func (p *LinePin) Close() error {
	return p.line.Close()
}

// LogPin is a Pin printing to the log, for running without hardware.
type LogPin struct {
	Name string
}

// Set implements Pin.
func (p *LogPin) Set(high bool) error {
	level := "low"
	if high {
		level = "high"
	}
	glog.Infof("pin %s %s", p.Name, level)
	return nil
}
