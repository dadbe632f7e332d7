package display

import (
	"github.com/golang/glog"
)

// Console is a Display printing to the log, for running without a screen.
type Console struct {
	asleep bool
}

// SleepMode implements Display.
func (c *Console) SleepMode(on bool) error {
	if c.asleep != on {
		c.asleep = on
		glog.V(1).Infof("LCD sleep=%v", on)
	}
	return nil
}

// Fill implements Display.
func (c *Console) Fill(color Color) error {
	glog.V(1).Infof("LCD fill %04x", uint16(color))
	return nil
}

// Text implements Display.
func (c *Console) Text(s string, x, y int, fg, bg Color) error {
	glog.Infof("LCD [%d,%d] %s", x, y, s)
	return nil
}
