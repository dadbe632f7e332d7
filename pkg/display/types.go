// Package display drives the status LCD and renders door feedback.
package display

import (
	"errors"
	"sync"
)

// Color is an RGB565 color.
type Color uint16

// Predefined colors.
const (
	Black Color = 0x0000
	White Color = 0xffff
)

// Display is the status screen.
type Display interface {
	// SleepMode puts the display into (true) or out of (false) low-power mode.
	SleepMode(on bool) error
	// Fill paints the whole screen.
	Fill(c Color) error
	// Text paints a single line of text with its top-left corner at x, y.
	Text(s string, x, y int, fg, bg Color) error
}

// ErrOutOfRange indicates drawing outside of the screen.
var ErrOutOfRange = errors.New("out of screen range")

// Locked serializes access to a Display shared by several tasks.
type Locked struct {
	Display Display

	lock sync.Mutex
}

// NewLocked wraps d.
func NewLocked(d Display) *Locked {
	return &Locked{Display: d}
}

// SleepMode implements Display.
func (l *Locked) SleepMode(on bool) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.Display.SleepMode(on)
}

// Fill implements Display.
func (l *Locked) Fill(c Color) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.Display.Fill(c)
}

// Text implements Display.
func (l *Locked) Text(s string, x, y int, fg, bg Color) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.Display.Text(s, x, y, fg, bg)
}

// Do runs fn with exclusive access to the display, so a sequence of
// drawing calls is not interleaved with other tasks.
func (l *Locked) Do(fn func(Display) error) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	return fn(l.Display)
}

// ShowStatus wakes the display and shows a single status line
// on a black background.
func ShowStatus(d Display, text string, x, y int) error {
	if l, ok := d.(*Locked); ok {
		return l.Do(func(d Display) error {
			return showStatus(d, text, x, y)
		})
	}
	return showStatus(d, text, x, y)
}

func showStatus(d Display, text string, x, y int) error {
	if err := d.SleepMode(false); err != nil {
		return err
	}
	if err := d.Fill(Black); err != nil {
		return err
	}
	return d.Text(text, x, y, White, Black)
}
