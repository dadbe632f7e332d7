package display

import (
	"fmt"
	"image"
	"io"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// GC9A01 commands.
const (
	cmdSWRESET = 0x01
	cmdSLPIN   = 0x10
	cmdSLPOUT  = 0x11
	cmdNORON   = 0x13
	cmdINVON   = 0x21
	cmdDISPON  = 0x29
	cmdCASET   = 0x2a
	cmdRASET   = 0x2b
	cmdRAMWR   = 0x2c
	cmdMADCTL  = 0x36
	cmdCOLMOD  = 0x3a
	cmdIREN1   = 0xfe
	cmdIREN2   = 0xef
)

// GC9A01 geometry.
const (
	GC9A01Width  = 240
	GC9A01Height = 240
)

// maxTx is the largest single SPI transfer, spidev defaults to 4096.
const maxTx = 4096

var madctlByRotation = [4]byte{0x48, 0x28, 0x88, 0xe8}

// OutPin is a digital output.
type OutPin interface {
	Out(l gpio.Level) error
}

// GC9A01Config describes how the LCD is wired.
type GC9A01Config struct {
	// Port is the SPI port name, empty for the first one.
	Port      string
	Speed     physic.Frequency
	DC        string
	CS        string
	Backlight string
	Rotation  int
}

// GC9A01 drives a round 240x240 GC9A01 LCD over SPI.
type GC9A01 struct {
	conn      spi.Conn
	dc        OutPin
	cs        OutPin
	backlight OutPin
	closer    io.Closer
}

// OpenGC9A01 opens the SPI port and pins and initializes the LCD.
func OpenGC9A01(conf GC9A01Config) (*GC9A01, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	port, err := spireg.Open(conf.Port)
	if err != nil {
		return nil, fmt.Errorf("open SPI port %q: %w", conf.Port, err)
	}
	c, err := port.Connect(conf.Speed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect SPI port %q: %w", conf.Port, err)
	}
	pins := make([]OutPin, 3)
	for n, name := range []string{conf.DC, conf.CS, conf.Backlight} {
		if name == "" {
			continue
		}
		p := gpioreg.ByName(name)
		if p == nil {
			port.Close()
			return nil, fmt.Errorf("unknown pin %q", name)
		}
		pins[n] = p
	}
	if pins[0] == nil {
		port.Close()
		return nil, fmt.Errorf("DC pin is required")
	}
	d, err := NewGC9A01(c, pins[0], pins[1], pins[2], conf.Rotation)
	if err != nil {
		port.Close()
		return nil, err
	}
	d.closer = port
	return d, nil
}

// NewGC9A01 initializes the LCD on an established SPI connection.
// cs and backlight are optional.
func NewGC9A01(c spi.Conn, dc, cs, backlight OutPin, rotation int) (*GC9A01, error) {
	if rotation < 0 || rotation >= len(madctlByRotation) {
		return nil, fmt.Errorf("invalid rotation %d", rotation)
	}
	d := &GC9A01{conn: c, dc: dc, cs: cs, backlight: backlight}
	steps := []struct {
		cmd   byte
		data  []byte
		delay time.Duration
	}{
		{cmd: cmdSWRESET, delay: 150 * time.Millisecond},
		{cmd: cmdIREN2},
		{cmd: cmdIREN1},
		{cmd: cmdIREN2},
		{cmd: cmdCOLMOD, data: []byte{0x05}},
		{cmd: cmdMADCTL, data: []byte{madctlByRotation[rotation]}},
		{cmd: cmdINVON},
		{cmd: cmdSLPOUT, delay: 120 * time.Millisecond},
		{cmd: cmdNORON},
		{cmd: cmdDISPON, delay: 20 * time.Millisecond},
	}
	for _, s := range steps {
		if err := d.command(s.cmd, s.data...); err != nil {
			return nil, fmt.Errorf("init LCD: %w", err)
		}
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
	}
	if err := d.setBacklight(true); err != nil {
		return nil, err
	}
	return d, nil
}

// Close releases the SPI port.
func (d *GC9A01) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// SleepMode implements Display.
func (d *GC9A01) SleepMode(on bool) error {
	if on {
		if err := d.command(cmdSLPIN); err != nil {
			return err
		}
		return d.setBacklight(false)
	}
	if err := d.command(cmdSLPOUT); err != nil {
		return err
	}
	return d.setBacklight(true)
}

// Fill implements Display.
func (d *GC9A01) Fill(c Color) error {
	return d.fillRect(0, 0, GC9A01Width, GC9A01Height, c)
}

// Text implements Display. Text is rendered with a 7x13 bitmap font
// and clipped at the right edge of the screen.
func (d *GC9A01) Text(s string, x, y int, fg, bg Color) error {
	face := basicfont.Face7x13
	w, h := len(s)*face.Width, face.Height
	if x < 0 || y < 0 || x >= GC9A01Width || y+h > GC9A01Height {
		return ErrOutOfRange
	}
	if x+w > GC9A01Width {
		w = GC9A01Width - x
	}
	if w <= 0 || len(s) == 0 {
		return nil
	}
	mask := image.NewGray(image.Rect(0, 0, len(s)*face.Width, h))
	drawer := font.Drawer{
		Dst:  mask,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	drawer.DrawString(s)

	pixels := make([]byte, 0, w*h*2)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			c := bg
			if mask.GrayAt(col, row).Y >= 0x80 {
				c = fg
			}
			pixels = append(pixels, byte(c>>8), byte(c))
		}
	}
	return d.blit(x, y, w, h, pixels)
}

func (d *GC9A01) fillRect(x, y, w, h int, c Color) error {
	if err := d.window(x, y, w, h); err != nil {
		return err
	}
	chunk := make([]byte, maxTx)
	for i := 0; i < len(chunk); i += 2 {
		chunk[i], chunk[i+1] = byte(c>>8), byte(c)
	}
	remains := w * h * 2
	for remains > 0 {
		n := remains
		if n > len(chunk) {
			n = len(chunk)
		}
		if err := d.data(chunk[:n]); err != nil {
			return err
		}
		remains -= n
	}
	return nil
}

func (d *GC9A01) blit(x, y, w, h int, pixels []byte) error {
	if err := d.window(x, y, w, h); err != nil {
		return err
	}
	for len(pixels) > 0 {
		n := len(pixels)
		if n > maxTx {
			n = maxTx
		}
		if err := d.data(pixels[:n]); err != nil {
			return err
		}
		pixels = pixels[n:]
	}
	return nil
}

func (d *GC9A01) window(x, y, w, h int) error {
	x1, y1 := x+w-1, y+h-1
	if err := d.command(cmdCASET, byte(x>>8), byte(x), byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	if err := d.command(cmdRASET, byte(y>>8), byte(y), byte(y1>>8), byte(y1)); err != nil {
		return err
	}
	return d.command(cmdRAMWR)
}

func (d *GC9A01) command(cmd byte, data ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := d.tx([]byte{cmd}); err != nil {
		return err
	}
	if len(data) > 0 {
		return d.data(data)
	}
	return nil
}

func (d *GC9A01) data(p []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	return d.tx(p)
}

func (d *GC9A01) tx(p []byte) error {
	if d.cs != nil {
		if err := d.cs.Out(gpio.Low); err != nil {
			return err
		}
		defer d.cs.Out(gpio.High)
	}
	return d.conn.Tx(p, nil)
}

func (d *GC9A01) setBacklight(on bool) error {
	if d.backlight == nil {
		return nil
	}
	return d.backlight.Out(gpio.Level(on))
}
