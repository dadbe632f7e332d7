package display

import (
	"context"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/garagedoor/pkg/framework"
)

// Banner texts.
const (
	OpeningText = "Opening the Garage"
	ClosingText = "Closing the Garage"
)

// Defaults of the blink cycle.
const (
	DefaultBlinkCount      = 10
	DefaultBlinkHalfPeriod = 500 * time.Millisecond
	DefaultBannerX         = 50
	DefaultBannerY         = 100
)

// Updater shows a banner for each door state change and blinks it.
type Updater struct {
	Display         Display
	Requests        *Requests
	BlinkCount      int
	BlinkHalfPeriod time.Duration
	X, Y            int
}

// NewUpdater creates an Updater with defaults.
func NewUpdater(d Display, reqs *Requests) *Updater {
	return &Updater{
		Display:         d,
		Requests:        reqs,
		BlinkCount:      DefaultBlinkCount,
		BlinkHalfPeriod: DefaultBlinkHalfPeriod,
		X:               DefaultBannerX,
		Y:               DefaultBannerY,
	}
}

// BannerText returns the banner for the desired door state.
func BannerText(open bool) string {
	if open {
		return OpeningText
	}
	return ClosingText
}

// Name implements Named.
func (u *Updater) Name() string {
	return "display"
}

// Run implements Runnable.
func (u *Updater) Run(ctx context.Context) error {
	for {
		open, err := u.Requests.Wait(ctx)
		if err != nil {
			return err
		}
		if err = u.Show(ctx, open); err != nil {
			return err
		}
	}
}

// Show renders the banner for one request and runs the blink cycle.
// Only cancellation of ctx is returned as an error, drawing failures
// are logged.
func (u *Updater) Show(ctx context.Context, open bool) error {
	text := BannerText(open)
	glog.Infof("display: %s", text)
	logErr(ShowStatus(u.Display, text, u.X, u.Y))
	for i := 0; i < u.BlinkCount; i++ {
		logErr(u.Display.SleepMode(false))
		if err := fx.Sleep(ctx, u.BlinkHalfPeriod); err != nil {
			return err
		}
		logErr(u.Display.SleepMode(true))
		if err := fx.Sleep(ctx, u.BlinkHalfPeriod); err != nil {
			return err
		}
	}
	logErr(u.Display.Fill(Black))
	logErr(u.Display.SleepMode(true))
	return nil
}

func logErr(err error) {
	if err != nil {
		glog.Warningf("display error: %v", err)
	}
}
