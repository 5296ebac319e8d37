package progress

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

const updateInterval = 50 * time.Millisecond

// barResolution is the fixed step count of the determinate bar;
// fractional progress maps onto it via SetFraction.
const barResolution = 1000

// Bar wraps progressbar with enabled/disabled handling.
// All methods are no-ops when disabled.
type Bar struct {
	bar *progressbar.ProgressBar
}

// New creates a progress bar driven by fractional progress in [0,1].
// If enabled=false, returns a Bar where all methods are no-ops.
func New(enabled bool) *Bar {
	if !enabled {
		return &Bar{}
	}

	opts := []progressbar.Option{
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(updateInterval),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
	}
	return &Bar{bar: progressbar.NewOptions(barResolution, opts...)}
}

// SetFraction moves the bar to p, clamped to [0,1].
func (b *Bar) SetFraction(p float64) {
	if b.bar == nil {
		return
	}
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}
	_ = b.bar.Set(int(p * barResolution))
}

// Describe updates the progress bar description.
func (b *Bar) Describe(s fmt.Stringer) {
	if b.bar != nil {
		b.bar.Describe(s.String())
	}
}

// Finish completes the progress bar and prints a final message.
func (b *Bar) Finish(s fmt.Stringer) {
	if b.bar != nil {
		_ = b.bar.Finish()
		fmt.Fprintln(os.Stderr, "✔ "+s.String())
	}
}
