package ingest

import (
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

type ProgressReporter interface {
	Start(total int, desc string)
	Increment()
	Finish()
}

type barProgress struct {
	bar *progressbar.ProgressBar
}

// NewProgress returns a terminal progress bar, or nil (no reporting) when
// disabled.
func NewProgress(enabled bool) ProgressReporter {
	if !enabled {
		return nil
	}
	return &barProgress{}
}

func (p *barProgress) Start(total int, desc string) {
	if total <= 0 {
		return
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (p *barProgress) Increment() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Add(1)
}

func (p *barProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}

func DefaultProgressEnabled() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// StartSpinner shows an indeterminate spinner until the returned stop
// function is called.
func StartSpinner(enabled bool, desc string) func() {
	if !enabled {
		return func() {}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(9),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(10),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = bar.Add(1)
			case <-done:
				_ = bar.Finish()
				return
			}
		}
	}()
	return func() { close(done) }
}
