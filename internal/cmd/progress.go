package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

// progressReporter turns dzip.Options.OnProgress callbacks into either a progress bar or throttled log lines.
type progressReporter struct {
	bar       *progressbar.ProgressBar
	logger    *log.Logger
	sometimes *rate.Sometimes
}

// newProgressBar renders file counts to stderr.
func newProgressBar(total int, description string) *progressReporter {
	return &progressReporter{
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(10),
			progressbar.OptionThrottle(1*time.Second),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionShowIts(),
			progressbar.OptionOnCompletion(func() {
				_, _ = fmt.Fprint(os.Stderr, "\n")
			}),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetRenderBlankState(true)),
	}
}

// newProgressLogger logs at most one line per interval.
func newProgressLogger(logger *log.Logger, interval time.Duration) *progressReporter {
	return &progressReporter{
		logger:    logger,
		sometimes: &rate.Sometimes{First: 1, Interval: interval},
	}
}

// report can be passed as dzip.Options.OnProgress.
func (r *progressReporter) report(remaining, total int) {
	if r.bar != nil {
		_ = r.bar.Set(total - remaining)
		return
	}

	r.sometimes.Do(func() {
		r.logger.Printf("compressed %s/%s files", humanize.Comma(int64(total-remaining)), humanize.Comma(int64(total)))
	})
}

// finish completes the bar if there is one.
func (r *progressReporter) finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}
