package main

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"hcnn/internal/pipeline"
)

type barProgress struct {
	w io.Writer
}

func newBarProgress(w io.Writer) pipeline.Progress {
	return barProgress{w: w}
}

func (p barProgress) Start(label string, total int) pipeline.Tracker {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return barTracker{bar: bar}
}

type barTracker struct {
	bar *progressbar.ProgressBar
}

func (t barTracker) Set(done int) { _ = t.bar.Set(done) }

func (t barTracker) Finish() { _ = t.bar.Finish() }
