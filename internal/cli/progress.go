package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/shopper-spectrum/internal/service"
)

// ProgressReporter draws one progress bar per pipeline stage. Stages may report from
// different goroutines.
type ProgressReporter struct {
	writer io.Writer
	bars   map[string]*progressbar.ProgressBar
	mu     sync.Mutex
}

var _ service.Reporter = (*ProgressReporter)(nil)

// NewProgressReporter creates a reporter writing to w.
func NewProgressReporter(w io.Writer) *ProgressReporter {
	return &ProgressReporter{writer: w, bars: make(map[string]*progressbar.ProgressBar)}
}

// Stage starts a bar for name. A negative total draws a spinner.
func (r *ProgressReporter) Stage(name string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bars[name]; ok {
		return
	}

	r.bars[name] = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan][bold]%s...[reset]", name)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(r.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// Progress moves the bar for name to done.
func (r *ProgressReporter) Progress(name string, done int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bar, ok := r.bars[name]
	if !ok {
		return
	}
	if err := bar.Set(done); err != nil {
		slog.Warn("Failed to update progress bar", "stage", name, "error", err)
	}
}

// Done completes the bar for name.
func (r *ProgressReporter) Done(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bar, ok := r.bars[name]
	if !ok {
		return
	}
	if err := bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "stage", name, "error", err)
	}
}
