package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const progressBarWidth = 40

// ProgressReporter is implemented by anything the benchmark loop can
// feed completion counts to.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	Finish()
}

// barReporter draws an in-place text progress bar with a running
// requests-per-second figure.
type barReporter struct {
	mu      sync.Mutex
	w       io.Writer
	total   int64
	current int64
	began   time.Time
}

// NewProgressReporter returns a bar reporter writing to w, or to stdout
// when w is nil.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stdout
	}
	return &barReporter{w: w}
}

func (b *barReporter) Start(total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total = total
	b.current = 0
	b.began = time.Now()
	b.draw()
}

func (b *barReporter) Update(current int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = current
	b.draw()
}

func (b *barReporter) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.total
	b.draw()
	fmt.Fprintln(b.w)
}

func (b *barReporter) draw() {
	if b.total <= 0 {
		return
	}
	frac := float64(b.current) / float64(b.total)
	if frac > 1 {
		frac = 1
	}
	filled := int(progressBarWidth * frac)
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", progressBarWidth-filled)
	rate := float64(b.current) / time.Since(b.began).Seconds()
	fmt.Fprintf(b.w, "\r[%s] %5.1f%% (%d/%d) %.1f req/s", bar, frac*100, b.current, b.total, rate)
}
