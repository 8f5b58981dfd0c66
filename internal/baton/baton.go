// Package baton renders a single-line progress indicator for the
// conversion pipeline's driver stages. Only one stage ever runs at a
// time, so this is a single rate-limited renderer written synchronously
// from the calling goroutine rather than a background channel feeding
// several concurrent named bars.
package baton

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"golang.org/x/term"
)

// Baton renders "tag N/M (P%) elapsed @ rate/s" to a stream, rate-limited so a
// tight revision loop does not spend its time repainting a status line.
type Baton struct {
	enabled    bool
	stream     io.Writer
	start      time.Time
	lastUpdate time.Time
	lastCount  uint64
	tag        string
	expected   uint64
}

const refreshInterval = 250 * time.Millisecond

// New builds a Baton. When disabled is true (--no-progress, or stdout
// is not a terminal) rendering is a no-op.
func New(disabled bool) *Baton {
	interactive := !disabled && term.IsTerminal(int(os.Stdout.Fd()))
	return &Baton{enabled: interactive, stream: os.Stdout}
}

// StartProgress begins a new named progress run of `expected` units.
func (b *Baton) StartProgress(tag string, expected uint64) {
	if !b.enabled {
		return
	}
	b.tag = tag
	b.expected = expected
	b.start = time.Now()
	b.lastUpdate = b.start
	b.lastCount = 0
}

// Update reports progress toward the expected total, redrawing the
// status line no more often than refreshInterval unless the run just
// completed.
func (b *Baton) Update(count uint64) {
	if !b.enabled {
		return
	}
	now := time.Now()
	if now.Sub(b.lastUpdate) < refreshInterval && count != b.expected {
		return
	}
	elapsed := now.Sub(b.start)
	rate := float64(count) / math.Max(elapsed.Seconds(), 0.001)
	fmt.Fprintf(b.stream, "\r\033[K%s %s/%s (%.1f%%) %s @ %s/s",
		b.tag, scale(float64(count)), scale(float64(b.expected)),
		100*float64(count)/math.Max(float64(b.expected), 1),
		elapsed.Round(time.Second), scale(rate))
	b.lastUpdate = now
	b.lastCount = count
}

// EndProgress finishes the current run, leaving a newline behind so
// subsequent log output does not overwrite the final status line.
func (b *Baton) EndProgress() {
	if !b.enabled {
		return
	}
	b.Update(b.expected)
	fmt.Fprintln(b.stream)
}

func scale(n float64) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%.0f", n)
	case n < 1e6:
		return fmt.Sprintf("%.2fK", n/1e3)
	case n < 1e9:
		return fmt.Sprintf("%.2fM", n/1e6)
	default:
		return fmt.Sprintf("%.2fG", n/1e9)
	}
}
