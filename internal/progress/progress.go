// Package progress provides a byte-counting writer used to report how
// far along a long-running transfer, such as an origin export, is.
package progress

import (
	"io"
	"strings"
	"sync/atomic"

	"github.com/originfs/originfs/internal/system"
)

// Progress counts the bytes flowing through an I/O operation against
// an expected total.
type Progress struct {
	// written is the number of bytes written through the tracker so far.
	written uint64
	// total is the expected total size of the transfer in bytes.
	total uint64

	// Writer is the destination writes are forwarded to. When nil the
	// tracker only counts.
	Writer io.Writer
}

// NewProgress returns a new progress tracker for the given total size.
func NewProgress(total uint64) *Progress {
	return &Progress{total: total}
}

// Written returns the total number of bytes written so far.
func (p *Progress) Written() uint64 {
	return atomic.LoadUint64(&p.written)
}

// Total returns the expected total size in bytes.
func (p *Progress) Total() uint64 {
	return atomic.LoadUint64(&p.total)
}

// SetTotal replaces the expected total. Safe to call concurrently, for
// cases where the total is still being calculated while data is
// already moving through the tracker.
func (p *Progress) SetTotal(total uint64) {
	atomic.StoreUint64(&p.total, total)
}

// Write counts len(v) bytes and forwards them to the underlying
// writer, if any.
func (p *Progress) Write(v []byte) (int, error) {
	n := len(v)
	atomic.AddUint64(&p.written, uint64(n))
	if p.Writer != nil {
		return p.Writer.Write(v)
	}
	return n, nil
}

// Progress renders a textual progress bar of the given width.
func (p *Progress) Progress(width int) string {
	current := p.Written()
	total := p.Total()
	widthPercentage := float64(100) / float64(width)
	percentage := float64(current) / float64(total) * 100
	ticks := int(percentage / widthPercentage)

	// A negative or overflowing tick count happens when the total is a
	// rough estimate; clamp it so strings.Repeat doesn't panic.
	if ticks < 0 {
		ticks = 0
	} else if ticks > width {
		ticks = width
	}

	bar := strings.Repeat("=", ticks) + strings.Repeat(" ", width-ticks)
	return "[" + bar + "] " + system.FormatBytes(current) + " / " + system.FormatBytes(total)
}
