// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Bar renders training progress as an in-place terminal bar. Unlike an
// increment-driven bar, progress is set from an absolute counter, so
// it can follow a value advanced concurrently by many workers.
type Bar struct {
	mu     sync.Mutex
	out    io.Writer
	width  int
	max    int64
	closed bool
}

// New returns a Bar that is width characters wide and full when the
// tracked counter reaches max
func New(out io.Writer, width int, max int64) (*Bar, error) {
	if width <= 0 {
		return nil, fmt.Errorf("new: width must be positive, got %v",
			width)
	}
	if max <= 0 {
		return nil, fmt.Errorf("new: max must be positive, got %v", max)
	}

	return &Bar{out: out, width: width, max: max}, nil
}

// Set redraws the bar at the given absolute progress, with annotation
// printed after the percentage. Values past max render as full.
func (b *Bar) Set(current int64, annotation string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	fraction := float64(current) / float64(b.max)
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(b.width))

	fmt.Fprintf(b.out, "\r[%v%v] %3.0f%% %v",
		strings.Repeat("=", filled),
		strings.Repeat(" ", b.width-filled),
		fraction*100, annotation)
}

// Close ends the bar's line. Further Set calls are ignored.
func (b *Bar) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	fmt.Fprintln(b.out)
}
