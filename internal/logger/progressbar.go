package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ProgressBar renders "prefix[====    ] done/total (p%)". The scanner's total
// grows as the walker discovers files, so both values are set together.
type ProgressBar struct {
	mu      sync.Mutex
	done    int
	total   int
	width   int
	colored bool
	prefix  string
}

// NewProgressBar returns a bar width cells wide (minimum 10 when unset).
func NewProgressBar(total, width int, colored bool) *ProgressBar {
	if width < 1 {
		width = 10
	}
	return &ProgressBar{total: total, width: width, colored: colored}
}

// Set records progress. done may overshoot total while discovery catches up.
func (pb *ProgressBar) Set(done, total int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.done, pb.total = done, total
}

// SetPrefix sets the text drawn before the bar.
func (pb *ProgressBar) SetPrefix(prefix string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.prefix = prefix
}

// percent is clamped to [0, 100]; a zero total reads as 0%.
func (pb *ProgressBar) percent() int {
	if pb.total <= 0 {
		return 0
	}
	return min(max(pb.done*100/pb.total, 0), 100)
}

// Render returns the bar as a single line.
func (pb *ProgressBar) Render() string {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	p := pb.percent()
	filled := p * pb.width / 100
	line := fmt.Sprintf("%s[%s%s] %d/%d (%d%%)", pb.prefix,
		strings.Repeat("=", filled), strings.Repeat(" ", pb.width-filled), pb.done, pb.total, p)
	if !pb.colored {
		return line
	}
	c := color.New(color.FgCyan)
	if p == 100 {
		c = color.New(color.FgGreen)
	}
	c.EnableColor()
	return c.Sprint(line)
}

// Draw rewrites the bar in place on w.
func (pb *ProgressBar) Draw(w io.Writer) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "\r%s", pb.Render())
}

// Counter renders progress when no total is known:
// "scanned 1200 files, 3 errors (2.4s)".
func Counter(label string, seen, errors int, elapsedSeconds float64) string {
	noun := "errors"
	if errors == 1 {
		noun = "error"
	}
	return fmt.Sprintf("%s %d files, %d %s (%.1fs)", label, seen, errors, noun, elapsedSeconds)
}
