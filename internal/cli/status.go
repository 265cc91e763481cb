// Package cli provides terminal status output for the storefront command:
// a spinner shown while a request is in flight and coloured result lines.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Printer writes status lines. Colour and animation are enabled only when
// the writer is a terminal.
type Printer struct {
	w        io.Writer
	colorize bool
}

// NewPrinter creates a printer for w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, colorize: isTerminal(w)}
}

// Success prints a ✓ line.
func (p *Printer) Success(format string, args ...interface{}) {
	p.line(ColorGreen, "✓", fmt.Sprintf(format, args...))
}

// Failure prints a ✗ line.
func (p *Printer) Failure(format string, args ...interface{}) {
	p.line(ColorRed, "✗", fmt.Sprintf(format, args...))
}

// Warning prints a ⚠ line.
func (p *Printer) Warning(format string, args ...interface{}) {
	p.line(ColorYellow, "⚠", fmt.Sprintf(format, args...))
}

func (p *Printer) line(color, mark, msg string) {
	if p.colorize {
		mark = color + mark + ColorReset
	}
	fmt.Fprintf(p.w, "%s %s\n", mark, msg)
}

// Spin runs fn while showing a spinner labelled msg. The spinner line is
// cleared before Spin returns.
func (p *Printer) Spin(msg string, fn func() error) error {
	if !p.colorize {
		return fn()
	}
	s := &spinner{w: p.w, msg: msg, done: make(chan struct{})}
	s.start()
	defer s.stop()
	return fn()
}

type spinner struct {
	w    io.Writer
	msg  string
	done chan struct{}
	wg   sync.WaitGroup
}

func (s *spinner) start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(frames) {
			fmt.Fprintf(s.w, "\r%s%s%s %s", ColorCyan, frames[i], ColorReset, s.msg)
			select {
			case <-ticker.C:
			case <-s.done:
				return
			}
		}
	}()
}

func (s *spinner) stop() {
	close(s.done)
	s.wg.Wait()
	fmt.Fprint(s.w, "\r"+strings.Repeat(" ", len(s.msg)+2)+"\r")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
