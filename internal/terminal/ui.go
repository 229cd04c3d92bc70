package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// Colors for terminal output.
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
)

// UI writes status lines to one destination, with or without colour.
type UI struct {
	w     io.Writer
	color bool
}

// New returns a UI writing to w.
func New(w io.Writer, color bool) *UI {
	return &UI{w: w, color: color}
}

// ForFile returns a UI for f that uses colour only when f is a terminal,
// NO_COLOR is unset and noColor is false.
func ForFile(f *os.File, noColor bool) *UI {
	return New(f, ColorEnabled(f, noColor))
}

// ColorEnabled reports whether ANSI colour should be written to f.
func ColorEnabled(f *os.File, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Paint wraps s in the given codes when colour is on.
func (u *UI) Paint(s string, codes ...string) string {
	if !u.color || len(codes) == 0 {
		return s
	}
	return strings.Join(codes, "") + s + Reset
}

// Success prints a green success message.
func (u *UI) Success(msg string) {
	fmt.Fprintf(u.w, "%s %s\n", u.Paint("✓", Bold, Green), msg)
}

// Error prints a red error message.
func (u *UI) Error(msg string) {
	fmt.Fprintf(u.w, "%s %s\n", u.Paint("✗", Bold, Red), msg)
}

// Info prints a blue info message.
func (u *UI) Info(msg string) {
	fmt.Fprintf(u.w, "%s %s\n", u.Paint("i", Bold, Blue), msg)
}

// Warning prints a yellow warning message.
func (u *UI) Warning(msg string) {
	fmt.Fprintf(u.w, "%s %s\n", u.Paint("!", Bold, Yellow), msg)
}

// Header prints a bold header.
func (u *UI) Header(msg string) {
	fmt.Fprintf(u.w, "\n%s\n", u.Paint(msg, Bold))
}

// Detail prints an indented detail line.
func (u *UI) Detail(label, value string) {
	fmt.Fprintf(u.w, "  %s %s\n", u.Paint(label+":", Dim), value)
}

// Divider prints a horizontal line.
func (u *UI) Divider() {
	fmt.Fprintln(u.w, u.Paint(strings.Repeat("─", 60), Dim))
}

// Spinner provides a terminal spinner for long-running operations.
type Spinner struct {
	ui      *UI
	mu      sync.Mutex
	message string
	running bool
	done    chan struct{}
	stopped chan struct{}
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewSpinner creates a spinner drawing on the UI's writer. Without colour the
// spinner stays silent, since frames would garble redirected output.
func (u *UI) NewSpinner(message string) *Spinner {
	return &Spinner{
		ui:      u,
		message: message,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			if s.ui.color {
				frame := spinnerFrames[i%len(spinnerFrames)]
				fmt.Fprintf(s.ui.w, "\r%s %s", s.ui.Paint(frame, Cyan), msg)
			}
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop stops the spinner and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.done)
	<-s.stopped
	if s.ui.color {
		fmt.Fprintf(s.ui.w, "\r%s\r", strings.Repeat(" ", 80))
	}
}
