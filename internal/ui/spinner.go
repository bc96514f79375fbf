package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner is a blocking-free line spinner for relay and peer waits.
type Spinner struct {
	mu       sync.Mutex
	message  string
	spinner  spinner.Spinner
	done     chan struct{}
	finished chan struct{}
	started  bool
	stopped  bool
}

// NewSpinner creates a spinner with the given frames, for example
// spinner.Dot or spinner.Globe.
func NewSpinner(frames spinner.Spinner, message string) *Spinner {
	return &Spinner{
		message:  message,
		spinner:  frames,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (s *Spinner) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.finished)
		ticker := time.NewTicker(s.spinner.FPS)
		defer ticker.Stop()

		frames := s.spinner.Frames
		for i := 0; ; i++ {
			s.mu.Lock()
			fmt.Fprintf(Out, "\r%s %s", SpinnerStyle.Render(frames[i%len(frames)]), s.message)
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the spinner and clears its line. Safe to call repeatedly.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.done)
	started := s.started
	s.mu.Unlock()

	if !started {
		return
	}
	<-s.finished
	fmt.Fprint(Out, "\r\033[K")
}

func (s *Spinner) Success(message string) {
	s.Stop()
	PrintSuccess(message)
}

func (s *Spinner) Error(message string) {
	s.Stop()
	PrintError(message)
}

// RunConnectionSpinner starts a spinner for relay dials and returns a stop function
func RunConnectionSpinner(message string) func() {
	sp := NewSpinner(spinner.Globe, message)
	sp.Start()
	return sp.Stop
}

// RunWaitingSpinner starts a spinner for peer waits and returns a stop function
func RunWaitingSpinner(message string) func() {
	sp := NewSpinner(spinner.Points, message)
	sp.Start()
	return sp.Stop
}
