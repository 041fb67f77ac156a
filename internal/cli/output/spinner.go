package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner displays a progress animation.
type Spinner struct {
	w       io.Writer
	message string
	frames  []string
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewSpinner creates a new spinner.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		w:       w,
		message: message,
		frames:  []string{"|", "/", "-", "\\"},
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	go func() {
		defer close(s.stopped)
		tick := time.NewTicker(100 * time.Millisecond)
		defer tick.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(s.w, "\r%s %s", s.frames[i%len(s.frames)], s.message)
			select {
			case <-s.done:
				return
			case <-tick.C:
			}
		}
	}()
}

// Stop stops the spinner and prints a final line; an empty message just
// clears the line.
func (s *Spinner) Stop(message string) {
	s.once.Do(func() {
		close(s.done)
		<-s.stopped
		if message == "" {
			fmt.Fprint(s.w, "\r\033[K")
			return
		}
		fmt.Fprintf(s.w, "\r\033[K%s\n", message)
	})
}
