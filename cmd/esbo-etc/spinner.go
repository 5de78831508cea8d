package main

import (
	"os"
	"sync"
	"time"

	"github.com/theckman/yacspin"

	"github.com/LukasK13/ESBO-ETC/logging"
)

// spinner is a logger showing info messages next to a terminal spinner.
// Other levels go to the wrapped logger while the spinner is paused.
type spinner struct {
	mu   *sync.Mutex
	s    *yacspin.Spinner
	next logging.Logger
}

func newSpinner(next logging.Logger) (*spinner, error) {
	s, err := yacspin.New(yacspin.Config{
		Writer:            os.Stdout,
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopMessage:       "done",
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
		StopFailMessage:   "failed",
	})
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return &spinner{mu: &sync.Mutex{}, s: s, next: next}, nil
}

// Done stops the spinner, marking the run failed if err is not nil
func (sp *spinner) Done(err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if err != nil {
		sp.s.StopFail()
		return
	}
	sp.s.Stop()
}

// paused logs through the wrapped logger with the spinner out of the way
func (sp *spinner) paused(f func()) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.s.Status() != yacspin.SpinnerRunning {
		f()
		return
	}
	sp.s.Pause()
	f()
	sp.s.Unpause()
}

func (sp *spinner) Debug(msg string, fields ...logging.Field) {
	sp.paused(func() { sp.next.Debug(msg, fields...) })
}

func (sp *spinner) Info(msg string, fields ...logging.Field) {
	if len(fields) > 0 {
		sp.paused(func() { sp.next.Info(msg, fields...) })
	}
	sp.s.Message(msg)
}

func (sp *spinner) Warn(msg string, fields ...logging.Field) {
	sp.paused(func() { sp.next.Warn(msg, fields...) })
}

func (sp *spinner) Error(msg string, fields ...logging.Field) {
	sp.paused(func() { sp.next.Error(msg, fields...) })
}

func (sp *spinner) With(fields ...logging.Field) logging.Logger {
	return &spinner{mu: sp.mu, s: sp.s, next: sp.next.With(fields...)}
}
