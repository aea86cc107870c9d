// Package progress provides sinks for export progress events.
package progress

import (
	"sync"

	"github.com/rs/zerolog"
)

// Event is one progress report.
type Event struct {
	Fraction    float64
	Description string
	Status      string // set only on the final event
}

// ConsoleSink logs progress, skipping reports that move less than Step.
type ConsoleSink struct {
	Log  zerolog.Logger
	Step float64

	mu   sync.Mutex
	last float64
}

func NewConsoleSink(log zerolog.Logger) *ConsoleSink {
	return &ConsoleSink{Log: log, Step: 0.01, last: -1}
}

func (s *ConsoleSink) Progress(fraction float64, desc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fraction < 1 && s.last >= 0 && fraction-s.last < s.Step {
		return
	}
	s.last = fraction
	s.Log.Info().Str("progress", percent(fraction)).Msg(desc)
}

func (s *ConsoleSink) Status(msg string) {
	s.Log.Info().Msg(msg)
}

// Recorder keeps every event, for tests and for callers that render progress themselves.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Progress(fraction float64, desc string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Fraction: fraction, Description: desc})
}

func (r *Recorder) Status(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Fraction: 1, Status: msg})
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Multi fans events out to several sinks.
type Multi []interface {
	Progress(fraction float64, desc string)
	Status(msg string)
}

func (m Multi) Progress(fraction float64, desc string) {
	for _, s := range m {
		s.Progress(fraction, desc)
	}
}

func (m Multi) Status(msg string) {
	for _, s := range m {
		s.Status(msg)
	}
}
