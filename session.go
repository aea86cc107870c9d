package scraper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BrowserOptions holds browser launch and wait options.
type BrowserOptions struct {
	Headless        bool
	ExecPath        string        // chrome binary, empty for autodetect
	UserDataDir     string        // profile directory, empty for a throwaway profile
	NoSandbox       bool          // required in most containers
	ResponseTimeout time.Duration // per-wait budget for SPA round trips
}

func (options BrowserOptions) responseTimeout() time.Duration {
	if options.ResponseTimeout <= 0 {
		return DefaultResponseTimeout
	}
	return options.ResponseTimeout
}

// Launcher opens a fresh, isolated browser.
type Launcher func(ctx context.Context, options BrowserOptions) (Browser, error)

// Session is one browsing context driving the SPA. A session is not safe
// for concurrent use: the SPA has a single response buffer.
type Session struct {
	Browser Browser
	Options BrowserOptions
	Log     zerolog.Logger

	mu       sync.Mutex
	released bool

	// last buffer confirmed to be a list payload, and its page
	listBuffer string
	listPage   int
}

// NewSession wraps an already running browser.
func NewSession(b Browser, options BrowserOptions, log zerolog.Logger) *Session {
	return &Session{
		Browser: b,
		Options: options,
		Log:     log,
	}
}

// Acquire launches a browser. Failure is fatal to the caller; there are no retries here.
func Acquire(ctx context.Context, launch Launcher, options BrowserOptions, log zerolog.Logger) (*Session, error) {
	b, err := launch(ctx, options)
	if err != nil {
		return nil, SessionError{Op: "acquire", Err: err}
	}
	log.Debug().Bool("headless", options.Headless).Msg("session acquired")
	return NewSession(b, options, log), nil
}

// Release closes the browser. It is safe to call more than once and never fails.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	if err := s.Browser.Close(); err != nil && !errors.Is(err, ErrSessionClosed) {
		s.Log.Debug().Err(err).Msg("release: close failed")
	}
	s.Log.Debug().Msg("session released")
}

func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// WithSession runs fn inside an acquire/release pair. Release happens on
// every exit path, including panics.
func WithSession(ctx context.Context, launch Launcher, options BrowserOptions, log zerolog.Logger, fn func(s *Session) error) error {
	s, err := Acquire(ctx, launch, options, log)
	if err != nil {
		return err
	}
	defer s.Release()
	return fn(s)
}

func (s *Session) rememberList(buffer string, page int) {
	s.listBuffer = buffer
	s.listPage = page
}

// ListSnapshot returns the last buffer confirmed as a list page.
func (s *Session) ListSnapshot() (buffer string, page int) {
	return s.listBuffer, s.listPage
}
