package scraper

import (
	"context"
	"time"
)

const (
	// ResponseBufferSelector is the hidden element holding the latest server response.
	ResponseBufferSelector = "textarea#ResponseXML"
	RequestURLSelector     = "p#RequestURL"

	bufferPollInterval = 100 * time.Millisecond
)

// Read returns the current response buffer text.
func (s *Session) Read(ctx context.Context) (string, error) {
	return s.Browser.Value(ctx, ResponseBufferSelector)
}

// RequestURL returns the request URL the SPA shows for the last call.
func (s *Session) RequestURL(ctx context.Context) (string, error) {
	return s.Browser.Value(ctx, RequestURLSelector)
}

// AwaitChange blocks until the buffer is non-empty and differs from previous.
// A zero timeout means the session's response timeout.
func (s *Session) AwaitChange(ctx context.Context, previous string, timeout time.Duration) (string, error) {
	return s.awaitBuffer(ctx, timeout, "response buffer change", func(value string) bool {
		return value != "" && value != previous
	})
}

func (s *Session) awaitBuffer(ctx context.Context, timeout time.Duration, what string, fresh func(string) bool) (string, error) {
	if timeout <= 0 {
		timeout = s.Options.responseTimeout()
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(bufferPollInterval)
	defer ticker.Stop()
	for {
		value, err := s.Read(waitCtx)
		if err == nil && fresh(value) {
			return value, nil
		}
		if err != nil && waitCtx.Err() == nil {
			return "", err
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", TimeoutError{What: what, Timeout: timeout}
		case <-ticker.C:
		}
	}
}

// materialize writes a captured network response into the buffer. This is
// the only write to the buffer: the SPA does not reflect detail responses
// there on its own. Nothing else may call it.
func (s *Session) materialize(ctx context.Context, body string) error {
	if err := s.Browser.SetValue(ctx, ResponseBufferSelector, body); err != nil {
		return NavigationError{Step: "materialize detail response", Err: err}
	}
	return nil
}
