package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrSessionClosed = errors.New("session already released")

// NavigationError means a required control never became ready.
type NavigationError struct {
	Step string
	Err  error
}

func (err NavigationError) Error() string {
	if err.Err == nil {
		return fmt.Sprintf("navigation failed at %v", err.Step)
	}
	return fmt.Sprintf("navigation failed at %v: %v", err.Step, err.Err)
}

func (err NavigationError) Unwrap() error {
	return err.Err
}

// NavigationExhaustedError is raised when the pager loop runs out of iterations.
// Recover by resetting the session, never by retrying in place.
type NavigationExhaustedError struct {
	Target     int
	LastSeen   int
	Iterations int
}

func (err NavigationExhaustedError) Error() string {
	return fmt.Sprintf("could not reach page %v after %v iterations (last seen page %v)", err.Target, err.Iterations, err.LastSeen)
}

type RecordNotFoundError struct {
	RecordID string
	Page     int
}

func (err RecordNotFoundError) Error() string {
	return fmt.Sprintf("record %v not found in list buffer of page %v", err.RecordID, err.Page)
}

type TabTimeoutError struct {
	Tab     TabKind
	Timeout time.Duration
}

func (err TabTimeoutError) Error() string {
	return fmt.Sprintf("tab %v did not update the response buffer within %v", err.Tab, err.Timeout)
}

// TimeoutError is returned by the buffer waits.
type TimeoutError struct {
	What    string
	Timeout time.Duration
}

func (err TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for %v", err.Timeout, err.What)
}

type SessionError struct {
	Op  string
	Err error
}

func (err SessionError) Error() string {
	return fmt.Sprintf("session %v: %v", err.Op, err.Err)
}

func (err SessionError) Unwrap() error {
	return err.Err
}

type InvalidPageError struct {
	Target     int
	TotalPages int
}

func (err InvalidPageError) Error() string {
	if err.TotalPages > 0 {
		return fmt.Sprintf("page %v is out of range 1..%v", err.Target, err.TotalPages)
	}
	return fmt.Sprintf("page %v is not a valid page number", err.Target)
}

// ResetError aborts an export after too many consecutive failed session resets.
type ResetError struct {
	Attempts int
	Err      error
}

func (err ResetError) Error() string {
	return fmt.Sprintf("giving up after %v consecutive session resets failed: %v", err.Attempts, err.Err)
}

func (err ResetError) Unwrap() error {
	return err.Err
}

// IsRetryable reports whether err is recoverable by resetting the session
// and navigating again. A ResetError never is.
func IsRetryable(err error) bool {
	var reset ResetError
	if err == nil || errors.As(err, &reset) {
		return false
	}
	var (
		nav       NavigationError
		exhausted NavigationExhaustedError
		notFound  RecordNotFoundError
		timeout   TimeoutError
		tab       TabTimeoutError
	)
	switch {
	case errors.As(err, &nav),
		errors.As(err, &exhausted),
		errors.As(err, &notFound),
		errors.As(err, &timeout),
		errors.As(err, &tab):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}
