package slots

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingKey is returned when FetchSlots is called without a date.
var ErrMissingKey = errors.New("start date not set")

// UpstreamFetchError wraps every failure of an upstream fetch, including
// a browser that could not be started and fetches that timed out.
type UpstreamFetchError struct {
	DateKey string
	Err     error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("fetch slots for %s: %s", e.DateKey, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

// BrowserInitError is returned when the browser session could not be started.
type BrowserInitError struct {
	Err error
}

func (e *BrowserInitError) Error() string {
	return fmt.Sprintf("start browser: %s", e.Err)
}

func (e *BrowserInitError) Unwrap() error {
	return e.Err
}

// UpstreamTimeoutError is returned when a single upstream fetch ran longer
// than the configured fetch timeout.
type UpstreamTimeoutError struct {
	After time.Duration
	Err   error
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("upstream did not respond within %s", e.After)
}

func (e *UpstreamTimeoutError) Unwrap() error {
	return e.Err
}

// CoalescedError is the failure of a fetch that the caller did not start
// but waited on.
type CoalescedError struct {
	Err error
}

func (e *CoalescedError) Error() string {
	return e.Err.Error()
}

func (e *CoalescedError) Unwrap() error {
	return e.Err
}

// errClosed is returned once the coordinator has been shut down.
var errClosed = errors.New("coordinator is shut down")

// Details returns the most specific message of err for showing to clients.
func Details(err error) string {
	var coalesced *CoalescedError
	if errors.As(err, &coalesced) {
		err = coalesced.Err
	}
	var upstream *UpstreamFetchError
	if errors.As(err, &upstream) {
		err = upstream.Err
	}
	return err.Error()
}
