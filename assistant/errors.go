package assistant

import "errors"

var (
	// ErrUpstreamUnavailable means the upstream could not be reached or rejected our credential.
	ErrUpstreamUnavailable = errors.New("assistant upstream unavailable")
	// ErrUpstreamRequestFailed means a call against an existing thread failed.
	ErrUpstreamRequestFailed = errors.New("assistant upstream request failed")
	// ErrRunTimedOut means a run did not reach a terminal status before the poll deadline.
	ErrRunTimedOut = errors.New("assistant run timed out")
)
