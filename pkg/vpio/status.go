package vpio

import (
	"errors"
	"fmt"
)

// StatusError wraps the numeric status code returned by a failing platform
// audio call. The first non-success status aborts whatever sequence was in
// progress and is surfaced unchanged; no retries, no partial cleanup beyond
// what the platform itself performs.
type StatusError struct {
	Op     string // platform call that failed, e.g. "AUGraphStart"
	Status int32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d", e.Op, e.Status)
}

// Lifecycle errors. The platform serializes access to the unit handles but
// provides no guard against misuse of the wrapper itself, so the Stream
// keeps its own idle/running state and reports these deterministically.
var (
	// ErrAlreadyRunning is returned by Start/Frames when the stream is
	// already capturing.
	ErrAlreadyRunning = errors.New("vpio: stream already running")

	// ErrNotRunning is returned by Stop when the stream was never started
	// or has already been stopped.
	ErrNotRunning = errors.New("vpio: stream not running")

	// ErrNoRenderer is returned when output rendering is requested without
	// a render callback to supply playback samples.
	ErrNoRenderer = errors.New("vpio: render enabled without a render callback")
)
