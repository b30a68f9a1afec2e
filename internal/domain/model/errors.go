package model

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionUnavailable is returned when no rendering session could be created.
	ErrSessionUnavailable = errors.New("rendering session unavailable")

	// ErrRenderFailure is returned when capturing frames failed.
	ErrRenderFailure = errors.New("render failed")

	// ErrEncodeFailure is returned when assembling the video failed.
	ErrEncodeFailure = errors.New("encode failed")

	// ErrWaitTimeout is returned when a request gave up waiting on an in-flight job.
	ErrWaitTimeout = errors.New("timed out waiting for render job")
)

// Stage names used in StageError.
const (
	StageSession = "session"
	StageCapture = "capture"
	StageEncode  = "encode"
	StageStore   = "store"
	StageWait    = "wait"
)

// StageError records which pipeline stage failed for which key.
type StageError struct {
	Stage string
	Key   CacheKey
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Stage, e.Kind, e.Key, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Detail returns the underlying message without stage and key prefixes.
func (e *StageError) Detail() string {
	return e.Err.Error()
}
