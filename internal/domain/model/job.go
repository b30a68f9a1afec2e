package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobState represents the lifecycle of one in-flight render job.
type JobState string

const (
	JobInFlight  JobState = "IN_FLIGHT"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
)

// Valid job transitions: IN_FLIGHT -> SUCCEEDED or IN_FLIGHT -> FAILED.
var validJobTransitions = map[JobState][]JobState{
	JobInFlight:  {JobSucceeded, JobFailed},
	JobSucceeded: {},
	JobFailed:    {},
}

func (s JobState) IsValid() bool {
	switch s {
	case JobInFlight, JobSucceeded, JobFailed:
		return true
	default:
		return false
	}
}

func (s JobState) CanTransitionTo(next JobState) bool {
	for _, allowed := range validJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s JobState) String() string {
	return string(s)
}

// JobSource records where a job's artifact came from.
type JobSource string

const (
	SourceRendered JobSource = "RENDERED"
	SourceShared   JobSource = "SHARED"
	SourceRevived  JobSource = "REVIVED"
)

var ErrInvalidJobTransition = errors.New("invalid job state transition")

// Job describes one execution of the render pipeline for a (key, kind) pair.
type Job struct {
	ID         uuid.UUID
	Key        CacheKey
	Kind       Kind
	State      JobState
	Source     JobSource
	Frames     int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewJob creates a job in the IN_FLIGHT state.
func NewJob(key CacheKey, kind Kind) *Job {
	return &Job{
		ID:        uuid.New(),
		Key:       key,
		Kind:      kind,
		State:     JobInFlight,
		StartedAt: time.Now(),
	}
}

// Succeed marks the job done with the given source.
func (j *Job) Succeed(source JobSource, frames int) error {
	if err := j.transitionTo(JobSucceeded); err != nil {
		return err
	}
	j.Source = source
	j.Frames = frames
	return nil
}

// Fail marks the job done with err.
func (j *Job) Fail(err error) error {
	if transErr := j.transitionTo(JobFailed); transErr != nil {
		return transErr
	}
	if err != nil {
		j.Error = err.Error()
	}
	return nil
}

// Duration returns how long the job ran. Zero while in flight.
func (j *Job) Duration() time.Duration {
	if j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

func (j *Job) transitionTo(next JobState) error {
	if !next.IsValid() || !j.State.CanTransitionTo(next) {
		return ErrInvalidJobTransition
	}
	j.State = next
	j.FinishedAt = time.Now()
	return nil
}
