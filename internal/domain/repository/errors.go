package repository

import "errors"

var (
	// ErrObjectNotFound is returned when an object does not exist in storage.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrDuplicateJob is returned when a job with the same ID was already recorded.
	ErrDuplicateJob = errors.New("job already recorded")
)
