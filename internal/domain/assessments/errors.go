package assessments

import "errors"

// ErrConcurrentRun indicates another run already holds the lock for the
// same (system, framework) pair. Retryable; never a silent no-op.
var ErrConcurrentRun = errors.New("assessment already running for system/framework pair")

// ErrNotFound indicates no assessment exists for the id.
var ErrNotFound = errors.New("assessment not found")

// ErrPersistence indicates the finalize write failed. The run must not be
// reported completed until the write is confirmed.
var ErrPersistence = errors.New("assessment persistence failure")
