package contracts

import "errors"

// Error taxonomy
// ⭐ SSOT: 호출자는 errors.Is로 판별
var (
	// ErrNotFound - instrument or task absent
	ErrNotFound = errors.New("not found")

	// ErrInvalidState - operation illegal for the current task state
	ErrInvalidState = errors.New("invalid state")

	// ErrDataUnavailable - provider returned nothing usable (neutral fallback, not failure)
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrExecutionFailure - unexpected failure inside a pipeline step
	ErrExecutionFailure = errors.New("execution failure")

	// ErrLockContention - job skipped because its lock is held
	ErrLockContention = errors.New("lock contention")

	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrWaitTimeout      = errors.New("wait timeout")
)
