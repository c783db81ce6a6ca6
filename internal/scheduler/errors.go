package scheduler

import "errors"

var (
	// ErrDeviceNameEmpty is returned when a submission names an empty
	// device string.
	ErrDeviceNameEmpty = errors.New("device name must not be empty")
	// ErrWorkerSpawnFailed is returned by the registry when a device's
	// worker pool could not be started; the caller must reject the
	// submission that triggered it.
	ErrWorkerSpawnFailed = errors.New("failed to spawn device worker")
	// ErrQueueShutdown is returned when a submission targets a registry
	// that has already begun shutting down.
	ErrQueueShutdown = errors.New("device registry is shutting down")
)
