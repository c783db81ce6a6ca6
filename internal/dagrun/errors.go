package dagrun

import "errors"

var (
	// ErrOpFailed is wrapped into the run's error (State.Err) when an
	// executor reports a failure for one of the DAG's ops.
	ErrOpFailed = errors.New("op execution failed")
)
