package benchmark

import (
	"errors"
	"fmt"
)

// Rejects a run before any phase executes. No partial report is produced.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Returned by a RunExecutor alongside whatever output it captured. Neither is
// fatal to a benchmark run.
var (
	ErrExecutionTimeout = errors.New("benchmark tool exceeded its execution budget")
	ErrExecutionFailure = errors.New("benchmark tool exited unsuccessfully")
)
