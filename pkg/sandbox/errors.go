package sandbox

import "errors"

var (
	// ErrEmptyCommand is returned when there is nothing to run
	ErrEmptyCommand = errors.New("command is empty")

	// ErrExecutionTimeout is returned when execution times out
	ErrExecutionTimeout = errors.New("execution timed out")
)
