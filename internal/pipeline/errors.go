package pipeline

import (
	"errors"
	"fmt"
)

// StageError reports which stage of a run failed. Load, normalize, buffer,
// join and export failures abort the run and are returned wrapped in a
// StageError; aggregate and crossk failures are recorded on the result.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage named by a StageError in err's chain, or "".
func FailedStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
