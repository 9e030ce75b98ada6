package pipeline

import (
	"errors"
	"fmt"
)

// errStepSkipped marks a step outcome that is neither pass nor fail. The
// engine translates it to a skipped status and strips it from the result.
var errStepSkipped = errors.New("step skipped")

// RecoverableStepFailure marks a step outcome the operator can fix and
// retry on a resumed run (underfunded wallet, premature action, reserved
// loan taken by the wrong buyer). The run halts cleanly; already-completed
// phases stay checkpointed.
type RecoverableStepFailure struct {
	Reason string
}

func (e *RecoverableStepFailure) Error() string {
	return e.Reason
}

func recoverable(format string, args ...any) *RecoverableStepFailure {
	return &RecoverableStepFailure{Reason: fmt.Sprintf(format, args...)}
}
