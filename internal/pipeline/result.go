package pipeline

import "fmt"

// ActionResult is the uniform outcome of one step action. Message is the
// human-readable narration line; Data carries structured values for the
// next steps in the phase (contract ids, computed payments).
type ActionResult struct {
	Success bool
	Message string
	Data    map[string]any
	Err     error
}

func success(message string) ActionResult {
	return ActionResult{Success: true, Message: message}
}

func failure(err error) ActionResult {
	return ActionResult{Success: false, Message: err.Error(), Err: err}
}

func skipped(format string, args ...any) ActionResult {
	return ActionResult{
		Success: false,
		Message: fmt.Sprintf(format, args...),
		Err:     errStepSkipped,
	}
}

// WithData attaches a structured value to the result.
func (r ActionResult) WithData(key string, value any) ActionResult {
	if r.Data == nil {
		r.Data = make(map[string]any)
	}
	r.Data[key] = value
	return r
}
