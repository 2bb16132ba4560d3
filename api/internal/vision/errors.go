package vision

import (
	"errors"
	"fmt"
)

// ErrInference matches every *InferenceError via errors.Is.
var ErrInference = errors.New("inference failed")

// InferenceError means the model call failed or its output was malformed.
type InferenceError struct {
	Mode Mode
	Op   string
	Err  error
}

func (e *InferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Mode, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Mode, e.Op, ErrInference)
}

func (e *InferenceError) Unwrap() error { return e.Err }

func (e *InferenceError) Is(target error) bool { return target == ErrInference }

func inferenceErr(mode Mode, op string, err error) error {
	return &InferenceError{Mode: mode, Op: op, Err: err}
}

func malformed(mode Mode, format string, args ...any) error {
	return inferenceErr(mode, "normalize", fmt.Errorf("malformed model output: "+format, args...))
}
