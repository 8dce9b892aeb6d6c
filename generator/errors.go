package generator

import "fmt"

// InvalidRangeError is returned when a bounded draw is asked for an empty range.
type InvalidRangeError struct {
	Min int
	Max int
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: min %d is greater than max %d", e.Min, e.Max)
}

// GenerationError reports invalid generator parameters.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generator: %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
