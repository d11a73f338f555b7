package eval

import "errors"

var (
	// ErrInvalidCriteria is returned when a criteria expression does not
	// compile to a boolean
	ErrInvalidCriteria = errors.New("invalid criteria")

	// ErrInvalidSuite is returned for suites with missing or duplicate task fields
	ErrInvalidSuite = errors.New("invalid suite")
)
