package mimic

import (
	"errors"
	"fmt"
)

// Common bit widths.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
)

// Summary and solver errors.
var (
	ErrNoSummary           = errors.New("mimic: no summary registered")
	ErrNoAllocation        = errors.New("mimic: allocation not found")
	ErrUnsatisfiable       = errors.New("mimic: unsatisfiable constraints")
	ErrSolverTimeout       = errors.New("mimic: solver timeout")
	ErrSolverCanceled      = errors.New("mimic: solver canceled")
	ErrSolverResourceLimit = errors.New("mimic: solver resource limit")
	ErrSolverUnknown       = errors.New("mimic: solver unknown error")
)

// assert panics with a formatted message if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
