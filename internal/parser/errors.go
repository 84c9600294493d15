package parser

import (
	"errors"
	"fmt"
)

// ErrUnsafeReduction marks code that cannot be statically reduced.
var ErrUnsafeReduction = errors.New("unsafe reduction")

// UnsafeCommonJS prefixes the reason of statements touching CommonJS
// globals. Such modules are kept whole rather than rejected.
const UnsafeCommonJS = "CommonJS"

// UnsafeError carries the construct that defeated static reduction.
type UnsafeError struct {
	File   string
	Line   int
	Reason string
}

func (e *UnsafeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s:%d: %s", ErrUnsafeReduction.Error(), e.File, e.Line, e.Reason)
}

func (e *UnsafeError) Unwrap() error { return ErrUnsafeReduction }
