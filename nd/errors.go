package nd

import "github.com/pkg/errors"

// The error taxonomy shared by every numeric operation. Callers match on these with errors.Is;
// the returned errors carry the offending dimensions as context.
var (
	// ErrShapeMismatch is returned when operand dimensions violate the contract established at construction.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrKernelTooLarge is returned when a kernel does not fit inside its (padded) input.
	ErrKernelTooLarge = errors.New("kernel larger than input")

	// ErrNilBuffer is returned when a required buffer is absent.
	ErrNilBuffer = errors.New("nil buffer")
)

func mismatch(format string, args ...interface{}) error {
	return errors.Wrapf(ErrShapeMismatch, format, args...)
}
