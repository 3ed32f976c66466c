package telemetry

import pkgerrors "github.com/pkg/errors"

var (
	// ErrMissing means a telemetry file does not exist or cannot be read.
	ErrMissing = pkgerrors.New("telemetry missing")
	// ErrMalformed means a telemetry file was read but does not hold a
	// finite number.
	ErrMalformed = pkgerrors.New("telemetry malformed")
	// ErrNotFound is returned by discovery when no matching power supply
	// exists.
	ErrNotFound = pkgerrors.New("power supply not found")
)

// ReadError describes a failed telemetry read. Kind is ErrMissing or
// ErrMalformed.
type ReadError struct {
	Path string
	Kind error
	Err  error
}

func (e *ReadError) Error() string {
	return "read " + e.Path + ": " + e.Err.Error()
}

func (e *ReadError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
