package api

import (
	"errors"
	"fmt"

	"github.com/solatis/linekeeper/internal/types"
)

// Fault is the failure signal of the alarm service boundary. It carries a
// reason string for the caller and wraps the internal cause.
type Fault struct {
	Operation string
	Reason    string
	Err       error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Operation, f.Reason)
}

func (f *Fault) Unwrap() error { return f.Err }

// IsFault reports whether err is a service fault.
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}

// unknownModule maps a lookup failure to a fault.
func unknownModule(op, module string, err error) *Fault {
	if errors.Is(err, types.ErrNotFound) {
		return &Fault{Operation: op, Reason: fmt.Sprintf("unknown module %q", module), Err: err}
	}
	return &Fault{Operation: op, Reason: err.Error(), Err: err}
}
