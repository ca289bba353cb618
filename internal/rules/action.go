// internal/rules/action.go
package rules

import (
	"fmt"

	"github.com/solatis/linekeeper/internal/types"
)

// Action performs a side effect when a rule fires.
type Action interface {
	Execute() error
}

// ActionFunc adapts a plain function to Action.
type ActionFunc func() error

// Execute implements Action.
func (f ActionFunc) Execute() error { return f() }

// InvokeMethodAction calls a zero-argument method on a surface.
type InvokeMethodAction struct {
	name string
	fn   func() error
}

// NewInvokeMethodAction binds method on target.
func NewInvokeMethodAction(target *Surface, method string) (*InvokeMethodAction, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: action target is nil (method %q)", types.ErrConfiguration, method)
	}
	fn, err := target.Method(method)
	if err != nil {
		return nil, err
	}
	return &InvokeMethodAction{name: target.Name() + "." + method, fn: fn}, nil
}

// Execute invokes the method; its error is returned unchanged.
func (a *InvokeMethodAction) Execute() error {
	return a.fn()
}

// String returns "target.method".
func (a *InvokeMethodAction) String() string {
	return a.name
}
