// internal/rules/condition.go
package rules

import (
	"fmt"

	"github.com/solatis/linekeeper/internal/types"
)

// Condition gates whether a rule's actions run.
type Condition interface {
	Holds() bool
}

// ConditionFunc adapts a plain predicate to Condition.
type ConditionFunc func() bool

// Holds implements Condition.
func (f ConditionFunc) Holds() bool { return f() }

// PropertyEqualityCondition holds while a property equals an expected value.
type PropertyEqualityCondition struct {
	get      func() any
	expected any
	rendered bool
}

// NewPropertyEqualityCondition compares the property natively (see ValuesEqual).
func NewPropertyEqualityCondition(target *Surface, property string, expected any) (*PropertyEqualityCondition, error) {
	return newPropertyEquality(target, property, expected, false)
}

// NewPropertyStringEqualityCondition compares the text renderings of property and expected.
func NewPropertyStringEqualityCondition(target *Surface, property string, expected string) (*PropertyEqualityCondition, error) {
	return newPropertyEquality(target, property, expected, true)
}

func newPropertyEquality(target *Surface, property string, expected any, rendered bool) (*PropertyEqualityCondition, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: condition target is nil (property %q)", types.ErrConfiguration, property)
	}
	get, err := target.Property(property)
	if err != nil {
		return nil, err
	}
	return &PropertyEqualityCondition{get: get, expected: expected, rendered: rendered}, nil
}

// Holds reads the property and compares it.
func (c *PropertyEqualityCondition) Holds() bool {
	value := c.get()
	if c.rendered {
		return RenderedEqual(value, c.expected)
	}
	return ValuesEqual(value, c.expected)
}
