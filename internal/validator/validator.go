package validator

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrMissingDependency is returned when a required dependency is nil or zero.
var ErrMissingDependency = errors.New("missing required dependency")

// Validate checks that every dep is set. Nil-able kinds must be non-nil, all
// other kinds must be non-zero.
func Validate(name string, deps ...any) error {
	for i, dep := range deps {
		if missing(dep) {
			return fmt.Errorf("%w: component %s, argument %d", ErrMissingDependency, name, i)
		}
	}

	return nil
}

func missing(dep any) bool {
	v := reflect.ValueOf(dep)
	if !v.IsValid() {
		return true
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return v.IsZero()
	}
}
