package validator

import (
	"fmt"
	"reflect"
)

// Validate reports an error if any dependency is nil or the zero value for
// its type. Constructors call it once with every required dependency so a
// miswired component fails at startup instead of at first use.
func Validate(name string, deps ...any) error {
	for _, dep := range deps {
		v := reflect.ValueOf(dep)
		if !v.IsValid() {
			return fmt.Errorf("missing required deps for component: %s", name)
		}

		switch v.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			if v.IsNil() {
				return fmt.Errorf("missing required deps for component: %s", name)
			}
		default:
			if v.IsZero() {
				return fmt.Errorf("missing required deps for component: %s", name)
			}
		}
	}

	return nil
}
