package trace

import "errors"

var (
	// ErrInvalidSubject is returned when the resource a descriptor renders
	// is not known to the schema. It is the only error Optimize returns.
	ErrInvalidSubject = errors.New("invalid subject resource")

	// ErrUnresolvableAttribute is recorded when a path segment names an
	// attribute the resource does not have
	ErrUnresolvableAttribute = errors.New("unresolvable attribute")
)
