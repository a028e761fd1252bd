package heagg

import "fmt"

// Operation is the closed set of aggregations supported by the service.
// The zero value is not a valid operation.
type Operation int

const (
	// Sum is the homomorphic sum of the inputs.
	Sum Operation = iota + 1
	// Average is the homomorphic sum of the inputs scaled by 1/n.
	Average
)

var operationNames = map[Operation]string{
	Sum:     "sum",
	Average: "average",
}

// ParseOperation parses a wire-level operation tag. The match is exact and
// case-sensitive, any other tag returns an error wrapping ErrUnsupportedOperation.
func ParseOperation(tag string) (Operation, error) {
	switch tag {
	case "sum":
		return Sum, nil
	case "average":
		return Average, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedOperation, tag)
}

// Valid returns whether op is one of the supported operations.
func (op Operation) Valid() bool {
	_, ok := operationNames[op]
	return ok
}

// String returns the wire-level tag of the operation.
func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Operation(%d)", int(op))
}

// MarshalText implements encoding.TextMarshaler.
func (op Operation) MarshalText() ([]byte, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, op)
	}
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (op *Operation) UnmarshalText(text []byte) (err error) {
	*op, err = ParseOperation(string(text))
	return err
}
