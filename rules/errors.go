package rules

import (
	"errors"
	"fmt"
)

// ErrUnsupported marks rule constructs the registry does not know.
var ErrUnsupported = errors.New("unsupported rule construct")

var ErrInvalidValue = errors.New("invalid rule value")

// UnsupportedError names the construct that could not be resolved.
type UnsupportedError struct {
	Kind string // condition, action, operator or resource_type
	Key  string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported %s: %q", e.Kind, e.Key)
}

func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

func unsupported(kind, key string) error {
	return &UnsupportedError{Kind: kind, Key: key}
}
