package verify

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInsufficientFields is returned when the fields cannot form a validation query.
var ErrInsufficientFields = errors.New("cannot attempt validation: insufficient fields")

// MissingFieldsError lists the fields that prevented building a query.
type MissingFieldsError struct {
	Fields []string
}

// Error implements the error interface.
func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%v: missing %s", ErrInsufficientFields, strings.Join(e.Fields, ", "))
}

// Is matches ErrInsufficientFields.
func (e *MissingFieldsError) Is(target error) bool {
	return target == ErrInsufficientFields
}
