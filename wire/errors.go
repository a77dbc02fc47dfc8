package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Decode error kinds. The decoder never recovers internally; the first
// error aborts the parse and reaches the caller, usually wrapped in a
// FieldError naming the path it occurred at.
var (
	ErrInvalidKey           = errors.New("invalid field key")
	ErrNotEnoughBytes       = errors.New("not enough bytes")
	ErrOverflow             = errors.New("varint overflow")
	ErrFieldMissing         = errors.New("required field missing")
	ErrOptionalFieldMissing = errors.New("optional field missing")
	ErrSubMessageMissing    = errors.New("sub-message missing")
	ErrDescriptorMissing    = errors.New("field descriptor missing")
	ErrInvalidType          = errors.New("wire type incompatible with field type")
	ErrInvalidData          = errors.New("truncated or malformed payload")
	ErrBadDescriptor        = errors.New("descriptor magic mismatch")
	ErrRecursionDepth       = errors.New("message nesting too deep")
)

// FieldError represents a decoding/encoding error with a field path.
type FieldError struct {
	FieldPath []string // e.g. ["order", "items", "price"]
	Err       error    // underlying error
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	if len(e.FieldPath) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("error at proto path %s: %v", strings.Join(e.FieldPath, "."), e.Err)
}

// Unwrap returns the underlying error.
func (e *FieldError) Unwrap() error {
	return e.Err
}

// wrapWithField wraps an error with a field name, prepending to the path
// when the error already carries one.
func wrapWithField(err error, fieldName string) error {
	if err == nil {
		return nil
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		return &FieldError{
			FieldPath: append([]string{fieldName}, fe.FieldPath...),
			Err:       fe.Err,
		}
	}
	return &FieldError{
		FieldPath: []string{fieldName},
		Err:       err,
	}
}
