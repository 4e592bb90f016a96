package table

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingKey is returned when a record lacks its hash or range attribute.
	ErrMissingKey = errors.New("record key attribute missing")

	// ErrConditionFailed is returned when a conditional write is rejected.
	ErrConditionFailed = errors.New("condition check failed")
)

// SchemaError reports an invalid schema field.
type SchemaError struct {
	Field   string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in field %s: %s", e.Field, e.Message)
}

// ConditionFailedError describes which operation had its condition rejected.
type ConditionFailedError struct {
	Operation string
	Table     string
	Err       error
}

func (e *ConditionFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s on %s: condition check failed: %v", e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("%s on %s: condition check failed", e.Operation, e.Table)
}

func (e *ConditionFailedError) Is(target error) bool {
	return target == ErrConditionFailed
}

func (e *ConditionFailedError) Unwrap() error {
	return e.Err
}

// IsConditionFailed checks if an error is a rejected conditional write.
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}
