package sdk

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownSetting is returned when a key does not match any setting.
	ErrUnknownSetting = errors.New("unknown setting")
	// ErrReadOnly is returned when a read-only setting is written.
	ErrReadOnly = errors.New("setting is read-only")
	// ErrUnknownAction is returned when an action key is not exposed by the module.
	ErrUnknownAction = errors.New("unknown action")
)

// ValidationError is reported by modules for invalid settings.
type ValidationError struct {
	// Field is the offending setting key, empty for module-wide problems.
	Field   string
	Message string
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid setting %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid settings: %s", e.Message)
}

// ValidationErrors collects several field problems.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

// Err returns nil when v is empty.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Fields lists the offending keys in order.
func (v ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(v))
	for _, e := range v {
		fields = append(fields, e.Field)
	}
	return fields
}

// As lets errors.As find the first ValidationError.
func (v ValidationErrors) As(target any) bool {
	ptr, ok := target.(**ValidationError)
	if !ok || len(v) == 0 {
		return false
	}
	*ptr = v[0]
	return true
}
