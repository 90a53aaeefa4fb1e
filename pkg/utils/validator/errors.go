package validator

import (
	"errors"
	"strings"
)

// FieldError is one failed constraint.
type FieldError struct {
	Field   string      `json:"field"`
	Tag     string      `json:"tag"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
}

// ValidationErrors collects every failed constraint of a struct.
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

// Error implements error.
func (e *ValidationErrors) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Count returns the number of failed constraints.
func (e *ValidationErrors) Count() int {
	if e == nil {
		return 0
	}
	return len(e.Errors)
}

// HasField reports whether field failed any constraint.
func (e *ValidationErrors) HasField(field string) bool {
	if e == nil {
		return false
	}
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// First returns the first failure, or nil.
func (e *ValidationErrors) First() *FieldError {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return &e.Errors[0]
}

// AsValidationErrors unwraps err into *ValidationErrors.
func AsValidationErrors(err error) (*ValidationErrors, bool) {
	var verrs *ValidationErrors
	if errors.As(err, &verrs) {
		return verrs, true
	}
	return nil, false
}
