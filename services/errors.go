package services

import (
	"errors"
	"fmt"
)

// ErrNotFound marks lookups of records that do not exist. Controllers map
// it to a 404 instead of a policy failure.
var ErrNotFound = errors.New("record not found")

// ValidationError reports a payload that fails the role-specific shape
// rules. Field names the offending attribute when known.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// QuotaError reports that the submitter reached the active-proposal limit.
type QuotaError struct {
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("you have reached the maximum limit of %d project proposals", e.Limit)
}

// AuthorizationError reports that the actor lacks the capability required
// for the attempted transition.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string { return e.Message }

// StateError reports a transition that is illegal from the proposal's
// current state.
type StateError struct {
	Message string
}

func (e *StateError) Error() string { return e.Message }

// PersistenceError wraps a failed store operation. The whole transaction
// was rolled back, so the operation is safe to retry.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func validationErr(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func authorizationErr(message string) error {
	return &AuthorizationError{Message: message}
}

func stateErr(message string) error {
	return &StateError{Message: message}
}

func persistenceErr(err error) error {
	return &PersistenceError{Err: err}
}
