package contracts

import (
	"errors"
	"fmt"
)

// ErrConflict means an optimistic (version-checked) write lost a race
var ErrConflict = errors.New("concurrent modification")

// ErrActiveEvaluation rejects a second active evaluation for one report
var ErrActiveEvaluation = errors.New("an active evaluation already exists for this report")

// ValidationError is a contract violation by the caller; never retried
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// ExternalError wraps a failed collaborator call
// Temporary = true 인 경우에만 재시도 대상
type ExternalError struct {
	Collaborator string
	Temporary    bool
	Err          error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// NotFoundError is an unknown id
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// StateError is a mutation attempted on a terminal entity
// 호출자에게 노출하지 않고 로그만 남김
type StateError struct {
	Kind   string
	ID     string
	Status string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s is %s; mutation rejected", e.Kind, e.ID, e.Status)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsState(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTemporaryExternal reports a collaborator failure worth another attempt
func IsTemporaryExternal(err error) bool {
	var ee *ExternalError
	return errors.As(err, &ee) && ee.Temporary
}

// IsExternal reports any collaborator failure
func IsExternal(err error) bool {
	var ee *ExternalError
	return errors.As(err, &ee)
}
