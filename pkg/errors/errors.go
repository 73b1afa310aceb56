// Package errors defines the reconciliation error taxonomy. Each type matches a
// package sentinel through errors.Is and converts to an httperror for the API layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

var (
	// ErrValidation indicates a transition was attempted with missing or unresolved data
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates a concurrent or stale merge operation
	ErrConflict = errors.New("conflict")

	// ErrExternalService indicates a record store or suggestion provider failure
	ErrExternalService = errors.New("external service failure")

	// ErrAuthorization indicates the actor lacks the role for an action
	ErrAuthorization = errors.New("not authorized")
)

// ValidationError reports the fields that block a state transition
type ValidationError struct {
	Fields  []string
	Message string
}

func NewValidationError(message string, fields ...string) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).AddMetaValue("fields", strings.Join(e.Fields, ","))
}

// ConflictError is returned when a keeper already has a merge in flight or an
// undo targets a snapshot that is no longer current.
type ConflictError struct {
	KeeperID string
	Reason   string
}

func NewConflictError(keeperID, reason string) *ConflictError {
	return &ConflictError{KeeperID: keeperID, Reason: reason}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("keeper %s: %s", e.KeeperID, e.Reason)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func (e *ConflictError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("keeper_id", e.KeeperID)
}

// ExternalServiceError wraps a failed or timed out call to a collaborator
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func NewExternalServiceError(service, op string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Op: op, Err: err}
}

func (e *ExternalServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failed", e.Service, e.Op)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrExternalService
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

func (e *ExternalServiceError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadGateway, e.Error()).AddMetaValue("service", e.Service).AddMetaValue("operation", e.Op)
}

// AuthorizationError is returned when an actor's role does not permit an action
type AuthorizationError struct {
	Actor  string
	Role   string
	Action string
}

func NewAuthorizationError(actor, role, action string) *AuthorizationError {
	return &AuthorizationError{Actor: actor, Role: role, Action: action}
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %q with role %q may not %s", e.Actor, e.Role, e.Action)
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrAuthorization
}

func (e *AuthorizationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusForbidden, e.Error()).AddMetaValue("action", e.Action)
}

type httpConvertible interface {
	ToHTTPError() *httperror.HTTPError
}

// ToHTTPError converts a taxonomy error (anywhere in the chain) into an httperror.
// Errors outside the taxonomy are returned unchanged.
func ToHTTPError(err error) error {
	if err == nil {
		return nil
	}
	var conv httpConvertible
	if errors.As(err, &conv) {
		return conv.ToHTTPError()
	}
	return err
}

func IsValidation(err error) bool      { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool        { return errors.Is(err, ErrConflict) }
func IsExternalService(err error) bool { return errors.Is(err, ErrExternalService) }
func IsAuthorization(err error) bool   { return errors.Is(err, ErrAuthorization) }
