package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ValidationError is reported inline to the user (empty cart, missing
// address fields, missing size selection).
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Fields) > 0 {
		return "missing required fields: " + strings.Join(e.Fields, ", ")
	}
	return "validation failed"
}

func Validation(message string) error {
	return &ValidationError{Message: message}
}

func MissingFields(fields ...string) error {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	return &ValidationError{Fields: sorted}
}

type AuthRequiredError struct {
	Message string
}

func (e *AuthRequiredError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "not authorized, login again"
}

// ProviderError wraps a network or API failure from a payment provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

type InvalidSignatureError struct{}

func (e *InvalidSignatureError) Error() string {
	return "invalid signature"
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "conflict"
}

// InvalidTransitionError is returned when a payment transition is attempted
// from a state that does not allow it.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid payment transition from %s to %s", e.From, e.To)
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	var (
		validationErr *ValidationError
		authErr       *AuthRequiredError
		providerErr   *ProviderError
		signatureErr  *InvalidSignatureError
		notFoundErr   *NotFoundError
		conflictErr   *ConflictError
		transitionErr *InvalidTransitionError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &signatureErr):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &conflictErr), errors.As(err, &transitionErr):
		return http.StatusConflict
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}
