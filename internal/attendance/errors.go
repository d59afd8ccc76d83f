package attendance

import (
	"errors"
	"fmt"
	"net/http"

	"eventcheckin/internal/attendee"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
)

// APIError is the JSON error body. Rule conflicts carry the violation as
// the code and the attendee's current record.
type APIError struct {
	Code     Code               `json:"code"`
	Message  string             `json:"message"`
	Attendee *attendee.Attendee `json:"attendee,omitempty"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError      { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrUnauthorized(msg string) *APIError { return &APIError{Code: CodeUnauthorized, Message: msg} }
func ErrConflict(msg string) *APIError     { return &APIError{Code: CodeConflict, Message: msg} }

// Describe converts any service error into its HTTP status and body.
func Describe(err error) (int, *APIError) {
	var api *APIError
	if errors.As(err, &api) {
		return httpStatus(api.Code), api
	}
	var rule *attendee.RuleError
	if errors.As(err, &rule) {
		a := rule.Attendee
		return http.StatusConflict, &APIError{Code: Code(rule.Violation), Message: rule.Message(), Attendee: &a}
	}
	switch {
	case errors.Is(err, attendee.ErrNotFound):
		return http.StatusNotFound, &APIError{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, attendee.ErrInvalid):
		return http.StatusBadRequest, &APIError{Code: CodeInvalidArgument, Message: err.Error()}
	}
	return http.StatusInternalServerError, &APIError{Code: CodeInternal, Message: "internal error"}
}

func httpStatus(code Code) int {
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, Code(attendee.AlreadyInside), Code(attendee.CycleComplete), Code(attendee.NotEntered):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
