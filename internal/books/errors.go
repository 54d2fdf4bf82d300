package books

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string         { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError     { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError    { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrUnavailable(msg string) *APIError { return &APIError{Code: CodeUnavailable, Message: msg} }
func ErrInternal(msg string) *APIError    { return &APIError{Code: CodeInternal, Message: msg} }

// errBookChanged means Save lost its version check although the row was locked
// for the whole update.
var errBookChanged = errors.New("books: row changed while locked")

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeUnavailable:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	e.Message = msg
	return e
}

// errorFromErr never exposes the text of a non-API error.
func errorFromErr(err error) errorDTO {
	var api *APIError
	if errors.As(err, &api) {
		return errorBody(api.Code, api.Message)
	}
	return errorBody(CodeInternal, "internal error")
}
