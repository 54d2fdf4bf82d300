package borrows

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeNoCopiesAvailable     Code = "NO_COPIES_AVAILABLE"
	CodeDuplicateActiveBorrow Code = "DUPLICATE_ACTIVE_BORROW"
	CodeAlreadyReturned       Code = "ALREADY_RETURNED"
	CodeUnavailable           Code = "UNAVAILABLE"
	CodeInternal              Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string         { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrNotFound(msg string) *APIError    { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrUnavailable(msg string) *APIError { return &APIError{Code: CodeUnavailable, Message: msg} }
func ErrInternal(msg string) *APIError    { return &APIError{Code: CodeInternal, Message: msg} }

func ErrNoCopiesAvailable() *APIError {
	return &APIError{Code: CodeNoCopiesAvailable, Message: "No copies available"}
}

func ErrDuplicateActiveBorrow() *APIError {
	return &APIError{Code: CodeDuplicateActiveBorrow, Message: "You already borrowed this book"}
}

func ErrAlreadyReturned() *APIError {
	return &APIError{Code: CodeAlreadyReturned, Message: "Book already returned"}
}

// ErrConflict is returned by Tx writes whose version check failed. The ledger
// retries the whole transaction on it and never hands it to callers.
var ErrConflict = errors.New("borrows: concurrent modification")

// errActiveBorrowExists is returned by CreateBorrow when the active-borrow
// unique index rejects the row.
var errActiveBorrowExists = errors.New("borrows: active borrow already exists")

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument, CodeNoCopiesAvailable, CodeDuplicateActiveBorrow, CodeAlreadyReturned:
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

func errorFromErr(err error) errorDTO {
	var api *APIError
	if errors.As(err, &api) {
		return errorBody(api.Code, api.Message)
	}
	return errorBody(CodeInternal, "internal error")
}
