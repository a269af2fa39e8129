package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches any AppError carrying the same code, so sentinel values
// declared with New compare equal to wrapped or re-worded variants.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeRoomNotFound        = "ROOM_NOT_FOUND"
	ErrCodePlayerNotFound      = "PLAYER_NOT_FOUND"
	ErrCodeInvalidTeam         = "INVALID_TEAM"
	ErrCodeTeamFull            = "TEAM_FULL"
	ErrCodeTeamEliminated      = "TEAM_ELIMINATED"
	ErrCodeNoActiveQuestion    = "NO_ACTIVE_QUESTION"
	ErrCodeInvalidQuestion     = "INVALID_QUESTION"
	ErrCodeQuestionExpired     = "QUESTION_EXPIRED"
	ErrCodeDuplicateSubmission = "DUPLICATE_SUBMISSION"
	ErrCodeActionNotAllowed    = "ACTION_NOT_ALLOWED"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeStoreTimeout        = "STORE_TIMEOUT"
	ErrCodeRoomUnavailable     = "ROOM_UNAVAILABLE"
	ErrCodePersistence         = "PERSISTENCE_ERROR"
	ErrCodeConfiguration       = "CONFIGURATION_ERROR"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// CodeOf returns the code of the first AppError in err's chain, or
// ErrCodeInternalError when there is none.
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// HTTPStatus maps an error to the status the API answers with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeValidation, ErrCodeInvalidTeam:
		return http.StatusBadRequest
	case ErrCodeRoomNotFound, ErrCodePlayerNotFound:
		return http.StatusNotFound
	case ErrCodeTeamFull, ErrCodeTeamEliminated, ErrCodeNoActiveQuestion,
		ErrCodeInvalidQuestion, ErrCodeQuestionExpired, ErrCodeDuplicateSubmission,
		ErrCodeActionNotAllowed, ErrCodeConcurrencyConflict:
		return http.StatusConflict
	case ErrCodeStoreTimeout, ErrCodeRoomUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Public reports whether the error message may be shown to clients as is.
// Persistence and internal failures are reported generically.
func Public(err error) bool {
	switch CodeOf(err) {
	case ErrCodePersistence, ErrCodeConfiguration, ErrCodeInternalError:
		return false
	}
	return true
}

// PublicMessage is the message to show clients for err.
func PublicMessage(err error) string {
	var appErr *AppError
	if Public(err) && stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
