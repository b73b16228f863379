package movement

import (
	"errors"
	"fmt"
)

// Code identifies a rejected transition. The set is closed.
type Code string

const (
	CodeObjectDoesNotExist       Code = "object_does_not_exist"
	CodeObjectAlreadyEnded       Code = "object_already_ended"
	CodeNoUserLogged             Code = "no_user_logged"
	CodeMovementTypeDoesNotExist Code = "movement_type_does_not_exist"
	CodeTargetProcessNotFound    Code = "target_process_not_found"
	CodePlaceNotFound            Code = "place_not_found"
	CodeAppKillNoExist           Code = "app_kill_no_exist"
	CodeNoSettingsPhase          Code = "no_settings_phase"
	CodeLogNotExist              Code = "log_not_exist"
	CodeWrongCondition           Code = "wrong_condition"
	CodeAlreadyInProcess         Code = "already_in_process"
	CodeReceiveWithoutMove       Code = "receive_without_move"
	CodeBusyPlace                Code = "busy_place"
	CodeEdgeNotDefined           Code = "edge_not_defined"
	CodeNoProcessSettings        Code = "no_process_settings"
	CodeProcessMismatch          Code = "process_mismatch"
	CodeMoveWithoutPlace         Code = "move_without_place"
	CodeFifoViolation            Code = "fifo_violation"
	CodeQuarantineActive         Code = "quarantine_active"
	CodeNotATrashProcess         Code = "not_a_trash_process"
)

// Error is a validation failure. It aborts the request before anything commits.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func fail(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	// ErrInfrastructure marks storage failures. They are never retried here.
	ErrInfrastructure = errors.New("movement infrastructure failure")
	// ErrConflict marks requests that lost a lock or serialization race.
	ErrConflict = errors.New("movement conflict")
)

// AsError extracts the validation failure from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
