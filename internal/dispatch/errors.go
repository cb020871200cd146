package dispatch

import (
	"errors"
	"fmt"
)

// MisuseError reports a broken threading invariant: binding a role twice,
// submitting to a stopped executor, waiting on one's own role.
//
// These are programmer errors. A strict Registry panics with the error;
// otherwise it is logged and returned so the caller can observe it.
type MisuseError struct {
	// Code identifies the misuse category.
	Code MisuseCode

	// Role is the role the operation targeted.
	Role Role

	// Message is a human-readable description.
	Message string
}

// MisuseCode categorizes misuse errors.
type MisuseCode string

const (
	// ErrCodeRoleAlreadyBound indicates SetRoleThread on a role that is still bound.
	ErrCodeRoleAlreadyBound MisuseCode = "ROLE_ALREADY_BOUND"

	// ErrCodeEnqueueAfterStop indicates a submission to an executor that has stopped.
	ErrCodeEnqueueAfterStop MisuseCode = "ENQUEUE_AFTER_STOP"

	// ErrCodeSelfWait indicates a goroutine waiting on work queued to its own role.
	ErrCodeSelfWait MisuseCode = "SELF_WAIT"

	// ErrCodeWrongRole indicates a role-confined operation called from another goroutine.
	ErrCodeWrongRole MisuseCode = "WRONG_ROLE"

	// ErrCodeNoSubmitter indicates a submission to a role with no delegate bound.
	ErrCodeNoSubmitter MisuseCode = "NO_SUBMITTER"

	// ErrCodeOverRelease indicates a reference count released below zero.
	ErrCodeOverRelease MisuseCode = "OVER_RELEASE"
)

// Error implements the error interface.
func (e *MisuseError) Error() string {
	if e.Role != RoleNone {
		return fmt.Sprintf("%s: %s (role=%s)", e.Code, e.Message, e.Role)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewMisuseError creates a MisuseError.
func NewMisuseError(code MisuseCode, role Role, format string, args ...any) *MisuseError {
	return &MisuseError{
		Code:    code,
		Role:    role,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsMisuse reports whether err is a MisuseError with the given code.
// Uses errors.As to handle wrapped errors.
func IsMisuse(err error, code MisuseCode) bool {
	var me *MisuseError
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}
