package capture

import (
	"fmt"
)

// ErrorCode classifies controller failures.
type ErrorCode string

// Error codes
const (
	CodeInvalidDevice      ErrorCode = "INVALID_DEVICE"
	CodeNoDeviceSelected   ErrorCode = "NO_DEVICE_SELECTED"
	CodeInvalidSampleRate  ErrorCode = "INVALID_SAMPLE_RATE"
	CodeAlreadyRecording   ErrorCode = "ALREADY_RECORDING"
	CodeHardwareArmTimeout ErrorCode = "HARDWARE_ARM_TIMEOUT"
	CodeHardwareFailure    ErrorCode = "HARDWARE_FAILURE"
)

// Error is a capture controller failure. Two errors match under errors.Is
// when their codes are equal, so callers compare against the sentinels below.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidDevice      = &Error{Code: CodeInvalidDevice, Message: "invalid recording device"}
	ErrNoDeviceSelected   = &Error{Code: CodeNoDeviceSelected, Message: "no recording device selected"}
	ErrInvalidSampleRate  = &Error{Code: CodeInvalidSampleRate, Message: "invalid sample rate"}
	ErrAlreadyRecording   = &Error{Code: CodeAlreadyRecording, Message: "already recording"}
	ErrHardwareArmTimeout = &Error{Code: CodeHardwareArmTimeout, Message: "recording device did not start in time"}
	ErrHardwareFailure    = &Error{Code: CodeHardwareFailure, Message: "recording device failure"}
)

func newError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}
