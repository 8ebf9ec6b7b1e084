package model

import (
	"github.com/pkg/errors"
)

var (
	// ValidationError is returned when a configuration is invalid.
	ValidationError = errors.New("validation failed")
	IsValidation    = isErrorFunc(ValidationError)
	// InvalidArgumentError is returned for bad pins, out of range values and bad edge kinds.
	InvalidArgumentError = errors.New("invalid argument")
	IsInvalidArgument    = isErrorFunc(InvalidArgumentError)
	// AlreadyWaitingError is returned when another task holds the claim on a pin.
	AlreadyWaitingError = errors.New("already waiting")
	IsAlreadyWaiting    = isErrorFunc(AlreadyWaitingError)
	// ModeMismatchError is returned when a pin is in the wrong mode for an operation.
	ModeMismatchError = errors.New("mode mismatch")
	IsModeMismatch    = isErrorFunc(ModeMismatchError)
	// DeviceTreeError is returned when an overlay failed to load or unload.
	DeviceTreeError = errors.New("device tree error")
	IsDeviceTree    = isErrorFunc(DeviceTreeError)
	// UnsupportedOperationError is returned when an operation is not possible for a pin type.
	UnsupportedOperationError = errors.New("unsupported operation")
	IsUnsupportedOperation    = isErrorFunc(UnsupportedOperationError)
	// NotEnabledError is returned when a pin or bus is used before it has been set up.
	NotEnabledError = errors.New("not enabled")
	IsNotEnabled    = isErrorFunc(NotEnabledError)

	maskAny = errors.WithStack
)

// InvalidArgument creates an InvalidArgumentError with given message.
func InvalidArgument(msg string, args ...interface{}) error {
	return errors.Wrapf(InvalidArgumentError, msg, args...)
}

// AlreadyWaiting creates an AlreadyWaitingError with given message.
func AlreadyWaiting(msg string, args ...interface{}) error {
	return errors.Wrapf(AlreadyWaitingError, msg, args...)
}

// ModeMismatch creates a ModeMismatchError with given message.
func ModeMismatch(msg string, args ...interface{}) error {
	return errors.Wrapf(ModeMismatchError, msg, args...)
}

// DeviceTree creates a DeviceTreeError with given message.
func DeviceTree(msg string, args ...interface{}) error {
	return errors.Wrapf(DeviceTreeError, msg, args...)
}

// UnsupportedOperation creates an UnsupportedOperationError with given message.
func UnsupportedOperation(msg string, args ...interface{}) error {
	return errors.Wrapf(UnsupportedOperationError, msg, args...)
}

// NotEnabled creates a NotEnabledError with given message.
func NotEnabled(msg string, args ...interface{}) error {
	return errors.Wrapf(NotEnabledError, msg, args...)
}

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
