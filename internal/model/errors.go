package model

import "errors"

// Error taxonomy shared by every layer. Callers wrap these with fmt.Errorf
// and test with errors.Is.
var (
	ErrValidation              = errors.New("validation failed")
	ErrPermissionDenied        = errors.New("calendar access not granted")
	ErrNotFound                = errors.New("not found")
	ErrInvalidScope            = errors.New("invalid scope")
	ErrProviderOperationFailed = errors.New("provider operation failed")
)
