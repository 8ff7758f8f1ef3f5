// Package corerrors implements the closed error taxonomy shared by every
// component of the session and I/O orchestration core.
package corerrors

import (
	"errors"
	"fmt"
	"os"

	"github.com/gravitational/trace"
	"github.com/pkg/sftp"
)

// Code is a member of the closed set of error codes the front-end
// understands. No component may invent a code outside this set.
type Code string

const (
	CodeAuthFailed        Code = "AuthFailed"
	CodeHostkeyMismatch   Code = "HostkeyMismatch"
	CodeTimeout           Code = "Timeout"
	CodeNetworkLost       Code = "NetworkLost"
	CodeNotFound          Code = "NotFound"
	CodePermissionDenied  Code = "PermissionDenied"
	CodeDirNotEmpty       Code = "DirNotEmpty"
	CodeAlreadyExists     Code = "AlreadyExists"
	CodeLocalIoError      Code = "LocalIoError"
	CodeRemoteIoError     Code = "RemoteIoError"
	CodeCanceled          Code = "Canceled"
	CodeInvalidArgument   Code = "InvalidArgument"
	CodeUnknown           Code = "Unknown"
)

// Error is the uniform error value returned across the front-end command
// surface. It always carries a code from the closed set above, a
// human-readable message, optional structured detail, and a retryable
// hint used only by the Transfer Manager's automatic-retry policy.
type Error struct {
	Code      Code
	Message   string
	Detail    map[string]string
	Retryable bool

	cause error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap exposes the underlying cause (typically a trace.Wrap'd error)
// so callers can still use errors.Is/errors.As against the original
// library error if they need to.
func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, corerrors.New(code, "")) match on code alone.
// Components inside the core classify errors with CodeOf and
// IsRetryable instead.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// New builds an *Error directly. Most call sites use one of the named
// constructors below instead.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error that carries cause in its Unwrap chain, the same
// way every other package in this core wraps underlying errors with
// trace.Wrap before returning them.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, cause: trace.Wrap(cause)}
}

// WithDetail attaches structured detail (e.g. both fingerprints on a
// HostkeyMismatch) and returns the same error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Detail == nil {
		e.Detail = map[string]string{}
	}
	e.Detail[key] = value
	return e
}

// AuthFailed reports a failed or locked-out authentication attempt.
// For a lockout, the caller embeds the remaining seconds in message.
func AuthFailed(message string) *Error {
	return &Error{Code: CodeAuthFailed, Message: message, Retryable: false}
}

// HostkeyMismatch reports a TOFU comparison failure. Always fatal.
func HostkeyMismatch(stored, received string) *Error {
	return (&Error{
		Code:      CodeHostkeyMismatch,
		Message:   "host key does not match the previously trusted key",
		Retryable: false,
	}).WithDetail("stored", stored).WithDetail("received", received)
}

// Timeout reports a connect or I/O deadline being exceeded.
func Timeout(cause error, message string) *Error {
	return &Error{Code: CodeTimeout, Message: message, Retryable: true, cause: trace.Wrap(cause)}
}

// NetworkLost reports a refused connection, dropped handshake, or missed
// keepalive.
func NetworkLost(cause error, message string) *Error {
	return &Error{Code: CodeNetworkLost, Message: message, Retryable: true, cause: trace.Wrap(cause)}
}

// NotFound reports a missing remote or local path.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, Retryable: false}
}

// PermissionDenied reports an SFTP or local permission failure.
func PermissionDenied(message string) *Error {
	return &Error{Code: CodePermissionDenied, Message: message, Retryable: false}
}

// DirNotEmpty reports an rmdir attempted against a populated directory.
func DirNotEmpty(path string) *Error {
	return &Error{Code: CodeDirNotEmpty, Message: fmt.Sprintf("directory %q is not empty", path), Retryable: false}
}

// AlreadyExists reports a create/rename collision.
func AlreadyExists(message string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: message, Retryable: false}
}

// LocalIoError reports a failure touching the local filesystem.
func LocalIoError(cause error, message string) *Error {
	return &Error{Code: CodeLocalIoError, Message: message, Retryable: false, cause: trace.Wrap(cause)}
}

// RemoteIoError reports a failure during an SFTP data operation.
// Retryable: RemoteIoError is the one I/O class the Transfer Manager
// automatically retries, per spec.
func RemoteIoError(cause error, message string) *Error {
	return &Error{Code: CodeRemoteIoError, Message: message, Retryable: true, cause: trace.Wrap(cause)}
}

// Canceled reports user-initiated cancellation. Never retried.
func Canceled(message string) *Error {
	return &Error{Code: CodeCanceled, Message: message, Retryable: false}
}

// InvalidArgument reports a caller error (bad path, bad mode, ...).
func InvalidArgument(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...), Retryable: false}
}

// Unknown is the degrade-to target for lock-poisoning and other
// internal errors that don't fit the closed set.
func Unknown(cause error, message string) *Error {
	return &Error{Code: CodeUnknown, Message: message, Retryable: false, cause: trace.Wrap(cause)}
}

// FromSFTPStatus classifies an error returned by github.com/pkg/sftp
// into the closed taxonomy, mapping the SFTP protocol status codes named
// in spec.md (mkdir -> AlreadyExists on SSH_FX_FAILURE/SSH_FX_FILE_ALREADY_EXISTS,
// chmod -> PermissionDenied on SSH_FX_PERMISSION_DENIED).
func FromSFTPStatus(path string, err error) *Error {
	if err == nil {
		return nil
	}
	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case 3: // SSH_FX_PERMISSION_DENIED
			return PermissionDenied(fmt.Sprintf("permission denied: %s", path))
		case 4, 11: // SSH_FX_FAILURE, SSH_FX_FILE_ALREADY_EXISTS
			return AlreadyExists(fmt.Sprintf("already exists: %s", path))
		case 2: // SSH_FX_NO_SUCH_FILE
			return NotFound(fmt.Sprintf("not found: %s", path))
		}
	}
	if errors.Is(err, os.ErrNotExist) {
		return NotFound(fmt.Sprintf("not found: %s", path))
	}
	if errors.Is(err, os.ErrPermission) {
		return PermissionDenied(fmt.Sprintf("permission denied: %s", path))
	}
	return RemoteIoError(err, fmt.Sprintf("sftp operation failed on %s", path))
}

// FromIOError classifies a plain local filesystem error.
func FromIOError(path string, err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return NotFound(fmt.Sprintf("not found: %s", path))
	}
	if errors.Is(err, os.ErrPermission) {
		return PermissionDenied(fmt.Sprintf("permission denied: %s", path))
	}
	return LocalIoError(err, fmt.Sprintf("local I/O error on %s", path))
}

// IsRetryable reports whether err (as classified into our taxonomy)
// should be retried automatically. Non-*Error values are never retried.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// CodeOf extracts the Code from err, or CodeUnknown if err isn't one of
// ours.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
