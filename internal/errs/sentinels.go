// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Session and crypto failures.
var (
	// ErrInvalidKeyMaterial indicates an empty or malformed prekey bundle.
	ErrInvalidKeyMaterial = errors.New("invalid key material")

	// ErrSessionNotFound indicates no session is registered under the id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEncryptionFailed indicates the envelope could not be sealed.
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrDecryptionFailed indicates the payload could not be opened.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrNoIdentity indicates the device has no identity yet.
	ErrNoIdentity = errors.New("no identity")
)

// Transport failures.
var (
	// ErrConnection indicates a transport-level failure.
	ErrConnection = errors.New("connection error")

	// ErrNotConnected is returned by sends while the connection is down.
	ErrNotConnected = errors.New("not connected")

	// ErrReceiptDispatchFailed marks a receipt that could not be submitted.
	// It is logged, never surfaced into message state.
	ErrReceiptDispatchFailed = errors.New("receipt dispatch failed")
)

// Storage and auth failures.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates a malformed request.
	ErrValidation = errors.New("validation")
)

// Wrap returns an error that matches both kind and cause with errors.Is.
func Wrap(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return &wrapped{kind: kind, cause: cause}
}

type wrapped struct {
	kind  error
	cause error
}

func (w *wrapped) Error() string   { return w.kind.Error() + ": " + w.cause.Error() }
func (w *wrapped) Unwrap() []error { return []error{w.kind, w.cause} }
