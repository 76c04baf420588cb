package service

import "errors"

// Sentinel errors shared by the service layer. Handlers map these to
// response error codes with errors.Is.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrTestNotFound     = errors.New("test not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrQuestionNotFound = errors.New("question not found")

	// ErrEmailMismatch is returned when the claimed candidate email does not
	// match the session's assigned email.
	ErrEmailMismatch = errors.New("email does not match assigned candidate")

	// ErrSessionClosed is returned for writes against a COMPLETED session.
	ErrSessionClosed = errors.New("session already completed")

	// ErrTestNotActive gates candidate entry to tests outside ACTIVE status.
	ErrTestNotActive = errors.New("test is not active")

	// ErrTestFrozen is returned for structural edits once any candidate has
	// started an attempt.
	ErrTestFrozen = errors.New("test content is frozen")

	// ErrInvalidInvitees is returned when the invitee list is empty after
	// normalization.
	ErrInvalidInvitees = errors.New("no valid candidate emails")

	// ErrNotTestOwner is returned when an admin touches another admin's test.
	ErrNotTestOwner = errors.New("not the test owner")

	// ErrMaterialUnavailable covers malformed material references and
	// signing failures.
	ErrMaterialUnavailable = errors.New("material unavailable")

	ErrInvalidQuestion = errors.New("invalid question")

	ErrUploadsDisabled     = errors.New("uploads are not enabled for this test")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)
