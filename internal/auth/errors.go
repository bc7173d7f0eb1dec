package auth

import "errors"

var (
	// ErrValidation is returned when a required credential field is empty.
	// No network call is made.
	ErrValidation = errors.New("auth: national id and phone are required")

	// ErrSubmitInProgress is returned when a submission is already awaiting
	// the clinic API.
	ErrSubmitInProgress = errors.New("auth: submission already in progress")
)
