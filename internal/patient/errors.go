package patient

import "errors"

var (
	// ErrMissingIdentity is returned when no identity record was supplied
	ErrMissingIdentity = errors.New("identity is required")

	// ErrMissingID is returned when the identity has no patient id
	ErrMissingID = errors.New("patient id is required")

	// ErrMissingNationalID is returned when the national id is blank
	ErrMissingNationalID = errors.New("national id is required")

	// ErrMissingName is returned when the identity has no name
	ErrMissingName = errors.New("name is required")

	// ErrMissingPhone is returned when the phone number is blank
	ErrMissingPhone = errors.New("phone is required")
)
