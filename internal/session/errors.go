package session

import "errors"

// ErrInvalidCredentialPayload is returned by Establish when the token or
// identity is unusable.
var ErrInvalidCredentialPayload = errors.New("session: invalid credential payload")
