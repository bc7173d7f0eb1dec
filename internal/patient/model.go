package patient

import "strings"

// Identity is the verified patient record returned by the identity check.
// It never changes for the lifetime of a session.
type Identity struct {
	ID         int64  `json:"id"`
	NationalID string `json:"ssn"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
}

// Validate reports whether every required identity field is present.
func (i *Identity) Validate() error {
	if i == nil {
		return ErrMissingIdentity
	}
	if i.ID == 0 {
		return ErrMissingID
	}
	if strings.TrimSpace(i.NationalID) == "" {
		return ErrMissingNationalID
	}
	if strings.TrimSpace(i.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(i.Phone) == "" {
		return ErrMissingPhone
	}
	return nil
}

// Credentials is the unsubmitted auth form input.
type Credentials struct {
	NationalID string `json:"ssn"`
	Phone      string `json:"phone"`
}

// IsEmpty reports whether neither field has been typed yet.
func (c Credentials) IsEmpty() bool {
	return c.NationalID == "" && c.Phone == ""
}

// Validate enforces that both fields are filled in.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.NationalID) == "" {
		return ErrMissingNationalID
	}
	if strings.TrimSpace(c.Phone) == "" {
		return ErrMissingPhone
	}
	return nil
}

// Grant is the payload of a successful authentication.
type Grant struct {
	Token string   `json:"token"`
	User  Identity `json:"user"`
}
