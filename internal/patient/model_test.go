package patient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityValidate(t *testing.T) {
	valid := Identity{ID: 1, NationalID: "123456789", Name: "Jane Doe", Phone: "5551234"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		mut  func(*Identity)
		want error
	}{
		{"missing id", func(i *Identity) { i.ID = 0 }, ErrMissingID},
		{"missing ssn", func(i *Identity) { i.NationalID = "" }, ErrMissingNationalID},
		{"blank name", func(i *Identity) { i.Name = "  " }, ErrMissingName},
		{"missing phone", func(i *Identity) { i.Phone = "" }, ErrMissingPhone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := valid
			tt.mut(&id)
			assert.ErrorIs(t, id.Validate(), tt.want)
		})
	}

	var nilID *Identity
	assert.ErrorIs(t, nilID.Validate(), ErrMissingIdentity)
}

func TestIdentityWireNames(t *testing.T) {
	var id Identity
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"ssn":"123456789","name":"Jane Doe","phone":"5551234"}`), &id))
	assert.Equal(t, Identity{ID: 1, NationalID: "123456789", Name: "Jane Doe", Phone: "5551234"}, id)
}

func TestCredentials(t *testing.T) {
	assert.True(t, Credentials{}.IsEmpty())
	assert.False(t, Credentials{Phone: "5"}.IsEmpty())
	assert.ErrorIs(t, Credentials{Phone: "5551234"}.Validate(), ErrMissingNationalID)
	assert.ErrorIs(t, Credentials{NationalID: "1"}.Validate(), ErrMissingPhone)
	assert.NoError(t, Credentials{NationalID: "1", Phone: "2"}.Validate())
}
