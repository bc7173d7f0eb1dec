package draft

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-kiosk/internal/kvstore"
	"github.com/wolfman30/clinic-kiosk/internal/patient"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

func newCache(kv kvstore.Store, tab string) *Cache {
	return NewCache(kv, "profile-1", tab, logging.New("error"))
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	ctx := context.Background()
	c := newCache(kv, "tab-1")

	assert.Equal(t, patient.Credentials{}, c.Restore(ctx))

	d := patient.Credentials{NationalID: "123456789", Phone: "5551234"}
	require.NoError(t, c.Save(ctx, d))
	assert.Equal(t, d, c.Restore(ctx))

	// A reload of the same tab sees the draft.
	assert.Equal(t, d, newCache(kv, "tab-1").Restore(ctx))

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, patient.Credentials{}, c.Restore(ctx))
}

func TestSaveBeforeRestoreIsIgnored(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	ctx := context.Background()
	saved := patient.Credentials{NationalID: "123", Phone: "555"}
	require.NoError(t, newCache(kv, "tab-1").seed(ctx, saved))

	reloaded := newCache(kv, "tab-1")
	require.NoError(t, reloaded.Save(ctx, patient.Credentials{}))
	assert.Equal(t, saved, reloaded.Restore(ctx))
}

func TestDraftsAreTabLocal(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	ctx := context.Background()
	a := newCache(kv, "tab-a")
	a.Restore(ctx)
	require.NoError(t, a.Save(ctx, patient.Credentials{NationalID: "1", Phone: "2"}))

	assert.Equal(t, patient.Credentials{}, newCache(kv, "tab-b").Restore(ctx))
}

func TestDraftsAreProfileLocal(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	ctx := context.Background()
	owner := NewCache(kv, "profile-a", "tab-1", logging.New("error"))
	owner.Restore(ctx)
	require.NoError(t, owner.Save(ctx, patient.Credentials{NationalID: "999887777", Phone: "5550000"}))

	other := NewCache(kv, "profile-b", "tab-1", logging.New("error"))
	assert.Equal(t, patient.Credentials{}, other.Restore(ctx))
}

func TestRestoreDiscardsGarbage(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, kv.SetMany(ctx, "x", map[string]string{"profile:profile-1:tab:tab-1:authForm": "{oops"}))
	assert.Equal(t, patient.Credentials{}, newCache(kv, "tab-1").Restore(ctx))
}

func (c *Cache) seed(ctx context.Context, creds patient.Credentials) error {
	c.Restore(ctx)
	return c.Save(ctx, creds)
}
