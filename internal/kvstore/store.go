// Package kvstore provides the shared key-value store with change
// notification that backs per-profile and per-tab kiosk state.
package kvstore

import (
	"context"
	"sort"
)

// Change describes one key mutation. Origin identifies the writer so a
// context can skip its own writes.
type Change struct {
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
	Origin  string `json:"origin"`
}

// Store is a key-value store whose mutations are broadcast to subscribers.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// GetMany reads keys as one consistent snapshot. Missing keys are absent
	// from the result.
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	// SetMany writes all values atomically, then publishes one Change per key.
	SetMany(ctx context.Context, origin string, values map[string]string) error
	// Delete removes all keys atomically, then publishes one Change per key.
	Delete(ctx context.Context, origin string, keys ...string) error
	// Subscribe streams every change until ctx is done.
	Subscribe(ctx context.Context) (<-chan Change, error)
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
