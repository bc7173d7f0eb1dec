// Package draft keeps in-progress auth form input for a single tab so a
// reload does not lose it.
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/wolfman30/clinic-kiosk/internal/kvstore"
	"github.com/wolfman30/clinic-kiosk/internal/patient"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

// Cache persists one tab's draft credentials.
type Cache struct {
	kv        kvstore.Store
	profileID string
	tabID     string
	logger    *logging.Logger

	mu       sync.Mutex
	restored bool
}

// NewCache creates a draft cache for one tab of one browser profile. Tab ids
// are chosen by the client, so the profile is part of the key.
func NewCache(kv kvstore.Store, profileID, tabID string, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{kv: kv, profileID: profileID, tabID: tabID, logger: logger}
}

func (c *Cache) key() string {
	return "profile:" + c.profileID + ":tab:" + c.tabID + ":authForm"
}

// Restore returns the saved draft, or an empty draft when nothing usable is
// stored. It also arms Save.
func (c *Cache) Restore(ctx context.Context) patient.Credentials {
	defer func() {
		c.mu.Lock()
		c.restored = true
		c.mu.Unlock()
	}()

	raw, found, err := c.kv.Get(ctx, c.key())
	if err != nil {
		c.logger.Debug("draft: read failed", "tab_id", c.tabID, "error", err)
		return patient.Credentials{}
	}
	if !found || raw == "" {
		return patient.Credentials{}
	}
	var creds patient.Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		c.logger.Debug("draft: discarding unparsable draft", "tab_id", c.tabID, "error", err)
		return patient.Credentials{}
	}
	return creds
}

// Save persists the draft. Calls made before the first Restore are dropped so
// an initial empty form cannot overwrite a saved draft.
func (c *Cache) Save(ctx context.Context, creds patient.Credentials) error {
	c.mu.Lock()
	restored := c.restored
	c.mu.Unlock()
	if !restored {
		c.logger.Debug("draft: save before restore ignored", "tab_id", c.tabID)
		return nil
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("draft: encode: %w", err)
	}
	if err := c.kv.SetMany(ctx, c.tabID, map[string]string{c.key(): string(payload)}); err != nil {
		return fmt.Errorf("draft: save: %w", err)
	}
	return nil
}

// Clear removes the saved draft.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.kv.Delete(ctx, c.tabID, c.key()); err != nil {
		return fmt.Errorf("draft: clear: %w", err)
	}
	return nil
}
