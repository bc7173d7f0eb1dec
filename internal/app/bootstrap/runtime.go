package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/clinic-kiosk/internal/config"
	"github.com/wolfman30/clinic-kiosk/internal/kvstore"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

const (
	sessionPrefix = "kiosk:session"
	draftPrefix   = "kiosk:draft"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Stores are the two key-value scopes the kiosk persists into.
type Stores struct {
	// Shared holds sessions, visible to every tab of a profile.
	Shared kvstore.Store
	// TabLocal holds per-tab entry drafts.
	TabLocal kvstore.Store
	// Redis is non-nil when the stores are Redis backed; callers close it.
	Redis *redis.Client
}

// BuildStores selects the backend named by STORE_BACKEND. The redis backend
// is required to reach Redis; it never silently falls back to memory.
func BuildStores(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Stores, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.StoreBackend {
	case "", "memory":
		logger.Info("using in-memory stores")
		return &Stores{
			Shared:   kvstore.NewMemoryStore(),
			TabLocal: kvstore.NewMemoryStore(),
		}, nil
	case "redis":
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, fmt.Errorf("bootstrap: redis backend selected but %q is unreachable", cfg.RedisAddr)
		}
		storeLogger := logger.Component("kvstore")
		logger.Info("using redis stores", "addr", cfg.RedisAddr)
		return &Stores{
			Shared: kvstore.NewRedisStore(client, sessionPrefix, kvstore.WithLogger(storeLogger)),
			TabLocal: kvstore.NewRedisStore(client, draftPrefix,
				kvstore.WithLogger(storeLogger),
				kvstore.WithTTL(cfg.DraftTTL),
			),
			Redis: client,
		}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.StoreBackend)
	}
}
