package store

import (
	"context"
	"fmt"

	"vtokiosk/internal/infra"
)

// RedisPrefix namespaces kiosk keys in a shared Redis.
const RedisPrefix = "kiosk:"

// Open builds the backend named by cfg.StoreDriver and applies the byte quota.
func Open(ctx context.Context, cfg *infra.Config) (KV, error) {
	var (
		kv  KV
		err error
	)
	switch cfg.StoreDriver {
	case infra.StoreMemory:
		kv = NewMemory()
	case infra.StoreSQLite:
		kv, err = OpenSQL(ctx, "sqlite", cfg.StoreDSN)
	case infra.StorePostgres:
		kv, err = OpenSQL(ctx, "postgres", cfg.StoreDSN)
	case infra.StoreRedis:
		kv, err = OpenRedis(ctx, cfg.StoreDSN, RedisPrefix)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, err
	}
	if cfg.StoreQuotaBytes > 0 {
		return NewLimited(kv, cfg.StoreQuotaBytes), nil
	}
	return kv, nil
}
