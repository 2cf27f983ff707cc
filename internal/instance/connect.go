package instance

import (
	"context"
	"fmt"

	"github.com/dyluth/lodge/internal/config"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/redis/go-redis/v9"
)

// TxPolicy converts the transactions section of lodge.yml into a retry policy.
func TxPolicy(cfg *config.LodgeConfig) datasheet.TxPolicy {
	p := datasheet.DefaultTxPolicy()
	if t := cfg.Transactions; t != nil {
		p.MaxAttempts = t.MaxAttempts
		p.InitialInterval = t.InitialBackoff
		p.MaxInterval = t.MaxBackoff
	}
	return p
}

// Connect opens the datasheet store described by cfg and verifies Redis is
// reachable.
func Connect(ctx context.Context, cfg *config.LodgeConfig) (*datasheet.Client, error) {
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	store, err := datasheet.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create datasheet client: %w", err)
	}
	store.SetTxPolicy(TxPolicy(cfg))

	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", redisOpts.Addr, err)
	}
	return store, nil
}
