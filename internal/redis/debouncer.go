package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Debouncer suppresses duplicate work within a window using SETNX+TTL.
// The echobot keys it by sender and command so a pair of bots echoing at
// each other cannot build a reply loop.
type Debouncer struct {
	rdb *redis.Client
}

func NewDebouncer(rdb *redis.Client) *Debouncer {
	return &Debouncer{rdb: rdb}
}

// CheckDebounce returns true when the caller holds the window and should
// proceed; false means an identical key fired within the window.
func (d *Debouncer) CheckDebounce(ctx context.Context, key string, window time.Duration) (bool, error) {
	set, err := d.rdb.SetNX(ctx, "debounce:"+key, "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check debounce: %w", err)
	}
	return set, nil
}
