// Package checkpoint caches the newest verified chain position per tenant in
// Redis. The cache is advisory: losing it only costs a full re-verification.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	id "fundledger/pkg/domain"
)

const keyTTL = 24 * time.Hour

type RedisCheckpoint struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *RedisCheckpoint {
	return &RedisCheckpoint{client: client}
}

func key(tenantID id.TenantID) string {
	return "chain:checkpoint:" + tenantID.String()
}

func (c *RedisCheckpoint) Load(ctx context.Context, tenantID id.TenantID) (int64, string, bool, error) {
	raw, err := c.client.Get(ctx, key(tenantID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("load chain checkpoint: %w", err)
	}

	seqStr, hash, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, "", false, nil
	}
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil || seq < 1 || hash == "" {
		// Corrupt entry; treat as absent so the verifier does a full walk.
		return 0, "", false, nil
	}
	return seq, hash, true, nil
}

func (c *RedisCheckpoint) Store(ctx context.Context, tenantID id.TenantID, sequence int64, hash string) error {
	value := strconv.FormatInt(sequence, 10) + ":" + hash
	if err := c.client.Set(ctx, key(tenantID), value, keyTTL).Err(); err != nil {
		return fmt.Errorf("store chain checkpoint: %w", err)
	}
	return nil
}

func (c *RedisCheckpoint) Drop(ctx context.Context, tenantID id.TenantID) error {
	if err := c.client.Del(ctx, key(tenantID)).Err(); err != nil {
		return fmt.Errorf("drop chain checkpoint: %w", err)
	}
	return nil
}
