package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/streamswap/stellar-indexer/metrics"
	"github.com/streamswap/stellar-indexer/models"
)

const localCacheSize = 4096

// CachedReader memoizes token metadata, which never changes once a token is
// deployed, in process and optionally in Redis. Balances and net flow always
// go to the contract. Cache failures only cost a contract call.
type CachedReader struct {
	next   Reader
	client *redis.Client
	ttl    time.Duration
	local  *lru.Cache[string, models.TokenInfo]
	log    zerolog.Logger
}

// NewCachedReader wraps next. client may be nil to cache in process only.
func NewCachedReader(next Reader, client *redis.Client, ttl time.Duration, log zerolog.Logger) (*CachedReader, error) {
	local, err := lru.New[string, models.TokenInfo](localCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create metadata cache: %w", err)
	}
	return &CachedReader{next: next, client: client, ttl: ttl, local: local, log: log}, nil
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

var _ Reader = (*CachedReader)(nil)

func metadataKey(token string) string {
	return fmt.Sprintf("token_meta:%s", token)
}

func (c *CachedReader) TokenMetadata(ctx context.Context, token string) (models.TokenInfo, error) {
	if info, ok := c.local.Get(token); ok {
		metrics.MetadataCache.WithLabelValues("local").Inc()
		return info, nil
	}

	if c.client != nil {
		info, ok := c.fromRedis(ctx, token)
		if ok {
			metrics.MetadataCache.WithLabelValues("redis").Inc()
			c.local.Add(token, info)
			return info, nil
		}
	}

	metrics.MetadataCache.WithLabelValues("miss").Inc()
	info, err := c.next.TokenMetadata(ctx, token)
	if err != nil {
		return info, err
	}
	c.local.Add(token, info)
	if c.client != nil {
		c.toRedis(ctx, token, info)
	}
	return info, nil
}

func (c *CachedReader) Balance(ctx context.Context, token, account string) (*big.Int, error) {
	return c.next.Balance(ctx, token, account)
}

func (c *CachedReader) NetFlow(ctx context.Context, token, account string) (*big.Int, error) {
	return c.next.NetFlow(ctx, token, account)
}

func (c *CachedReader) fromRedis(ctx context.Context, token string) (models.TokenInfo, bool) {
	var info models.TokenInfo
	data, err := c.client.Get(ctx, metadataKey(token)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("token", token).Msg("redis metadata lookup failed")
		}
		return info, false
	}
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		c.log.Warn().Err(err).Str("token", token).Msg("dropping malformed cached metadata")
		return info, false
	}
	return info, true
}

func (c *CachedReader) toRedis(ctx context.Context, token string, info models.TokenInfo) {
	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, metadataKey(token), data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("token", token).Msg("redis metadata store failed")
	}
}
