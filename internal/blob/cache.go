package blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "ticket-chat:signed-url:"

// CachedStore reuses signed URLs from Redis until shortly before they expire.
// Cache failures fall through to the wrapped store.
type CachedStore struct {
	next Store
	rdb  goredis.UniversalClient
	ttl  time.Duration
	log  *slog.Logger
}

// NewCachedStore caches URLs signed with signTTL for signTTL minus a safety
// margin of a tenth of it, at least one minute.
func NewCachedStore(next Store, rdb goredis.UniversalClient, signTTL time.Duration, log *slog.Logger) *CachedStore {
	margin := signTTL / 10
	if margin < time.Minute {
		margin = time.Minute
	}
	return &CachedStore{next: next, rdb: rdb, ttl: signTTL - margin, log: log}
}

func (c *CachedStore) Upload(ctx context.Context, ticketID, filename, contentType string, body io.Reader, size int64) (*Object, error) {
	obj, err := c.next.Upload(ctx, ticketID, filename, contentType, body, size)
	if err != nil {
		return nil, err
	}
	c.put(ctx, obj.FilePath, obj.SignedURL)
	return obj, nil
}

func (c *CachedStore) SignedURL(ctx context.Context, filePath string) (string, error) {
	if c.ttl > 0 {
		url, err := c.rdb.Get(ctx, cacheKeyPrefix+filePath).Result()
		switch {
		case err == nil:
			return url, nil
		case !errors.Is(err, goredis.Nil):
			c.log.Warn("signed url cache get", slog.String("file_path", filePath), slog.Any("err", err))
		}
	}
	url, err := c.next.SignedURL(ctx, filePath)
	if err != nil {
		return "", err
	}
	c.put(ctx, filePath, url)
	return url, nil
}

func (c *CachedStore) put(ctx context.Context, filePath, url string) {
	if c.ttl <= 0 {
		return
	}
	if err := c.rdb.Set(ctx, cacheKeyPrefix+filePath, url, c.ttl).Err(); err != nil {
		c.log.Warn("signed url cache set", slog.String("file_path", filePath), slog.Any("err", err))
	}
}
