// Package cache holds the optional Redis connection. The service keeps no
// cached data; the client exists so health reporting can probe it.
package cache

import (
	"context"
	"fmt"
	"time"

	"todoapi/internal/logger"

	"github.com/redis/go-redis/v9"
)

const dialTimeout = 2 * time.Second

type Client struct {
	rdb *redis.Client
}

// NewClient parses a redis:// URL. No connection is made until first use, so
// an unreachable server is reported by Ping rather than here.
func NewClient(url string) (*Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.DialTimeout = dialTimeout
	opt.ReadTimeout = dialTimeout
	opt.MaxRetries = -1

	logger.Info("redis client configured", "addr", opt.Addr)
	return &Client{rdb: redis.NewClient(opt)}, nil
}

func (c *Client) Addr() string {
	return c.rdb.Options().Addr
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
