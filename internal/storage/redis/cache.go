package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leozw/inbound-guardian/internal/core"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) *Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{
			Addr: redisURL,
		}
	}

	return &Client{redis.NewClient(opt)}
}

func (c *Client) SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.Set(ctx, key, data, expiration).Err()
}

func (c *Client) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// ReportCache keeps the last check report per domain so reads don't
// trigger DNS lookups.
type ReportCache struct {
	client *Client
	ttl    time.Duration
}

func NewReportCache(client *Client, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ReportCache{client: client, ttl: ttl}
}

func reportKey(domainID uuid.UUID) string {
	return fmt.Sprintf("domain:report:%s", domainID)
}

func (c *ReportCache) SaveReport(ctx context.Context, report *core.CheckReport) error {
	return c.client.SetJSON(ctx, reportKey(report.DomainID), report, c.ttl)
}

// LastReport returns nil without error when nothing is cached.
func (c *ReportCache) LastReport(ctx context.Context, domainID uuid.UUID) (*core.CheckReport, error) {
	var report core.CheckReport
	if err := c.client.GetJSON(ctx, reportKey(domainID), &report); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return &report, nil
}

func (c *ReportCache) DeleteReport(ctx context.Context, domainID uuid.UUID) error {
	return c.client.Del(ctx, reportKey(domainID)).Err()
}
