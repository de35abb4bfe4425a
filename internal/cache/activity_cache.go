package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"curie/internal/models"
)

const (
	recentLimit = 50
	recentTTL   = 7 * 24 * time.Hour
)

// ActivityCache hält die letzten Ereignisse pro Schüler für das Dashboard
type ActivityCache interface {
	Push(ctx context.Context, ev *models.ActivityEvent) error
	Recent(ctx context.Context, username string, n int) ([]models.ActivityEvent, error)
}

type activityCache struct {
	client *redis.Client
}

func NewActivityCache(client *redis.Client) ActivityCache {
	return &activityCache{
		client: client,
	}
}

// NewClient baut einen Client aus einer redis:// URL
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func key(username string) string {
	return "activity:" + username
}

func (c *activityCache) Push(ctx context.Context, ev *models.ActivityEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key(ev.Username), data)
	pipe.LTrim(ctx, key(ev.Username), 0, recentLimit-1)
	pipe.Expire(ctx, key(ev.Username), recentTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent liefert die neuesten n Ereignisse, neueste zuerst
func (c *activityCache) Recent(ctx context.Context, username string, n int) ([]models.ActivityEvent, error) {
	if n <= 0 || n > recentLimit {
		n = recentLimit
	}
	items, err := c.client.LRange(ctx, key(username), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	events := make([]models.ActivityEvent, 0, len(items))
	for _, item := range items {
		var ev models.ActivityEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
