package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/linguachat/internal/model"
	"github.com/redis/go-redis/v9"
)

// TTL сессии 30 дней; кеш переводов 24 часа (перевод неизменного текста стабилен).
const (
	sessionTTL      = 30 * 24 * time.Hour
	translationTTL  = 24 * time.Hour
	subscriptionTTL = 90 * 24 * time.Hour
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// PutInvite сохраняет токен как JSON по ключу invite:{token}. ttl<=0 — без срока.
func (c *Client) PutInvite(ctx context.Context, t *model.InviteToken, ttl time.Duration) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("redis marshal invite: %w", err)
	}
	if ttl <= 0 {
		return c.cli.Set(ctx, "invite:"+t.Token, data, 0).Err()
	}
	return c.cli.Set(ctx, "invite:"+t.Token, data, ttl).Err()
}

func (c *Client) GetInvite(ctx context.Context, token string) (*model.InviteToken, error) {
	val, err := c.cli.Get(ctx, "invite:"+token).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := &model.InviteToken{}
	if err := json.Unmarshal([]byte(val), t); err != nil {
		return nil, fmt.Errorf("redis unmarshal invite: %w", err)
	}
	return t, nil
}

// AddInviteConsumer дописывает userID в consumed_by. Read-modify-write: вызывающая
// сторона (invite.Service) держит per-token мьютекс, TTL ключа сохраняется.
func (c *Client) AddInviteConsumer(ctx context.Context, token, userID string) error {
	t, err := c.GetInvite(ctx, token)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	if t.WasConsumedBy(userID) {
		return nil
	}
	t.ConsumedBy = append(t.ConsumedBy, userID)
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("redis marshal invite: %w", err)
	}
	return c.cli.Set(ctx, "invite:"+token, data, redis.KeepTTL).Err()
}

func (c *Client) SetSession(ctx context.Context, sessionID, userID string) error {
	return c.cli.Set(ctx, "session:"+sessionID, userID, sessionTTL).Err()
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (string, error) {
	val, err := c.cli.Get(ctx, "session:"+sessionID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.cli.Del(ctx, "session:"+sessionID).Err()
}

func (c *Client) GetTranslation(ctx context.Context, key string) (string, error) {
	val, err := c.cli.Get(ctx, "tr:"+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) SetTranslation(ctx context.Context, key, value string) error {
	return c.cli.Set(ctx, "tr:"+key, value, translationTTL).Err()
}

func (c *Client) AddPushSubscription(ctx context.Context, userID, subscription string) error {
	key := "push:" + userID
	if err := c.cli.SAdd(ctx, key, subscription).Err(); err != nil {
		return err
	}
	return c.cli.Expire(ctx, key, subscriptionTTL).Err()
}

func (c *Client) GetPushSubscriptions(ctx context.Context, userID string) ([]string, error) {
	return c.cli.SMembers(ctx, "push:"+userID).Result()
}

func (c *Client) RemovePushSubscription(ctx context.Context, userID, subscription string) error {
	return c.cli.SRem(ctx, "push:"+userID, subscription).Err()
}
