package memory

import (
	"context"
	"sync"
	"time"

	"github.com/linguachat/internal/model"
)

const (
	sessionTTL     = 30 * 24 * time.Hour
	translationTTL = 24 * time.Hour
)

type item struct {
	val string
	exp time.Time
}

func (i item) expired(now time.Time) bool {
	return !i.exp.IsZero() && now.After(i.exp)
}

type inviteItem struct {
	token *model.InviteToken
	exp   time.Time
}

// Client — in-memory реализация storage.Store для -dev и тестов.
type Client struct {
	mu            sync.RWMutex
	invites       map[string]inviteItem
	sessions      map[string]item
	translations  map[string]item
	subscriptions map[string]map[string]struct{}
}

func New() *Client {
	return &Client{
		invites:       make(map[string]inviteItem),
		sessions:      make(map[string]item),
		translations:  make(map[string]item),
		subscriptions: make(map[string]map[string]struct{}),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) PutInvite(ctx context.Context, t *model.InviteToken, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *t
	cp.ConsumedBy = append([]string(nil), t.ConsumedBy...)
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.invites[t.Token] = inviteItem{token: &cp, exp: exp}
	return nil
}

func (c *Client) GetInvite(ctx context.Context, token string) (*model.InviteToken, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.invites[token]
	if !ok || (!v.exp.IsZero() && time.Now().After(v.exp)) {
		return nil, nil
	}
	cp := *v.token
	cp.ConsumedBy = append([]string(nil), v.token.ConsumedBy...)
	return &cp, nil
}

func (c *Client) AddInviteConsumer(ctx context.Context, token, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.invites[token]
	if !ok {
		return nil
	}
	if v.token.WasConsumedBy(userID) {
		return nil
	}
	v.token.ConsumedBy = append(v.token.ConsumedBy, userID)
	return nil
}

func (c *Client) SetSession(ctx context.Context, sessionID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = item{val: userID, exp: time.Now().Add(sessionTTL)}
	return nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.sessions[sessionID]
	if !ok || v.expired(time.Now()) {
		return "", nil
	}
	return v.val, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}

func (c *Client) GetTranslation(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.translations[key]
	if !ok || v.expired(time.Now()) {
		return "", nil
	}
	return v.val, nil
}

func (c *Client) SetTranslation(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.translations[key] = item{val: value, exp: time.Now().Add(translationTTL)}
	return nil
}

func (c *Client) AddPushSubscription(ctx context.Context, userID, subscription string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs, ok := c.subscriptions[userID]
	if !ok {
		subs = make(map[string]struct{})
		c.subscriptions[userID] = subs
	}
	subs[subscription] = struct{}{}
	return nil
}

func (c *Client) GetPushSubscriptions(ctx context.Context, userID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	subs := c.subscriptions[userID]
	out := make([]string, 0, len(subs))
	for s := range subs {
		out = append(out, s)
	}
	return out, nil
}

func (c *Client) RemovePushSubscription(ctx context.Context, userID, subscription string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if subs, ok := c.subscriptions[userID]; ok {
		delete(subs, subscription)
	}
	return nil
}
