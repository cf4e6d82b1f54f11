package storage

import (
	"context"
	"time"

	"github.com/linguachat/internal/model"
)

// Store — хранилище быстрых данных: инвайт-токены, сессии, кеш переводов,
// push-подписки. Реализации: redis.Client, memory.Client (для -dev без Redis).
//
// Мьютексы на уровне хранилища не требуются: конкурентный доступ к одному
// токену сериализуется в invite.Service (keyed mutex per token).
type Store interface {
	// Инвайт-токены
	PutInvite(ctx context.Context, t *model.InviteToken, ttl time.Duration) error
	// GetInvite возвращает (nil, nil), если токена нет.
	GetInvite(ctx context.Context, token string) (*model.InviteToken, error)
	AddInviteConsumer(ctx context.Context, token, userID string) error

	// Сессии (session_id -> user_id)
	SetSession(ctx context.Context, sessionID, userID string) error
	GetSession(ctx context.Context, sessionID string) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Кеш переводов
	GetTranslation(ctx context.Context, key string) (string, error)
	SetTranslation(ctx context.Context, key, value string) error

	// Push-подписки (значение — JSON подписки браузера)
	AddPushSubscription(ctx context.Context, userID, subscription string) error
	GetPushSubscriptions(ctx context.Context, userID string) ([]string, error)
	RemovePushSubscription(ctx context.Context, userID, subscription string) error

	Close() error
}
