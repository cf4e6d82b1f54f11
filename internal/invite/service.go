// Package invite выпускает и проверяет join-токены чатов.
// Для oneOnOne токен одноразовый: второй отличный пользователь получает
// ErrAlreadyConsumed. Потребление сериализуется per-token (keyed mutex).
package invite

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/storage"
)

var (
	ErrInvalidToken    = errors.New("invalid or expired invite token")
	ErrAlreadyConsumed = errors.New("invite token already consumed")
)

// ParticipantAdder — побочный эффект успешного consume: пользователь
// добавляется в множество участников чата (и никогда не удаляется отсюда).
type ParticipantAdder interface {
	AddParticipant(ctx context.Context, chatID, userID string) error
}

type Service struct {
	store storage.Store
	chats ParticipantAdder
	ttl   time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(store storage.Store, chats ParticipantAdder, ttl time.Duration) *Service {
	return &Service{
		store: store,
		chats: chats,
		ttl:   ttl,
		locks: make(map[string]*sync.Mutex),
	}
}

// Issue генерирует неугадываемый токен, привязанный к чату.
// Для oneOnOne ставится одноразовый флаг.
func (s *Service) Issue(ctx context.Context, chatID string, mode model.ChatMode) (string, error) {
	defer logger.DeferLogDuration("invite.Issue", time.Now())()
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("invite.Issue rand: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	t := &model.InviteToken{
		Token:     token,
		ChatID:    chatID,
		Mode:      mode,
		SingleUse: mode == model.ChatModeOneOnOne,
	}
	if s.ttl > 0 {
		t.ExpiresAt = time.Now().Add(s.ttl)
	}
	if err := s.store.PutInvite(ctx, t, s.ttl); err != nil {
		return "", fmt.Errorf("invite.Issue store: %w", err)
	}
	return token, nil
}

// Validate возвращает chat id токена или ErrInvalidToken
// (неизвестный, истёкший, либо oneOnOne уже потреблённый другим пользователем).
func (s *Service) Validate(ctx context.Context, token string) (string, error) {
	defer logger.DeferLogDuration("invite.Validate", time.Now())()
	t, err := s.store.GetInvite(ctx, token)
	if err != nil {
		return "", fmt.Errorf("invite.Validate store: %w", err)
	}
	if t == nil || t.Expired(time.Now()) {
		return "", ErrInvalidToken
	}
	if t.SingleUse && len(t.ConsumedBy) > 0 {
		return "", ErrInvalidToken
	}
	return t.ChatID, nil
}

// Consume идемпотентно записывает joiner и добавляет его в участники чата.
// Для oneOnOne повторное потребление другим пользователем — ErrAlreadyConsumed;
// тем же пользователем — успех без побочных эффектов в токене.
func (s *Service) Consume(ctx context.Context, token, userID string) (string, error) {
	defer logger.DeferLogDuration("invite.Consume", time.Now())()
	lock := s.lockFor(token)
	lock.Lock()
	defer lock.Unlock()

	t, err := s.store.GetInvite(ctx, token)
	if err != nil {
		return "", fmt.Errorf("invite.Consume store: %w", err)
	}
	if t == nil || t.Expired(time.Now()) {
		return "", ErrInvalidToken
	}
	if t.SingleUse && len(t.ConsumedBy) > 0 && !t.WasConsumedBy(userID) {
		return "", ErrAlreadyConsumed
	}

	if !t.WasConsumedBy(userID) {
		if err := s.store.AddInviteConsumer(ctx, token, userID); err != nil {
			return "", fmt.Errorf("invite.Consume record: %w", err)
		}
	}
	if err := s.chats.AddParticipant(ctx, t.ChatID, userID); err != nil {
		return "", fmt.Errorf("invite.Consume add participant: %w", err)
	}
	return t.ChatID, nil
}

// lockFor выдаёт мьютекс данного токена. Мьютексы не освобождаются:
// токены короткоживущие, а объём записей ограничен числом issue.
func (s *Service) lockFor(token string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[token]
	if !ok {
		l = &sync.Mutex{}
		s.locks[token] = l
	}
	return l
}
