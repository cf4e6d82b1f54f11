// Package push доставляет Web Push уведомления участникам чатов без живого
// соединения. Подписки хранятся в storage.Store; недействительные (404/410)
// удаляются при первой неудачной доставке.
package push

import (
	"context"
	"encoding/json"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/storage"
)

type Notifier struct {
	keys       *VAPIDKeys
	subscriber string
	store      storage.Store
}

// NewNotifier создаёт нотификатор. keys == nil — пуши отключены, Notify no-op.
func NewNotifier(keys *VAPIDKeys, subscriber string, store storage.Store) *Notifier {
	return &Notifier{keys: keys, subscriber: subscriber, store: store}
}

// Enabled сообщает, настроены ли ключи.
func (n *Notifier) Enabled() bool { return n != nil && n.keys != nil }

type notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notify отправляет уведомление на все подписки пользователя.
// Ошибка одной подписки не мешает остальным.
func (n *Notifier) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if !n.Enabled() {
		return
	}
	subs, err := n.store.GetPushSubscriptions(ctx, userID)
	if err != nil {
		logger.Errorf("push subscriptions user=%s: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(notification{Title: title, Body: body, Data: data})
	if err != nil {
		logger.Errorf("push marshal user=%s: %v", userID, err)
		return
	}

	for _, raw := range subs {
		var sub webpush.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			logger.Errorf("push bad subscription user=%s: %v", userID, err)
			continue
		}
		resp, err := webpush.SendNotification(payload, &sub, &webpush.Options{
			Subscriber:      n.subscriber,
			VAPIDPublicKey:  n.keys.PublicKey,
			VAPIDPrivateKey: n.keys.PrivateKey,
			TTL:             60,
		})
		if err != nil {
			logger.Errorf("push send user=%s: %v", userID, err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			// Подписка протухла — убираем.
			if err := n.store.RemovePushSubscription(ctx, userID, raw); err != nil {
				logger.Errorf("push remove stale subscription user=%s: %v", userID, err)
			}
		}
		resp.Body.Close()
	}
}
