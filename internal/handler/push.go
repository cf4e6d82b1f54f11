package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/linguachat/internal/middleware"
	"github.com/linguachat/internal/storage"
)

// PushHandler обрабатывает подписку на пуш-уведомления (сессия обязательна).
// Подписка хранится как пришла от PushManager.getSubscription(): JSON целиком.
type PushHandler struct {
	store storage.Store
}

func NewPushHandler(store storage.Store) *PushHandler {
	return &PushHandler{store: store}
}

// Subscribe сохраняет подписку текущего пользователя.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	var sub struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(body, &sub); err != nil || sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint and keys required")
		return
	}
	if err := h.store.AddPushSubscription(r.Context(), userID, string(body)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unsubscribe удаляет подписку по endpoint.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	subs, err := h.store.GetPushSubscriptions(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	for _, raw := range subs {
		var sub struct {
			Endpoint string `json:"endpoint"`
		}
		if json.Unmarshal([]byte(raw), &sub) == nil && sub.Endpoint == req.Endpoint {
			if err := h.store.RemovePushSubscription(r.Context(), userID, raw); err != nil {
				writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
				return
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
