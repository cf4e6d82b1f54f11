package handler

import (
	"errors"
	"net/http"

	"github.com/linguachat/internal/invite"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/middleware"
)

// JoinHandler — вход в чат по инвайт-токену (?token= в query).
type JoinHandler struct {
	invites *invite.Service
}

func NewJoinHandler(invites *invite.Service) *JoinHandler {
	return &JoinHandler{invites: invites}
}

type JoinResponse struct {
	ChatID string `json:"chat_id"`
}

// Validate проверяет токен без входа: фронт показывает превью до логина.
func (h *JoinHandler) Validate(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	chatID, err := h.invites.Validate(r.Context(), token)
	if err != nil {
		h.writeTokenError(w, token, err)
		return
	}
	writeJSON(w, http.StatusOK, JoinResponse{ChatID: chatID})
}

// Join потребляет токен и добавляет текущего пользователя в чат.
func (h *JoinHandler) Join(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	userID := middleware.GetUserID(r.Context())
	chatID, err := h.invites.Consume(r.Context(), token, userID)
	if err != nil {
		h.writeTokenError(w, token, err)
		return
	}
	writeJSON(w, http.StatusOK, JoinResponse{ChatID: chatID})
}

func (h *JoinHandler) writeTokenError(w http.ResponseWriter, token string, err error) {
	switch {
	case errors.Is(err, invite.ErrInvalidToken):
		writeError(w, http.StatusNotFound, "invalid or expired token")
	case errors.Is(err, invite.ErrAlreadyConsumed):
		writeError(w, http.StatusGone, "invite already used")
	default:
		logger.Errorf("join token=%s: %v", middleware.MaskToken(token), err)
		writeError(w, http.StatusInternalServerError, "failed to process invite")
	}
}
