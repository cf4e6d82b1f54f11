package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linguachat/internal/language"
	"github.com/linguachat/internal/middleware"
	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/repository"
	"github.com/linguachat/internal/storage"
)

// AuthHandler выдаёт сессии. Пароли не хранятся: пользователь идентифицируется
// по имени, при первом входе создаётся запись с выбранным языком интерфейса.
type AuthHandler struct {
	users *repository.UserRepository
	store storage.Store
}

func NewAuthHandler(users *repository.UserRepository, store storage.Store) *AuthHandler {
	return &AuthHandler{users: users, store: store}
}

type CreateSessionRequest struct {
	Username string `json:"username"`
	Language string `json:"language"`
}

type CreateSessionResponse struct {
	SessionID string            `json:"session_id"`
	User      model.UserPublic `json:"user"`
}

// CreateSession находит или создаёт пользователя и выдаёт session_id.
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if _, err := language.ByCode(req.Language); err != nil {
		writeError(w, http.StatusBadRequest, "unknown language")
		return
	}

	user, err := h.users.GetByUsername(r.Context(), req.Username)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		user = &model.User{
			ID:           uuid.New().String(),
			Username:     req.Username,
			LanguageCode: req.Language,
			CreatedAt:    time.Now().UTC(),
		}
		if err := h.users.Create(r.Context(), user); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to create user")
			return
		}
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	default:
		if user.LanguageCode != req.Language {
			if err := h.users.UpdateLanguage(r.Context(), user.ID, req.Language); err != nil {
				writeError(w, http.StatusInternalServerError, "failed to update language")
				return
			}
			user.LanguageCode = req.Language
		}
	}

	sessionID := uuid.New().String()
	if err := h.store.SetSession(r.Context(), sessionID, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: sessionID, User: user.ToPublic()})
}

// Me возвращает текущего пользователя по сессии.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user.ToPublic())
}
