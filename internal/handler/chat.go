package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/linguachat/internal/email"
	"github.com/linguachat/internal/invite"
	"github.com/linguachat/internal/language"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/middleware"
	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/repository"
	"github.com/linguachat/internal/ws"
)

type ChatHandler struct {
	chats   *repository.ChatRepository
	users   *repository.UserRepository
	msgs    *repository.MessageRepository
	invites *invite.Service
	mailer  *email.Sender
	baseURL string
}

func NewChatHandler(chats *repository.ChatRepository, users *repository.UserRepository, msgs *repository.MessageRepository, invites *invite.Service, mailer *email.Sender, baseURL string) *ChatHandler {
	return &ChatHandler{
		chats:   chats,
		users:   users,
		msgs:    msgs,
		invites: invites,
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type CreateChatRequest struct {
	Language     string   `json:"language"`
	ChatType     string   `json:"chatType"`
	InviteEmails []string `json:"inviteEmails"`
}

type CreateChatResponse struct {
	ID string `json:"id"`
}

// CreateChat создаёт чат от имени текущего пользователя. Создатель становится
// участником сразу; для ai-чата вторым участником добавляется ассистент.
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	chatID, err := h.createChat(r.Context(), userID, req.Language, model.ChatMode(req.ChatType), req.InviteEmails)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, CreateChatResponse{ID: chatID})
}

// createChat — общая точка создания: сюда же приходит мастер создания чата.
func (h *ChatHandler) createChat(ctx context.Context, userID, languageCode string, mode model.ChatMode, inviteEmails []string) (string, error) {
	if _, err := language.ByCode(languageCode); err != nil {
		return "", fmt.Errorf("unknown language %q", languageCode)
	}
	if !mode.Valid() {
		return "", fmt.Errorf("unknown chat type %q", mode)
	}

	chat := &model.Chat{
		ID:           uuid.New().String(),
		Mode:         mode,
		LanguageCode: languageCode,
		CreatedBy:    userID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.chats.Create(ctx, chat); err != nil {
		logger.Errorf("create chat user=%s: %v", userID, err)
		return "", fmt.Errorf("failed to create chat")
	}
	if err := h.chats.AddParticipant(ctx, chat.ID, userID); err != nil {
		logger.Errorf("add creator chat=%s: %v", chat.ID, err)
		return "", fmt.Errorf("failed to create chat")
	}
	if mode == model.ChatModeAI {
		if err := h.chats.AddParticipant(ctx, chat.ID, ws.AISenderID); err != nil {
			logger.Errorf("add assistant chat=%s: %v", chat.ID, err)
			return "", fmt.Errorf("failed to create chat")
		}
	}

	if len(inviteEmails) > 0 && mode != model.ChatModeAI {
		// Письма — best effort: чат уже создан, неудачную рассылку можно повторить.
		if failed, err := h.sendInvites(ctx, chat.ID, inviteEmails, mode); err != nil {
			logger.Errorf("send invites chat=%s failed=%v: %v", chat.ID, failed, err)
		}
	}
	return chat.ID, nil
}

// inviteLink выпускает токен и собирает ссылку входа.
func (h *ChatHandler) inviteLink(ctx context.Context, chatID string, mode model.ChatMode) (string, error) {
	token, err := h.invites.Issue(ctx, chatID, mode)
	if err != nil {
		return "", err
	}
	return h.baseURL + "/chat/join?token=" + url.QueryEscape(token), nil
}

// sendInvites рассылает ссылку входа; каждый адрес — отдельное письмо,
// уже отправленные не откатываются. Возвращает адреса, которым не дошло.
func (h *ChatHandler) sendInvites(ctx context.Context, chatID string, emails []string, mode model.ChatMode) ([]string, error) {
	link, err := h.inviteLink(ctx, chatID, mode)
	if err != nil {
		return emails, err
	}
	var failed []string
	var firstErr error
	for _, to := range emails {
		if err := h.mailer.SendInvite(ctx, to, link); err != nil {
			failed = append(failed, to)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return failed, firstErr
}

type InviteRequest struct {
	ChatID   string   `json:"chatId"`
	Emails   []string `json:"emails"`
	ChatType string   `json:"chatType"`
}

type InviteResponse struct {
	InviteLink string   `json:"invite_link"`
	Failed     []string `json:"failed,omitempty"`
}

// Invite выпускает ссылку входа и рассылает её по адресам. Частичный провал
// (часть писем не ушла) не считается ошибкой всей операции: 200 со списком failed.
func (h *ChatHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.ChatID == "" {
		writeError(w, http.StatusBadRequest, "chatId is required")
		return
	}
	userID := middleware.GetUserID(r.Context())
	ok, err := h.chats.IsParticipant(r.Context(), req.ChatID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}
	chat, err := h.chats.GetByID(r.Context(), req.ChatID)
	if err != nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}

	link, err := h.inviteLink(r.Context(), chat.ID, chat.Mode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue invite")
		return
	}
	resp := InviteResponse{InviteLink: link}
	if len(req.Emails) > 0 {
		failed, err := h.sendInvites(r.Context(), chat.ID, req.Emails, chat.Mode)
		resp.Failed = failed
		if err != nil && len(failed) == len(req.Emails) {
			writeError(w, http.StatusBadGateway, "failed to send invitations")
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetChat возвращает один чат (только участникам).
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := middleware.GetUserID(r.Context())

	ok, err := h.chats.IsParticipant(r.Context(), chatID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}
	chat, err := h.chats.GetByID(r.Context(), chatID)
	if err != nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// ListChats возвращает чаты текущего пользователя.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	chats, err := h.chats.GetUserChats(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load chats")
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

// GetMessages отдаёт историю чата начиная с after_seq (только участникам).
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := middleware.GetUserID(r.Context())

	ok, err := h.chats.IsParticipant(r.Context(), chatID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	afterSeq := int64(queryInt(r, "after_seq", 0))
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	msgs, err := h.msgs.GetChatMessages(r.Context(), chatID, afterSeq, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}
