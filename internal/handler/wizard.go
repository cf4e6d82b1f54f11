package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/linguachat/internal/language"
	"github.com/linguachat/internal/middleware"
	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/wizard"
)

// chatFlow привязывает мастер создания чата к конкретному пользователю:
// wizard сам ничего не знает про сессии.
type chatFlow struct {
	chats  *ChatHandler
	userID string
}

func (f chatFlow) CreateChat(ctx context.Context, languageCode string, mode model.ChatMode, inviteEmails []string) (string, error) {
	return f.chats.createChat(ctx, f.userID, languageCode, mode, inviteEmails)
}

func (f chatFlow) InviteLink(ctx context.Context, chatID string, mode model.ChatMode) (string, error) {
	return f.chats.inviteLink(ctx, chatID, mode)
}

func (f chatFlow) SendInvites(ctx context.Context, chatID string, emails []string, mode model.ChatMode) ([]string, error) {
	return f.chats.sendInvites(ctx, chatID, emails, mode)
}

// wizardSession — мастер одного пользователя. Wizard не потокобезопасен,
// конкурентные запросы одного пользователя сериализуются mu.
type wizardSession struct {
	mu  sync.Mutex
	wiz *wizard.Wizard
}

// WizardHandler держит по одному мастеру на пользователя. Состояние живёт в
// памяти процесса: мастер короткоживущий, терять его при рестарте не страшно.
type WizardHandler struct {
	chats *ChatHandler

	mu       sync.Mutex
	sessions map[string]*wizardSession
}

func NewWizardHandler(chats *ChatHandler) *WizardHandler {
	return &WizardHandler{chats: chats, sessions: make(map[string]*wizardSession)}
}

// sessionFor возвращает сессию пользователя, создавая новую при первом обращении.
func (h *WizardHandler) sessionFor(userID string) *wizardSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[userID]; ok {
		return s
	}
	flow := chatFlow{chats: h.chats, userID: userID}
	s := &wizardSession{wiz: wizard.New(flow, flow, flow)}
	h.sessions[userID] = s
	return s
}

func (h *WizardHandler) drop(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, userID)
}

// Start сбрасывает мастер и начинает проход заново.
func (h *WizardHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	h.drop(userID)
	s := h.sessionFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.wiz.Snapshot())
}

// State отдаёт текущее состояние мастера.
func (h *WizardHandler) State(w http.ResponseWriter, r *http.Request) {
	s := h.sessionFor(middleware.GetUserID(r.Context()))
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.wiz.Snapshot())
}

type wizardLanguageRequest struct {
	Code string `json:"code"`
}

// SelectLanguage выбирает язык чата.
func (h *WizardHandler) SelectLanguage(w http.ResponseWriter, r *http.Request) {
	var req wizardLanguageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	lang, err := language.ByCode(req.Code)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown language")
		return
	}
	s := h.sessionFor(middleware.GetUserID(r.Context()))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wiz.SelectLanguage(lang)
	writeJSON(w, http.StatusOK, s.wiz.Snapshot())
}

type wizardModeRequest struct {
	ChatType string `json:"chatType"`
}

// SelectMode выбирает тип чата.
func (h *WizardHandler) SelectMode(w http.ResponseWriter, r *http.Request) {
	var req wizardModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s := h.sessionFor(middleware.GetUserID(r.Context()))
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.wiz.SelectMode(model.ChatMode(req.ChatType)); err != nil {
		writeError(w, http.StatusBadRequest, "unknown chat type")
		return
	}
	writeJSON(w, http.StatusOK, s.wiz.Snapshot())
}

type wizardNextResponse struct {
	Snapshot   wizard.Snapshot          `json:"snapshot"`
	Navigation *wizard.NavigationIntent `json:"navigation,omitempty"`
}

// Next двигает мастер вперёд. На терминальном переходе возвращает navigation
// и забывает мастер: следующий Start начнёт проход с чистого листа.
func (h *WizardHandler) Next(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	s := h.sessionFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, err := s.wiz.Next(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, wizard.ErrNoLanguage), errors.Is(err, wizard.ErrNoMode):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, wizard.ErrFinished):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	resp := wizardNextResponse{Snapshot: s.wiz.Snapshot()}
	if intent.Destination != wizard.DestinationNone {
		resp.Navigation = &intent
		h.drop(userID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Back шагает назад. Созданный чат не откатывается.
func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	s := h.sessionFor(middleware.GetUserID(r.Context()))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wiz.Back()
	writeJSON(w, http.StatusOK, s.wiz.Snapshot())
}

type wizardEmailRequest struct {
	Email string `json:"email"`
}

// AddInviteEmail добавляет адрес в список приглашений.
func (h *WizardHandler) AddInviteEmail(w http.ResponseWriter, r *http.Request) {
	var req wizardEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	s := h.sessionFor(middleware.GetUserID(r.Context()))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wiz.AddInviteEmail(req.Email)
	writeJSON(w, http.StatusOK, s.wiz.Snapshot())
}

// RemoveInviteEmail убирает адрес из списка (email в query).
func (h *WizardHandler) RemoveInviteEmail(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("email")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	s := h.sessionFor(middleware.GetUserID(r.Context()))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wiz.RemoveInviteEmail(addr)
	writeJSON(w, http.StatusOK, s.wiz.Snapshot())
}

type wizardInvitationsResponse struct {
	Failed []string `json:"failed,omitempty"`
}

// SendInvitations шлёт письма по накопленному списку. Частичный провал
// возвращается списком failed, уже отправленные письма остаются в силе.
func (h *WizardHandler) SendInvitations(w http.ResponseWriter, r *http.Request) {
	s := h.sessionFor(middleware.GetUserID(r.Context()))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wiz.ChatID() == "" {
		writeError(w, http.StatusBadRequest, "no chat created yet")
		return
	}
	failed, err := s.wiz.SendInvitations(r.Context())
	if err != nil && len(failed) == 0 {
		writeError(w, http.StatusBadGateway, "failed to send invitations")
		return
	}
	writeJSON(w, http.StatusOK, wizardInvitationsResponse{Failed: failed})
}
