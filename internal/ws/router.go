package ws

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/linguachat/internal/language"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/model"
)

// AISenderID is the synthetic user all AI replies are attributed to.
// Seeded by the initial migration so message rows keep their FK.
const AISenderID = "ai-assistant"

// UserStore resolves recipient preferences. Implemented by repository.UserRepository.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Translator is the external machine-translation collaborator.
type Translator interface {
	Translate(ctx context.Context, text, fromCode, toCode string) (string, error)
}

// AIResponder is the external AI collaborator for ai-mode chats.
type AIResponder interface {
	Reply(ctx context.Context, chatID, languageCode, content string) (string, error)
}

// Notifier sends push notifications to offline participants. Nil disables pushes.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// Router takes inbound messages from connections, assigns sequence numbers,
// persists, and fans out to recipients with per-recipient translation.
type Router struct {
	registry   *Registry
	chats      ChatStore
	msgs       MessageStore
	users      UserStore
	seq        *Sequencer
	translator Translator
	ai         AIResponder
	notifier   Notifier
}

func NewRouter(
	registry *Registry,
	chats ChatStore,
	msgs MessageStore,
	users UserStore,
	translator Translator,
	ai AIResponder,
	notifier Notifier,
) *Router {
	return &Router{
		registry:   registry,
		chats:      chats,
		msgs:       msgs,
		users:      users,
		seq:        NewSequencer(msgs),
		translator: translator,
		ai:         ai,
		notifier:   notifier,
	}
}

// HandleInbound dispatches incoming WebSocket messages.
func (rt *Router) HandleInbound(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventJoinChat:
		rt.handleJoin(ctx, c, msg)
	case EventLeaveChat:
		rt.handleLeave(c, msg)
	case EventNewMessage:
		rt.handleNewMessage(ctx, c, msg)
	default:
		c.Send(OutgoingMessage{Type: EventError, Payload: ErrorPayload{
			Operation: string(msg.Type), Error: "unknown event type",
		}})
	}
}

func (rt *Router) handleJoin(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.ChatID == "" {
		c.Send(OutgoingMessage{Type: EventError, Payload: ErrorPayload{
			Operation: "join_chat", Error: "chat_id required",
		}})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rt.registry.Join(ctx, c, msg.ChatID); err != nil {
		if err == ErrForbidden {
			c.Send(OutgoingMessage{Type: EventError, Payload: ErrorPayload{
				Operation: "join_chat", ChatID: msg.ChatID, Error: "forbidden",
			}})
			return
		}
		logger.Errorf("ws join chat=%s user=%s: %v", msg.ChatID, c.userID, err)
		c.Send(OutgoingMessage{Type: EventError, Payload: ErrorPayload{
			Operation: "join_chat", ChatID: msg.ChatID, Error: "internal error",
		}})
		return
	}
	c.Send(OutgoingMessage{Type: EventChatJoined, Payload: ChatMembershipPayload{ChatID: msg.ChatID}})
}

func (rt *Router) handleLeave(c *Client, msg IncomingMessage) {
	if msg.ChatID == "" {
		return
	}
	rt.registry.Leave(c, msg.ChatID)
	c.Send(OutgoingMessage{Type: EventChatLeft, Payload: ChatMembershipPayload{ChatID: msg.ChatID}})
}

func (rt *Router) handleNewMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleNewMessage", time.Now())()
	if msg.ChatID == "" || msg.Content == "" {
		c.Send(OutgoingMessage{Type: EventError, Payload: ErrorPayload{
			Operation: "new_message", ChatID: msg.ChatID, Error: "chat_id and content required",
		}})
		return
	}

	// The connection must have joined the chat; a bare participant who never
	// joined on this connection is still rejected. Message dropped, sender told.
	if !rt.registry.IsJoined(c, msg.ChatID) {
		c.Send(OutgoingMessage{Type: EventError, Payload: ErrorPayload{
			Operation: "new_message", ChatID: msg.ChatID, Error: "forbidden",
		}})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	chat, err := rt.chats.GetByID(ctx, msg.ChatID)
	if err != nil {
		logger.Errorf("ws get chat=%s: %v", msg.ChatID, err)
		c.Send(OutgoingMessage{Type: EventError, Payload: ErrorPayload{
			Operation: "new_message", ChatID: msg.ChatID, Error: "internal error",
		}})
		return
	}

	srcLang := msg.LanguageCode
	if !language.Known(srcLang) {
		srcLang = language.Detect(msg.Content, chat.LanguageCode)
	}

	m := &model.ChatMessage{
		ID:           uuid.New().String(),
		ChatID:       msg.ChatID,
		SenderID:     c.userID,
		Content:      msg.Content,
		LanguageCode: srcLang,
		CreatedAt:    time.Now().UTC(),
	}
	if sender, err := rt.users.GetByID(ctx, c.userID); err == nil {
		pub := sender.ToPublic()
		m.Sender = &pub
	}

	// Seq assignment, persist and recipient enqueue all happen under the
	// per-chat lock so every recipient sees this chat's messages in seq order.
	err = rt.seq.Do(ctx, m.ChatID, func(seq int64) error {
		m.Seq = seq
		if err := rt.msgs.Append(ctx, m); err != nil {
			return err
		}
		if chat.Mode == model.ChatModeAI {
			// AI chats have no human fan-out; echo to the sender only.
			rt.deliverTo(ctx, rt.registry.ConnectionsOf(c.userID), m)
		} else {
			rt.fanOut(ctx, m)
		}
		return nil
	})
	if err != nil {
		logger.Errorf("ws save message chat=%s user=%s: %v", m.ChatID, c.userID, err)
		c.Send(OutgoingMessage{Type: EventDeliveryFailed, Payload: DeliveryFailedPayload{
			ChatID: m.ChatID, Reason: "failed to save message",
		}})
		return
	}

	if chat.Mode == model.ChatModeAI {
		// The synthetic recipient replies asynchronously; its reply goes
		// through the same sequencing path, so no locks are held here.
		go rt.routeToAI(chat, m)
	} else {
		go rt.notifyOffline(chat, m)
	}
}

// fanOut delivers a message to every connection currently joined to its chat.
// Recipients preferring another language get a translated rendering; a
// translation or delivery failure for one recipient never blocks the others.
func (rt *Router) fanOut(ctx context.Context, m *model.ChatMessage) {
	defer logger.DeferLogDuration("ws.fanOut", time.Now())()
	recipients := rt.registry.RecipientsOf(m.ChatID)
	if len(recipients) == 0 {
		return
	}

	// One translation per target language, not per connection.
	renderings := make(map[string]MessagePayload, 2)
	for _, rc := range recipients {
		lang := rt.recipientLanguage(ctx, rc, m)
		payload, ok := renderings[lang]
		if !ok {
			payload = rt.render(ctx, m, lang)
			renderings[lang] = payload
		}
		rc.Send(OutgoingMessage{Type: EventNewMessage, Payload: payload})
	}
}

// deliverTo sends the message to a fixed set of connections, translated per
// recipient the same way fanOut does.
func (rt *Router) deliverTo(ctx context.Context, clients []*Client, m *model.ChatMessage) {
	for _, rc := range clients {
		lang := rt.recipientLanguage(ctx, rc, m)
		rc.Send(OutgoingMessage{Type: EventNewMessage, Payload: rt.render(ctx, m, lang)})
	}
}

// recipientLanguage resolves the preferred language from the User record,
// falling back to the message's source language on lookup failure.
func (rt *Router) recipientLanguage(ctx context.Context, rc *Client, m *model.ChatMessage) string {
	u, err := rt.users.GetByID(ctx, rc.userID)
	if err != nil {
		logger.Errorf("ws recipient lookup user=%s chat=%s: %v", rc.userID, m.ChatID, err)
		return m.LanguageCode
	}
	if !language.Known(u.LanguageCode) {
		return m.LanguageCode
	}
	return u.LanguageCode
}

// render builds the per-language payload, translating when the target differs
// from the source. Translation failure degrades to the untranslated original.
func (rt *Router) render(ctx context.Context, m *model.ChatMessage, lang string) MessagePayload {
	payload := MessagePayload{
		ID:               m.ID,
		ChatID:           m.ChatID,
		SenderID:         m.SenderID,
		Content:          m.Content,
		SourceLanguage:   m.LanguageCode,
		RenderedLanguage: m.LanguageCode,
		Seq:              m.Seq,
		CreatedAt:        m.CreatedAt,
		Sender:           m.Sender,
	}
	if lang == m.LanguageCode || rt.translator == nil {
		return payload
	}
	translated, err := rt.translator.Translate(ctx, m.Content, m.LanguageCode, lang)
	if err != nil {
		logger.Errorf("ws translate chat=%s msg=%s %s->%s: %v", m.ChatID, m.ID, m.LanguageCode, lang, err)
		return payload
	}
	payload.Content = translated
	payload.RenderedLanguage = lang
	payload.Translated = true
	return payload
}

// routeToAI sends the inbound message to the AI collaborator and feeds the
// reply back through the normal sequencing/persistence path.
func (rt *Router) routeToAI(chat *model.Chat, m *model.ChatMessage) {
	if rt.ai == nil {
		logger.Errorf("ws ai chat=%s: no responder configured", chat.ID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The responder works in the chat's creator language.
	prompt := m.Content
	if m.LanguageCode != chat.LanguageCode && rt.translator != nil {
		if translated, err := rt.translator.Translate(ctx, m.Content, m.LanguageCode, chat.LanguageCode); err == nil {
			prompt = translated
		} else {
			logger.Errorf("ws ai translate chat=%s msg=%s: %v", chat.ID, m.ID, err)
		}
	}

	replyText, err := rt.ai.Reply(ctx, chat.ID, chat.LanguageCode, prompt)
	if err != nil {
		logger.Errorf("ws ai reply chat=%s msg=%s: %v", chat.ID, m.ID, err)
		for _, rc := range rt.registry.ConnectionsOf(m.SenderID) {
			rc.Send(OutgoingMessage{Type: EventError, Payload: ErrorPayload{
				Operation: "ai_reply", ChatID: chat.ID, Error: "assistant unavailable",
			}})
		}
		return
	}

	reply := &model.ChatMessage{
		ID:           uuid.New().String(),
		ChatID:       chat.ID,
		SenderID:     AISenderID,
		Content:      replyText,
		LanguageCode: chat.LanguageCode,
		CreatedAt:    time.Now().UTC(),
	}
	if aiUser, err := rt.users.GetByID(ctx, AISenderID); err == nil {
		pub := aiUser.ToPublic()
		reply.Sender = &pub
	}

	err = rt.seq.Do(ctx, chat.ID, func(seq int64) error {
		reply.Seq = seq
		if err := rt.msgs.Append(ctx, reply); err != nil {
			return err
		}
		rt.deliverTo(ctx, rt.registry.RecipientsOf(chat.ID), reply)
		return nil
	})
	if err != nil {
		logger.Errorf("ws ai persist chat=%s: %v", chat.ID, err)
	}
}

// notifyOffline pushes a notification to chat participants without a live
// connection. Best-effort per user; failures are the notifier's to log.
func (rt *Router) notifyOffline(chat *model.Chat, m *model.ChatMessage) {
	if rt.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	participantIDs, err := rt.chats.GetParticipantIDs(ctx, chat.ID)
	if err != nil {
		logger.Errorf("ws notify participants chat=%s: %v", chat.ID, err)
		return
	}

	title := "New message"
	if m.Sender != nil && m.Sender.Username != "" {
		title = m.Sender.Username
	}
	body := m.Content
	if len(body) > 120 {
		body = body[:117] + "..."
	}
	data := map[string]string{"chat_id": chat.ID, "message_id": m.ID}
	for _, uid := range participantIDs {
		if uid == m.SenderID || rt.registry.UserOnline(uid) {
			continue
		}
		rt.notifier.Notify(ctx, uid, title, body, data)
	}
}
